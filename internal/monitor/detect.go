package monitor

import (
	"image"
	"image/draw"
	"math"
)

// FloorDB is reported for zero, negative, or absent volumes.
const FloorDB = -100.0

// Luma converts img to a single-channel grayscale image anchored at (0,0).
// The result never shares pixels with img.
func Luma(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// DiffFraction returns the fraction of pixels whose luma differs between a and b.
// Frames of different sizes are reported as fully changed.
func DiffFraction(a, b *image.Gray) float64 {
	if a.Bounds().Size() != b.Bounds().Size() {
		return 1.0
	}
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	total := w * h
	if total == 0 {
		return 0
	}

	changed := 0
	for y := 0; y < h; y++ {
		rowA := a.Pix[y*a.Stride : y*a.Stride+w]
		rowB := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := range rowA {
			if rowA[x] != rowB[x] {
				changed++
			}
		}
	}
	return float64(changed) / float64(total)
}

// IsStill reports whether a diff fraction is strictly below the threshold.
func IsStill(fraction, threshold float64) bool {
	return fraction < threshold
}

// VolumeToDB converts a linear volume scalar to decibels, flooring at FloorDB.
func VolumeToDB(v float64) float64 {
	if v > 0 {
		return 20 * math.Log10(v)
	}
	return FloorDB
}

// IsSilent reports whether a level is strictly below the threshold.
func IsSilent(db, threshold float64) bool {
	return db < threshold
}
