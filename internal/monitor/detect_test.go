package monitor

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func grayFrame(w, h int, fill uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return img
}

func TestDiffFraction(t *testing.T) {
	a := grayFrame(10, 10, 0)
	b := grayFrame(10, 10, 0)
	if got := DiffFraction(a, b); got != 0 {
		t.Errorf("identical frames: got %v, want 0", got)
	}

	for i := 0; i < 5; i++ {
		b.Pix[i] = 255
	}
	if got := DiffFraction(a, b); got != 0.05 {
		t.Errorf("5 changed pixels: got %v, want 0.05", got)
	}

	c := grayFrame(20, 10, 0)
	if got := DiffFraction(a, c); got != 1.0 {
		t.Errorf("mismatched sizes: got %v, want 1.0", got)
	}
}

func TestDiffFraction_SubImageStride(t *testing.T) {
	base := grayFrame(8, 8, 10)
	sub := base.SubImage(image.Rect(2, 2, 6, 6)).(*image.Gray)
	other := Luma(sub)

	if got := DiffFraction(other, grayFrame(4, 4, 10)); got != 0 {
		t.Errorf("sub image should match flat frame, got %v", got)
	}
}

func TestIsStill_StrictInequality(t *testing.T) {
	tests := []struct {
		fraction, threshold float64
		want                bool
	}{
		{0.0, 0.01, true},
		{0.009, 0.01, true},
		{0.01, 0.01, false},
		{0.5, 0.01, false},
		{0.0, 0.0, false},
	}
	for _, tt := range tests {
		if got := IsStill(tt.fraction, tt.threshold); got != tt.want {
			t.Errorf("IsStill(%v, %v) = %v, want %v", tt.fraction, tt.threshold, got, tt.want)
		}
	}
}

func TestIsStill_ThresholdFromFrames(t *testing.T) {
	a := grayFrame(10, 10, 0)
	b := grayFrame(10, 10, 0)
	b.Pix[0] = 1

	f := DiffFraction(a, b)
	if IsStill(f, 0.01) {
		t.Errorf("fraction %v equal to threshold must not be still", f)
	}
	if !IsStill(f, 0.02) {
		t.Errorf("fraction %v below threshold must be still", f)
	}
}

func TestVolumeToDB(t *testing.T) {
	for _, v := range []float64{1.0, 0.5, 0.1, 0.00316, 1e-6} {
		want := 20 * math.Log10(v)
		if got := VolumeToDB(v); got != want {
			t.Errorf("VolumeToDB(%v) = %v, want %v", v, got, want)
		}
	}
	for _, v := range []float64{0, -0.5} {
		if got := VolumeToDB(v); got != -100.0 {
			t.Errorf("VolumeToDB(%v) = %v, want -100", v, got)
		}
	}
	if got := VolumeToDB(0.1); math.Abs(got-(-20)) > 1e-9 {
		t.Errorf("VolumeToDB(0.1) = %v, want -20", got)
	}
}

func TestIsSilent(t *testing.T) {
	if !IsSilent(-60, -50) {
		t.Error("-60 dB should be silent at -50 dB threshold")
	}
	if IsSilent(-50, -50) {
		t.Error("level equal to threshold should not be silent")
	}
	if IsSilent(-10, -50) {
		t.Error("-10 dB should not be silent")
	}
}

func TestLuma(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 9, 7))
	for y := 5; y < 7; y++ {
		for x := 5; x < 9; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	g := Luma(img)
	if g.Bounds() != image.Rect(0, 0, 4, 2) {
		t.Fatalf("bounds = %v, want (0,0)-(4,2)", g.Bounds())
	}
	for i, p := range g.Pix {
		if p != 255 {
			t.Fatalf("pixel %d = %d, want 255", i, p)
		}
	}

	flat := grayFrame(3, 3, 7)
	copied := Luma(flat)
	flat.Pix[0] = 99
	if copied.Pix[0] != 7 {
		t.Errorf("Luma must copy pixels, got %d after mutating the source", copied.Pix[0])
	}
}
