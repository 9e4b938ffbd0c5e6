package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/autopause/internal/monitor"
	"github.com/audiolibrelab/autopause/internal/obs"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Sample the configured sources once and report what the monitor would decide",
	Long: `Take two frames of the video source one check interval apart, read the
audio level, and print the measured values next to the configured
thresholds. Nothing is paused or resumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mode, err := obs.ParseAudioMode(cfg.Monitor.AudioMode)
		if err != nil {
			return err
		}

		client, err := dialOBS(ctx, mode.EventSubscriptions())
		if err != nil {
			return err
		}
		defer client.Close()

		host := obs.NewHost(client, mode, cfg.Monitor.ScreenshotWidth)
		settings := cfg.Settings()

		first, err := host.Frame(ctx, settings.VideoSource)
		if err != nil {
			return fmt.Errorf("failed to capture %q: %w", settings.VideoSource, err)
		}
		if err := sleepCtx(ctx, settings.Period()); err != nil {
			return err
		}
		second, err := host.Frame(ctx, settings.VideoSource)
		if err != nil {
			return fmt.Errorf("failed to capture %q: %w", settings.VideoSource, err)
		}
		fraction := monitor.DiffFraction(monitor.Luma(first), monitor.Luma(second))
		still := monitor.IsStill(fraction, settings.StillnessThreshold)

		level := "n/a"
		silent := false
		volume, err := host.OutputVolume(ctx, settings.AudioSource)
		switch {
		case errors.Is(err, monitor.ErrMissingAudioSource):
			level = "missing"
		case err != nil:
			return fmt.Errorf("failed to read %q: %w", settings.AudioSource, err)
		default:
			db := monitor.VolumeToDB(volume)
			level = fmt.Sprintf("%.1f dB", db)
			silent = monitor.IsSilent(db, settings.SilenceThreshold)
		}

		recording := "unknown"
		if st, err := client.GetRecordStatus(ctx); err == nil {
			switch {
			case st.OutputPaused:
				recording = "paused " + st.OutputTimecode
			case st.OutputActive:
				recording = "recording " + st.OutputTimecode
			default:
				recording = "stopped"
			}
		}

		b := first.Bounds()
		rows := [][]string{
			{"Video", settings.VideoSource, fmt.Sprintf("%dx%d", b.Dx(), b.Dy()), ""},
			{"Changed pixels", fmt.Sprintf("%.4f", fraction), fmt.Sprintf("< %.4f", settings.StillnessThreshold), yesNo(still, "still", "moving")},
			{"Audio", settings.AudioSource, string(mode), ""},
			{"Level", level, fmt.Sprintf("< %.1f dB", settings.SilenceThreshold), yesNo(silent, "silent", "audible")},
			{"Recording", recording, "", ""},
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Value", "Threshold", "Result"}, rows, 1))

		switch {
		case still && silent:
			fmt.Fprintln(cmd.OutOrStdout(), "The monitor would pause the recording.")
		case !still && !silent:
			fmt.Fprintln(cmd.OutOrStdout(), "The monitor would resume a paused recording.")
		default:
			fmt.Fprintln(cmd.OutOrStdout(), "The monitor would keep the current state.")
		}
		return nil
	},
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func yesNo(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
