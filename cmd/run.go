package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/autopause/internal/config"
	"github.com/audiolibrelab/autopause/internal/monitor"
	"github.com/audiolibrelab/autopause/internal/obs"
	"github.com/audiolibrelab/autopause/internal/scheduler"
	"github.com/audiolibrelab/autopause/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch OBS and pause or resume the recording automatically",
	Long: `Connect to OBS and evaluate the configured video and audio sources every
check interval. The recording is paused while the picture is still and the
audio is silent, and resumed once both change again.

Edits to the config file are picked up without a restart. The command runs
until interrupted or until the OBS connection drops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		if cmd.Flags().Changed("listen") {
			cfg.Status.Listen = listen
		}

		mode, err := obs.ParseAudioMode(cfg.Monitor.AudioMode)
		if err != nil {
			return err
		}

		lock := flock.New(cfg.LockFile)
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another autopause instance is running (lock %s)", cfg.LockFile)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				slog.Warn("failed to release lock", "path", cfg.LockFile, "error", err)
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := dialOBS(ctx, mode.EventSubscriptions())
		if err != nil {
			return err
		}
		defer client.Close()

		if v, err := client.GetVersion(ctx); err == nil {
			slog.Info("connected to OBS", "url", cfg.OBS.URL, "obs", v.OBSVersion, "websocket", v.OBSWebSocketVersion)
		}
		if st, err := client.GetRecordStatus(ctx); err != nil {
			slog.Warn("could not read record status", "error", err)
		} else if !st.OutputActive {
			slog.Warn("OBS is not recording; pause and resume requests will fail until it is")
		}

		sched := scheduler.New(ctx)
		host := obs.NewHost(client, mode, cfg.Monitor.ScreenshotWidth)
		mon := monitor.New(host, sched, monitor.WithLogger(slog.Default()))

		mon.Load(ctx, cfg.Settings())
		defer mon.Unload()

		loader.Watch(func(next *config.Config) {
			if next.Monitor.AudioMode != cfg.Monitor.AudioMode || next.OBS != cfg.OBS {
				slog.Warn("connection and audio mode changes need a restart")
			}
			mon.ApplySettings(next.Settings())
		}, func(err error) {
			slog.Error("ignoring invalid config change", "error", err)
		})

		if cfg.Status.Listen != "" {
			srv := server.New(mon, cfg.Status.Listen, slog.Default())
			if err := srv.Start(); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}

		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case <-client.Done():
			err := client.Err()
			if errors.Is(err, obs.ErrClosed) {
				return fmt.Errorf("lost connection to OBS: %w", err)
			}
			return err
		}
	},
}

func init() {
	runCmd.Flags().String("listen", "", "serve /status and /healthz on this address (overrides config)")
}
