package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/autopause/internal/config"
)

var (
	cfg          *config.Config
	loader       *config.Loader
	cfgFile      string
	logFile      string
	verboseLevel int
	logCloser    io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "autopause",
	Short: "Pause OBS recordings while the scene is still and silent",
	Long: `autopause watches a video source and an audio input of a running OBS
instance through obs-websocket. When the picture stops changing and the
audio drops below a threshold, the recording is paused; as soon as both
come back it is resumed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		loader = config.NewLoader(cfgFile)
		var err error
		cfg, err = loader.Load()
		if err != nil {
			// Logging still goes to stderr so the failure is visible.
			setupLogging(verboseLevel, "")
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cmd.Flags().Changed("log-file") {
			cfg.Log.File = logFile
		}
		return setupLogging(verboseLevel, cfg.Log.File)
	},
}

func Execute() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the root command and closes the log file whether or not it failed.
func execute() error {
	defer closeLog()
	return rootCmd.Execute()
}

// closeLog closes the log file opened by setupLogging, if any.
func closeLog() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/autopause.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to this file (empty disables, overrides config)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog. Records go to the log file when one is set
// and to stderr when it is a terminal or no file is configured.
func setupLogging(level int, path string) error {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	var writers []io.Writer
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logCloser = f
		writers = append(writers, f)
	}
	if path == "" || isTerminal(os.Stderr) {
		writers = append(writers, os.Stderr)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: slogLevel,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
