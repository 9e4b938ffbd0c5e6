package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExecute_ClosesLogFileOnFailure(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		cfgFile = ""
		rootCmd.SetArgs(nil)
	})

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "autopause.yaml")
	logPath := filepath.Join(dir, "autopause.log")
	content := "obs:\n  url: ws://127.0.0.1:1\n  timeout: 1s\nlock_file: " + filepath.Join(dir, "autopause.lock") + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	rootCmd.SetArgs([]string{"--config", cfgPath, "--log-file", logPath, "sources"})
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)

	if err := execute(); err == nil {
		t.Fatal("Expected sources to fail without OBS")
	}
	if logCloser != nil {
		t.Error("Expected log file to be closed after a failing command")
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("Expected log file to exist, got %v", err)
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Expected nil after the wait, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleepCtx(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected cancellation to end the wait early, took %v", elapsed)
	}
}
