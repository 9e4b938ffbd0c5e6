package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/autopause/internal/obs"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List OBS inputs usable as audio or video source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := dialOBS(ctx, obs.EventSubscriptionNone)
		if err != nil {
			return err
		}
		defer client.Close()

		inputs, err := client.GetInputList(ctx)
		if err != nil {
			return fmt.Errorf("failed to list inputs: %w", err)
		}
		sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })

		rows := make([][]string, 0, len(inputs))
		for _, in := range inputs {
			mark := ""
			switch in.Name {
			case cfg.Monitor.AudioSource:
				mark = "audio"
			case cfg.Monitor.VideoSource:
				mark = "video"
			}
			rows = append(rows, []string{in.Name, in.Kind, mark})
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Input", "Kind", "Configured"}, rows))
		return nil
	},
}

// dialOBS connects with the configured URL and credentials.
func dialOBS(ctx context.Context, subscriptions int) (*obs.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := obs.Dial(ctx, obs.Options{
		URL:                cfg.OBS.URL,
		Password:           cfg.OBS.Password,
		Timeout:            cfg.OBS.Timeout,
		EventSubscriptions: subscriptions,
		Logger:             slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to OBS at %s: %w", cfg.OBS.URL, err)
	}
	return client, nil
}
