package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/events"
)

func publishEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish-event [file]",
		Short: "Enqueue a raw Atlas entity notification on the event feed",
		Long:  "Reads an Atlas entity notification (JSON) from file or stdin, checks that it decodes, and enqueues it for the watch command.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			var (
				raw []byte
				err error
			)
			if len(args) == 1 {
				raw, err = os.ReadFile(args[0])
			} else {
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("publish-event: reading notification: %w", err)
			}

			ev, err := events.DecodeAtlasNotification(raw, cfg.Roles)
			if err != nil {
				return fmt.Errorf("publish-event: %w", err)
			}

			feed, err := newFeed(ctx, logger)
			if err != nil {
				return fmt.Errorf("publish-event: connecting to event feed: %w", err)
			}
			defer func() { _ = feed.Close() }()

			if err := feed.Publish(ctx, raw); err != nil {
				return fmt.Errorf("publish-event: %w", err)
			}
			fmt.Printf("Enqueued %s %s (%s)\n", ev.Operation, ev.GUID, ev.TypeName)
			return nil
		},
	}
	return cmd
}
