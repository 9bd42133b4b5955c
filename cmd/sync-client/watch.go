package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/todo-1m/todosync/internal/messaging"
	"github.com/todo-1m/todosync/internal/platform/natsutil"
)

func newWatchCmd(opts *options) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Pull on every change notification, and on a fallback interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "fallback poll interval")
	return cmd
}

func runWatch(ctx context.Context, opts *options, interval time.Duration) error {
	r, err := opts.replica()
	if err != nil {
		return err
	}
	logger := opts.logger

	// Notifications only wake the loop; one pending wake-up is enough.
	wake := make(chan struct{}, 1)
	notify := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	if opts.natsURL != "" {
		client, err := natsutil.ConnectJetStreamWithRetry(opts.natsURL, "sync-client", 20*time.Second)
		if err != nil {
			return err
		}
		defer client.Close()
		sub, err := client.SubscribeChanges(func(msg *nats.Msg) {
			event, err := messaging.DecodeChangeEvent(msg.Data)
			if err != nil {
				logger.Warn("ignoring notification", "subject", msg.Subject, "err", err)
				return
			}
			logger.Debug("change notification", "resource_id", event.ResourceID, "version", event.Version)
			notify()
		})
		if err != nil {
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()
		logger.Info("subscribed to change notifications", "nats", opts.natsURL)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	notify()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
		res, err := pullAndSave(ctx, r, opts.statePath)
		if err != nil {
			logger.Error("sync failed", "err", err)
			continue
		}
		if res.Entries > 0 {
			logger.Info("synced", "entries", res.Entries, "upserted", res.Upserted, "removed", res.Removed, "watermark", res.Watermark)
		}
	}
}
