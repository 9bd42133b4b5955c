// Package main implements the sync-client CLI, which keeps a local replica
// of todo-api in step using the changelist.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/todo-1m/todosync/internal/app/syncclient"
	"github.com/todo-1m/todosync/internal/platform/env"
	"github.com/todo-1m/todosync/internal/platform/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	server    string
	statePath string
	natsURL   string
	logLevel  string
	logger    *log.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "sync-client",
		Short:        "Mirror todo-api into a local state file",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = logging.New(cmd.ErrOrStderr(), opts.logLevel, "text", "sync-client")
		},
	}
	root.PersistentFlags().StringVar(&opts.server, "server", env.String("TODOSYNC_SERVER", env.DefaultServerURL), "todo-api base URL")
	root.PersistentFlags().StringVar(&opts.statePath, "state", env.String("TODOSYNC_STATE", "todosync-state.json"), "local replica file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", env.String("LOG_LEVEL", "info"), "log level")

	watch := newWatchCmd(opts)
	watch.Flags().StringVar(&opts.natsURL, "nats", env.String("NATS_URL", ""), "NATS URL for change notifications; empty polls only")

	root.AddCommand(newPullCmd(opts), watch, newStatusCmd(opts))
	return root
}

func (o *options) replica() (*syncclient.Replica, error) {
	st, err := syncclient.LoadState(o.statePath)
	if err != nil {
		return nil, err
	}
	r := syncclient.NewReplica(syncclient.NewClient(o.server), st)
	r.Logger = o.logger
	return r, nil
}
