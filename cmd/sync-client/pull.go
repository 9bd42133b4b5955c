package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/todo-1m/todosync/internal/app/syncclient"
)

func newPullCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Fetch changes since the stored watermark and apply them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := opts.replica()
			if err != nil {
				return err
			}
			res, err := pullAndSave(cmd.Context(), r, opts.statePath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d entries (%d upserted, %d removed), watermark %d\n",
				res.Entries, res.Upserted, res.Removed, res.Watermark)
			return nil
		},
	}
}

func pullAndSave(ctx context.Context, r *syncclient.Replica, statePath string) (syncclient.Result, error) {
	res, err := r.Pull(ctx)
	if err != nil {
		return res, fmt.Errorf("pull: %w", err)
	}
	if res.Entries == 0 {
		return res, nil
	}
	if err := syncclient.SaveState(statePath, r.State); err != nil {
		return res, err
	}
	return res, nil
}
