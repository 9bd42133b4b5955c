package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/todo-1m/todosync/internal/app/syncclient"
	"github.com/todo-1m/todosync/internal/app/todos"
)

func newStatusCmd(opts *options) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the local replica watermark and todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := syncclient.LoadState(opts.statePath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watermark: %d\n", st.Watermark)
			if !st.SyncedAt.IsZero() {
				fmt.Fprintf(out, "synced at: %s\n", st.SyncedAt.Format("2006-01-02 15:04:05Z07:00"))
			}
			fmt.Fprintf(out, "todos: %d\n", len(st.Todos))
			if !verbose {
				return nil
			}
			list := make([]todos.Todo, 0, len(st.Todos))
			for _, todo := range st.Todos {
				list = append(list, todo)
			}
			sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
			for _, todo := range list {
				mark := " "
				if todo.Completed {
					mark = "x"
				}
				fmt.Fprintf(out, "[%s] %s  %s\n", mark, todo.ID, todo.Title)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every todo")
	return cmd
}
