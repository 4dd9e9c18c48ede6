package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"scrape_bot/internal/console"
	"scrape_bot/internal/results"
)

func (a *app) resultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <id>",
		Short: "Show the results of a task and mark them read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			out, err := a.console.Dispatch(cmd.Context(), console.ViewResults{ID: id})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out.Modal.Empty() {
				fmt.Fprintln(w, results.EmptyMessage)
			} else {
				t := newTable(w)
				t.AppendHeader(table.Row{"Time", "Status", "Summary"})
				for _, e := range out.Modal.Entries {
					t.AppendRow(table.Row{e.Timestamp.Format("2006-01-02 15:04"), entryStatus(e), e.Summary})
				}
				t.Render()
			}

			_, err = a.console.Dispatch(cmd.Context(), console.CloseResults{})
			return err
		},
	}
}

func entryStatus(e results.Entry) string {
	switch {
	case e.Failed && e.New:
		return "failed, new"
	case e.Failed:
		return "failed"
	case e.New:
		return "new"
	default:
		return ""
	}
}
