package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"scrape_bot/internal/console"
	"scrape_bot/internal/model"
	"scrape_bot/internal/tasks"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all scrape tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.console.Dispatch(cmd.Context(), console.RefreshTasks{})
			if err != nil {
				return err
			}
			renderTasks(cmd.OutOrStdout(), out.Rows)
			return nil
		},
	}
}

type addFlags struct {
	url      string
	selector string
	capture  bool
	time     string
	days     string
	prompt   string
}

func (a *app) addCmd() *cobra.Command {
	var f addFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a scrape task",
		Example: `  scrapectl add --url https://example.com/news --capture --time 09:30 --days mon,wed,fri
  scrapectl add --url https://example.com/news --selector "div.headline" --time 7:00 --days 1,2,3,4,5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAdd(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.url, "url", "", "Page to watch")
	cmd.Flags().StringVar(&f.selector, "selector", "", "CSS selector of the element to watch")
	cmd.Flags().BoolVar(&f.capture, "capture", false, "Capture the selector interactively instead of passing --selector")
	cmd.Flags().StringVar(&f.time, "time", "", "Run time as HH:MM")
	cmd.Flags().StringVar(&f.days, "days", "", "Weekdays, e.g. 1,3,5 or mon,wed,fri (0 = Sunday)")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "Optional custom summary prompt")
	cmd.MarkFlagsMutuallyExclusive("selector", "capture")
	return cmd
}

func (a *app) runAdd(cmd *cobra.Command, f addFlags) error {
	draft := model.TaskDraft{
		URL:          strings.TrimSpace(f.url),
		Selector:     strings.TrimSpace(f.selector),
		Time:         strings.TrimSpace(f.time),
		CustomPrompt: strings.TrimSpace(f.prompt),
	}
	if strings.TrimSpace(f.days) != "" {
		days, err := model.ParseWeekdays(f.days)
		if err != nil {
			return &model.ValidationError{Field: model.FieldWeekdays, Reason: err.Error()}
		}
		draft.Days = days
	}

	if f.capture {
		if draft.URL == "" {
			return &model.ValidationError{Field: model.FieldURL}
		}
		snap, err := a.runCapture(cmd, draft.URL)
		if err != nil {
			return err
		}
		draft.Selector = snap.Result.Selector
	}

	out, err := a.console.Dispatch(cmd.Context(), console.AddTask{Draft: draft})
	switch {
	case out.Added && out.AddedID != 0:
		fmt.Fprintf(cmd.OutOrStdout(), "Task #%d added.\n", out.AddedID)
	case out.Added:
		fmt.Fprintln(cmd.OutOrStdout(), "Task added.")
	}
	if err != nil {
		return err
	}
	renderTasks(cmd.OutOrStdout(), out.Rows)
	return nil
}

func (a *app) toggleCmd(name string, active bool) *cobra.Command {
	short := "Stop a scrape task"
	if active {
		short = "Start a stopped scrape task"
	}
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out, err := a.console.Dispatch(cmd.Context(), console.ToggleTask{ID: id, Active: active})
			if err != nil {
				return err
			}
			state := "stopped"
			if active {
				state = "started"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task #%d %s.\n", id, state)
			renderTasks(cmd.OutOrStdout(), out.Rows)
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a scrape task and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			out, err := a.console.Dispatch(cmd.Context(), console.DeleteTask{ID: id, Confirmed: yes})
			if err != nil {
				return err
			}
			if out.NeedsConfirmation {
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete task #%d and all its results? [y/N]: ", id)) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
				if _, err := a.console.Dispatch(cmd.Context(), console.DeleteTask{ID: id, Confirmed: true}); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task #%d deleted.\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking for confirmation")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task ID %q", raw)
	}
	return id, nil
}

func renderTasks(w io.Writer, rows []tasks.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No tasks yet.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "URL", "Days", "Time", "Status"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.ID, r.DisplayURL, r.Weekdays, r.Time, r.Status})
	}
	t.Render()
}
