package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"scrape_bot/internal/capture"
	"scrape_bot/internal/console"
)

func (a *app) captureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture <url>",
		Short: "Capture a CSS selector by clicking an element on the page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.runCapture(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), snap.Display())
			return nil
		},
	}
}

// runCapture starts a capture and blocks until it ends. Only a captured
// selector counts as success.
func (a *app) runCapture(cmd *cobra.Command, url string) (capture.Snapshot, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Opening %s for selection. Click the element to watch in the opened page...\n", url)
	if _, err := a.console.Dispatch(cmd.Context(), console.StartCapture{URL: url}); err != nil {
		return capture.Snapshot{}, err
	}

	snap, err := a.console.Session().Wait(cmd.Context())
	if err != nil {
		a.console.Session().Cancel()
		return snap, err
	}
	if snap.State != capture.Captured {
		return snap, captureFailure(snap)
	}
	return snap, nil
}

func captureFailure(s capture.Snapshot) error {
	if s.Err != nil {
		return s.Err
	}
	return fmt.Errorf("selector capture ended in state %s", s.State)
}
