// Package cli implements scrapectl, a terminal front end for the scrape-task
// service.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"scrape_bot/internal/config"
	"scrape_bot/internal/console"
	"scrape_bot/internal/fetcher"
	"scrape_bot/internal/taskapi"
)

// Options wires a root command. Service overrides the HTTP client built
// from the flags; PageClient overrides the one used to probe pages.
type Options struct {
	Config     *config.Config
	Service    taskapi.Service
	PageClient fetcher.HTTPClient
}

type app struct {
	opts    Options
	baseURL string
	level   string
	console *console.Console
	fetcher *fetcher.Fetcher
	log     *slog.Logger
}

// NewRootCmd builds the scrapectl command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Config == nil {
		opts.Config = &config.Config{
			ServiceBaseURL: config.DefaultServiceBaseURL,
			LogLevel:       "info",
			RequestTimeout: config.DefaultRequestTimeout,
		}
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "scrapectl",
		Short:         "Manage scheduled scrape tasks",
		Long:          "scrapectl captures selectors, schedules scrape tasks and reads their results through the scrape-task service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.setup(cmd.ErrOrStderr())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.console.Close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.baseURL, "base-url", opts.Config.ServiceBaseURL, "Base URL of the scrape-task service")
	root.PersistentFlags().StringVar(&a.level, "log-level", opts.Config.LogLevel, "Log level: debug, info, warn or error")

	root.AddCommand(
		a.listCmd(),
		a.addCmd(),
		a.captureCmd(),
		a.toggleCmd("pause", false),
		a.toggleCmd("resume", true),
		a.deleteCmd(),
		a.resultsCmd(),
		a.probeCmd(),
	)
	return root
}

// Execute runs the command tree and reports errors on stderr.
func Execute(ctx context.Context, opts Options) error {
	root := NewRootCmd(opts)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

func (a *app) setup(stderr io.Writer) {
	a.log = config.NewLogger(a.level, stderr)

	svc := a.opts.Service
	if svc == nil {
		svc = taskapi.New(a.baseURL,
			taskapi.WithTimeout(a.opts.Config.RequestTimeout),
			taskapi.WithRateLimit(a.opts.Config.RequestsPerSecond),
			taskapi.WithLogger(a.log),
		)
	}

	pages := a.opts.PageClient
	if pages == nil {
		pages = http.DefaultClient
	}
	a.fetcher = fetcher.New(pages)
	if a.opts.Config.RequestTimeout > 0 {
		a.fetcher.SetTimeout(a.opts.Config.RequestTimeout)
	}

	a.console = console.New(svc, a.log)
	if a.opts.Config.CapturePollInterval > 0 {
		a.console.Session().SetPollInterval(a.opts.Config.CapturePollInterval)
	}
	if a.opts.Config.CaptureTimeout > 0 {
		a.console.Session().SetTimeout(a.opts.Config.CaptureTimeout)
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}
