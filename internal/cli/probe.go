package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (a *app) probeCmd() *cobra.Command {
	var showLinks bool
	cmd := &cobra.Command{
		Use:   "probe <url> <selector>",
		Short: "Fetch a page and show what a selector matches on it",
		Long: `probe downloads the page directly and applies the selector to the static HTML.
Content rendered by scripts is not visible here, so an empty result does not
always mean the scrape service will find nothing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.fetcher.Probe(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if m.Count == 0 {
				fmt.Fprintf(w, "No elements match %q.\n", args[1])
				return nil
			}
			fmt.Fprintf(w, "%d element(s) match, content %s\n", m.Count, m.Hash)

			t := newTable(w)
			t.AppendHeader(table.Row{"#", "Text"})
			for i, text := range m.Texts {
				t.AppendRow(table.Row{i + 1, text})
			}
			t.Render()

			if showLinks && len(m.Links) > 0 {
				lt := newTable(w)
				lt.AppendHeader(table.Row{"Link", "URL"})
				for _, l := range m.Links {
					lt.AppendRow(table.Row{l.Text, l.Href})
				}
				lt.Render()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showLinks, "links", false, "Also list links inside the matched elements")
	return cmd
}
