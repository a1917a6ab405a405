package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-metrics/internal/edgar"
)

var tickersCmd = &cobra.Command{
	Use:   "tickers [symbol...]",
	Short: "Look up EDGAR CIKs by ticker",
	Long:  "Prints the SEC ticker map, or the entries for the given symbols.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := edgar.NewFromConfig(cfg.SEC, cfg.Cache, processMetrics())
		if err != nil {
			return err
		}

		tm, err := client.Tickers(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load ticker map")
		}

		entries, missing := selectTickers(tm, args)
		formatTickers(os.Stdout, entries)
		for _, sym := range missing {
			fmt.Fprintf(os.Stderr, "unknown ticker: %s\n", sym)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tickersCmd)
}

// selectTickers returns the entries for symbols, or every entry when no
// symbols are given.
func selectTickers(tm edgar.TickerMap, symbols []string) (found []edgar.Ticker, missing []string) {
	if len(symbols) == 0 {
		return tm.Sorted(), nil
	}
	for _, sym := range symbols {
		t, ok := tm.Lookup(sym)
		if !ok {
			missing = append(missing, sym)
			continue
		}
		found = append(found, t)
	}
	return found, missing
}

func formatTickers(out io.Writer, entries []edgar.Ticker) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TICKER\tCIK\tNAME")
	for _, t := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t.Ticker, t.CIK, t.Title)
	}
	_ = w.Flush()
}
