package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/export"
	"github.com/sells-group/edgar-metrics/internal/pipeline"
)

// runFlags are shared by run and resolve.
type runFlags struct {
	fy          int
	ciks        []string
	tickers     []string
	sp500       bool
	factsFiles  []string
	factsDirs   []string
	limit       int
	workers     int
	metrics     []string
	skipDerived bool
	outDir      string
	ttl         bool
	xlsx        bool
	suggestions string
	noStore     bool
	noExport    bool
	jsonOut     bool
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, resolve, benchmark and rank a set of companies",
	Long:  "Fetches companyfacts and submissions from EDGAR (through the disk cache), resolves every metric for the fiscal year, aggregates peer benchmarks and rankings, records the run and writes the output files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel := runOpts.selection()
		if sel.Empty() {
			return eris.New("select companies with --cik, --ticker or --sp500")
		}
		return execute(cmd.Context(), runOpts, sel, false)
	},
}

func (f runFlags) selection() pipeline.Selection {
	return pipeline.Selection{
		CIKs:       f.ciks,
		Tickers:    f.tickers,
		SP500:      f.sp500,
		FactsFiles: f.factsFiles,
		FactsDirs:  f.factsDirs,
		Limit:      f.limit,
	}
}

// apply copies flag overrides onto the loaded configuration.
func (f runFlags) apply() {
	if f.workers > 0 {
		cfg.SEC.Workers = f.workers
	}
	if len(f.metrics) > 0 {
		cfg.Engine.Metrics = f.metrics
	}
	if f.skipDerived {
		cfg.Engine.SkipDerived = true
	}
	if f.outDir != "" {
		cfg.Output.Dir = f.outDir
	}
	if f.ttl {
		cfg.Output.EmitTTL = true
	}
	if f.xlsx {
		cfg.Output.EmitXLSX = true
	}
	if f.suggestions != "" {
		cfg.Output.Suggestions = f.suggestions
	}
}

// execute runs the pipeline for sel and writes its outputs.
func execute(ctx context.Context, f runFlags, sel pipeline.Selection, offline bool) error {
	f.apply()

	env, err := initPipeline(ctx, envOptions{FY: f.fy, Offline: offline, NoStore: f.noStore})
	if err != nil {
		return err
	}
	defer env.Close()

	var dir pipeline.Directory
	if env.Client != nil {
		dir = env.Client
	}
	targets, err := pipeline.Resolve(ctx, dir, sel)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return eris.New("no companies matched the selection")
	}

	result, err := env.Pipeline.Run(ctx, targets)
	if err != nil {
		return eris.Wrap(err, "pipeline run")
	}

	if !f.noExport {
		paths, err := export.WriteAll(result.Bundle(), cfg.Output)
		if err != nil {
			return eris.Wrap(err, "write outputs")
		}
		for _, p := range paths {
			zap.L().Info("wrote output", zap.String("path", p))
		}
	}

	if f.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Results)
	}
	formatRunSummary(os.Stdout, result)
	return nil
}

// formatRunSummary writes a short report of a finished run to w.
func formatRunSummary(out io.Writer, r *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if r.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", r.RunID)
	}
	sum := r.Summary()
	_, _ = fmt.Fprintf(w, "Fiscal year:\t%d\n", r.FY)
	_, _ = fmt.Fprintf(w, "Companies:\t%d\n", sum.Companies)
	_, _ = fmt.Fprintf(w, "Metrics resolved:\t%d\n", sum.Metrics)
	_, _ = fmt.Fprintf(w, "Benchmarks:\t%d\n", sum.Benchmarks)
	_, _ = fmt.Fprintf(w, "Rankings:\t%d\n", sum.Rankings)
	_, _ = fmt.Fprintf(w, "Failures:\t%d\n", len(r.Failures))
	for _, f := range r.Failures {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\n", f.CIK, f.Stage, f.Error)
	}
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", r.Duration.Round(time.Millisecond))
	_ = w.Flush()
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().IntVar(&f.fy, "fy", 0, "fiscal year (default from config)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "max companies to evaluate (0 = all)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent companies (default from config)")
	cmd.Flags().StringSliceVar(&f.metrics, "metrics", nil, "metrics to resolve: all, base, derived or names")
	cmd.Flags().BoolVar(&f.skipDerived, "skip-derived", false, "skip growth and ratio derivation")
	cmd.Flags().StringVar(&f.outDir, "out", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&f.ttl, "ttl", false, "also write Turtle instances")
	cmd.Flags().BoolVar(&f.xlsx, "xlsx", false, "also write an XLSX workbook")
	cmd.Flags().StringVar(&f.suggestions, "suggestions", "", "write mined growth concepts to this JSONL file")
	cmd.Flags().BoolVar(&f.noStore, "no-store", false, "do not record the run in the database")
	cmd.Flags().BoolVar(&f.noExport, "no-export", false, "do not write output files")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print company results as JSON")
}

func init() {
	addRunFlags(runCmd, &runOpts)
	runCmd.Flags().StringSliceVar(&runOpts.ciks, "cik", nil, "company CIKs")
	runCmd.Flags().StringSliceVar(&runOpts.tickers, "ticker", nil, "company tickers")
	runCmd.Flags().BoolVar(&runOpts.sp500, "sp500", false, "evaluate the current S&P 500 constituents")
	rootCmd.AddCommand(runCmd)
}
