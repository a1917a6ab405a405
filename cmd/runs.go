package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/monitoring"
	"github.com/sells-group/edgar-metrics/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect metrics run history",
	Long:  "Commands for listing, viewing, and summarizing recorded metrics runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List metrics runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		fy, _ := cmd.Flags().GetInt("fy")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			FY:     fy,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		formatRunStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("fy", 0, "filter by fiscal year")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFY\tSTATUS\tCOMPANIES\tFAILURES\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t--\t------\t---------\t--------\t-------\t--------")

	for _, r := range runs {
		companies, failures, dur := "", "", ""
		if r.Result != nil {
			companies = fmt.Sprint(r.Result.Companies)
			failures = fmt.Sprint(len(r.Result.Failures))
			dur = (time.Duration(r.Result.Duration) * time.Millisecond).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.FY,
			r.Status,
			companies,
			failures,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s *monitoring.RunSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.RunsTotal)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.RunsComplete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.RunsFailed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.RunsRunning)
	_, _ = fmt.Fprintf(w, "Companies:\t%d\n", s.Companies)
	_, _ = fmt.Fprintf(w, "Metrics resolved:\t%d\n", s.Metrics)
	_, _ = fmt.Fprintf(w, "Company failures:\t%d\n", s.CompanyFailures)

	stages := make([]string, 0, len(s.FailuresByStage))
	for stage := range s.FailuresByStage {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", stage, s.FailuresByStage[stage])
	}

	if s.AvgDurationMs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", float64(s.AvgDurationMs)/1000)
	}
	if s.LatestCompleteID != "" {
		_, _ = fmt.Fprintf(w, "Latest complete:\t%s\n", s.LatestCompleteID)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
