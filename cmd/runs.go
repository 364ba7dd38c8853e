package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/monitoring"
	"github.com/sells-group/priorauth/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect evaluation run history",
	Long:  "Commands for listing, viewing, and summarizing persisted PA evaluations.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		outcome, _ := cmd.Flags().GetString("outcome")
		patient, _ := cmd.Flags().GetString("patient")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:    model.Status(status),
			Outcome:   model.Outcome(outcome),
			PatientID: patient,
			Limit:     limit,
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
	Short: "Show the full case state of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := loadRun(ctx, st, args[0])
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
	Short: "Show aggregate decision statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: statsLimit})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, store.ComputeStats(runs))
		return nil
	},
}

// -- runs health --

var runsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check recent runs against the monitoring thresholds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mc := cfg.Monitoring
		if hours, _ := cmd.Flags().GetInt("hours"); hours > 0 {
			mc.LookbackWindowHours = hours
		}
		if send, _ := cmd.Flags().GetBool("send"); !send {
			mc.WebhookURL = ""
		}

		checker := monitoring.NewChecker(monitoring.NewCollector(st), monitoring.NewAlerter(mc), mc)
		snap, alerts := checker.Check(ctx)
		if snap == nil {
			return eris.New("runs health: collect metrics failed")
		}
		formatHealth(os.Stdout, snap, alerts)
		return nil
	},
}

func init() {
	runsHealthCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	runsHealthCmd.Flags().Bool("send", false, "deliver triggered alerts to the configured webhook")
	runsCmd.AddCommand(runsHealthCmd)

	runsListCmd.Flags().String("status", "", "filter by status (completed, failed, ...)")
	runsListCmd.Flags().String("outcome", "", "filter by decision (APPROVED, DENIED, ...)")
	runsListCmd.Flags().String("patient", "", "filter by patient ID")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// loadRun fetches a run together with its stage audit rows.
func loadRun(ctx context.Context, st store.Store, id string) (*model.Run, error) {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := st.ListStages(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Stages = stages
	return run, nil
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPATIENT\tMEDICATION\tSTATUS\tDECISION\tCONFIDENCE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t----------\t------\t--------\t----------\t-------")

	for _, r := range runs {
		decision, confidence := "", ""
		if r.State != nil && r.State.Decision != nil {
			decision = string(r.State.Decision.Outcome)
			confidence = fmt.Sprintf("%.2f", r.State.Decision.Confidence)
		}

		medication := r.Case.RequestedMedication
		if len(medication) > 24 {
			medication = medication[:21] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.PatientID,
			medication,
			r.Status,
			decision,
			confidence,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s store.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)

	outcomes := make([]string, 0, len(s.ByOutcome))
	for o := range s.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", o, s.ByOutcome[model.Outcome(o)])
	}

	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.ByStatus[model.StatusFailed])
	_, _ = fmt.Fprintf(w, "Urgent cases:\t%d\n", s.UrgentCases)
	_, _ = fmt.Fprintf(w, "High-cost cases:\t%d\n", s.HighCostCases)
	if s.AverageConfidence > 0 {
		_, _ = fmt.Fprintf(w, "Avg confidence:\t%.2f\n", s.AverageConfidence)
	}
	if s.Total > 0 {
		_, _ = fmt.Fprintf(w, "Avg monthly cost:\t$%.2f\n", s.AvgMonthlyCost)
	}
	_ = w.Flush()
}

// formatHealth writes a monitoring snapshot and its alerts to w.
func formatHealth(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d\n", snap.Total)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.FailRate*100)
	_, _ = fmt.Fprintf(w, "Denial rate:\t%.1f%%\n", snap.DenialRate*100)
	_, _ = fmt.Fprintf(w, "Pending review:\t%d\n", snap.PendingReview)
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "No alerts.")
		return
	}
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", a.Severity, a.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
