package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/priorauth/internal/intake"
	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/pipeline"
)

var (
	batchCSV         string
	batchConcurrency int
	batchOutput      string
	batchNoStore     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate every case in a CSV export",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in, closeFn, err := openInput(batchCSV)
		if err != nil {
			return err
		}
		defer closeFn()

		env, err := initEvalEnv(ctx, batchNoStore)
		if err != nil {
			return err
		}
		defer env.Close()

		raws, rowErrs, err := intake.ReadCSV(ctx, in)
		if err != nil {
			return eris.Wrap(err, "read csv")
		}
		for line, rowErr := range rowErrs {
			zap.L().Warn("skipping csv row", zap.Int("line", line), zap.Error(rowErr))
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentCases
		}

		results, summary, err := processBatch(ctx, raws, concurrency, env.prepare, env.Runner.Evaluate)
		if err != nil {
			return err
		}
		summary.Skipped += len(rowErrs)

		if batchOutput != "" {
			if err := writeResults(batchOutput, results); err != nil {
				return err
			}
		}
		formatBatchSummary(os.Stdout, summary)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "CSV file of cases, or - for stdin")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max cases evaluated concurrently (default from config)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write per-case results as JSON to this file")
	batchCmd.Flags().BoolVar(&batchNoStore, "no-store", false, "skip run persistence")
	_ = batchCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(batchCmd)
}

// prepareFunc normalizes and validates a case before evaluation.
type prepareFunc func(raw model.RawCase) (model.RawCase, error)

// evaluateFunc is the callback signature for evaluating one case.
type evaluateFunc func(ctx context.Context, raw model.RawCase) (*pipeline.Result, error)

// batchSummary counts batch outcomes.
type batchSummary struct {
	Total     int
	Skipped   int
	Failed    int
	Persisted int
	ByOutcome map[model.Outcome]int
}

// processBatch evaluates cases concurrently. Results keep input order; an
// invalid case leaves a nil slot and is counted as skipped. Individual case
// failures never abort the batch.
func processBatch(ctx context.Context, raws []model.RawCase, concurrency int, prepare prepareFunc, evaluate evaluateFunc) ([]*pipeline.Result, batchSummary, error) {
	summary := batchSummary{ByOutcome: map[model.Outcome]int{}}
	results := make([]*pipeline.Result, len(raws))
	if len(raws) == 0 {
		zap.L().Info("no cases to evaluate")
		return results, summary, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("cases", len(raws)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	for i, raw := range raws {
		g.Go(func() error {
			log := zap.L().With(zap.String("patient_id", raw.PatientID))

			prepared, err := prepare(raw)
			if err != nil {
				log.Warn("invalid case skipped", zap.Error(err))
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return nil
			}

			res, err := evaluate(gctx, prepared)
			if err != nil {
				// Only a cancelled context gets here.
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			results[i] = res
			if res.Persisted {
				summary.Persisted++
			}
			if res.State.Status == model.StatusFailed {
				summary.Failed++
			} else if res.State.Decision != nil {
				summary.ByOutcome[res.State.Decision.Outcome]++
			}
			return nil
		})
	}

	summary.Total = len(raws)
	if err := g.Wait(); err != nil {
		return results, summary, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int("total", summary.Total),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return results, summary, nil
}

func writeResults(path string, results []*pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return eris.Wrap(err, "write results")
	}
	return nil
}

// formatBatchSummary writes the batch counters to w.
func formatBatchSummary(out io.Writer, s batchSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total cases:\t%d\n", s.Total)

	outcomes := make([]string, 0, len(s.ByOutcome))
	for o := range s.ByOutcome {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", o, s.ByOutcome[model.Outcome(o)])
	}

	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "Persisted:\t%d\n", s.Persisted)
	_ = w.Flush()
}
