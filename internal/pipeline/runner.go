package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/resilience"
	"github.com/sells-group/priorauth/internal/store"
)

// Result is the outcome of one Runner evaluation. State is always the
// orchestrator's terminal state; persistence problems are reported
// separately and never change it.
type Result struct {
	RunID        string          `json:"run_id,omitempty"`
	State        model.CaseState `json:"state"`
	Persisted    bool            `json:"persisted"`
	PersistError string          `json:"persist_error,omitempty"`
}

// Runner wraps an Orchestrator with run bookkeeping in a Store.
type Runner struct {
	orch    *Orchestrator
	store   store.Store
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRetryPolicy sets the retry policy for store writes.
func WithRetryPolicy(p resilience.Policy) RunnerOption {
	return func(r *Runner) { r.policy = p }
}

// WithBreaker sets the breaker guarding store writes.
func WithBreaker(b *resilience.Breaker) RunnerOption {
	return func(r *Runner) { r.breaker = b }
}

// NewRunner creates a Runner. A nil store disables persistence.
func NewRunner(orch *Orchestrator, st store.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		orch:    orch,
		store:   st,
		policy:  resilience.DefaultPolicy(),
		breaker: resilience.NewBreaker(5, 30*time.Second),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Evaluate runs one case end to end. The returned error is non-nil only
// when ctx is done before processing starts.
func (r *Runner) Evaluate(ctx context.Context, raw model.RawCase) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("patient_id", raw.PatientID))

	res := &Result{}
	var run *model.Run
	if r.store != nil {
		err := r.persist(ctx, "create_run", func(ctx context.Context) error {
			var err error
			run, err = r.store.CreateRun(ctx, raw)
			return err
		})
		if err != nil {
			log.Warn("pipeline: create run failed, evaluating without persistence", zap.Error(err))
			res.PersistError = err.Error()
		} else {
			res.RunID = run.ID
			log = log.With(zap.String("run_id", run.ID))
		}
	}

	start := time.Now()
	res.State = r.orch.Process(raw)
	fields := []zap.Field{
		zap.String("status", string(res.State.Status)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if d := res.State.Decision; d != nil {
		fields = append(fields, zap.String("outcome", string(d.Outcome)), zap.Float64("confidence", d.Confidence))
	}
	if res.State.Status == model.StatusFailed {
		log.Warn("pipeline: case failed", append(fields, zap.String("error", res.State.ErrorMessage))...)
	} else {
		log.Info("pipeline: case decided", fields...)
	}

	if run == nil {
		return res, nil
	}

	err := r.persist(ctx, "complete_run", func(ctx context.Context) error {
		return r.store.CompleteRun(ctx, run.ID, res.State)
	})
	if err == nil {
		err = r.persist(ctx, "record_stages", func(ctx context.Context) error {
			return r.store.RecordStages(ctx, run.ID, res.State.Stages)
		})
	}
	if err != nil {
		log.Error("pipeline: persist run failed", zap.Error(err))
		res.PersistError = err.Error()
		return res, nil
	}
	res.Persisted = true
	return res, nil
}

func (r *Runner) persist(ctx context.Context, op string, fn func(context.Context) error) error {
	p := r.policy
	if p.OnRetry == nil {
		p.OnRetry = resilience.LogRetry(op)
	}
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, p, fn)
	})
}
