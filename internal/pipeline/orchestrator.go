// Package pipeline sequences the four PA stages over a CaseState and, through
// Runner, persists the terminal state to the run store.
package pipeline

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/priorauth/internal/decision"
	"github.com/sells-group/priorauth/internal/evidence"
	"github.com/sells-group/priorauth/internal/guideline"
	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/risk"
)

// Stage names as recorded in StageRecord and error messages.
const (
	StageExtract    = "extract_evidence"
	StageGuidelines = "check_guidelines"
	StageRisk       = "assess_risk"
	StageDecide     = "make_decision"
)

// StageFunc computes one stage. It returns the merged state and the
// reasoning line describing what happened.
type StageFunc func(model.CaseState) (model.CaseState, string, error)

// Stage binds a stage function to its name and pipeline status.
type Stage struct {
	Name   string
	Status model.Status
	Run    StageFunc
}

// Orchestrator runs the stages strictly in order. It holds no per-case
// state and may be shared by concurrent callers.
type Orchestrator struct {
	stages []Stage
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithStages replaces the stage list.
func WithStages(stages []Stage) OrchestratorOption {
	return func(o *Orchestrator) { o.stages = stages }
}

// NewOrchestrator builds the standard four-stage pipeline. A nil checker
// uses the built-in guideline table and a nil engine uses decision.New().
func NewOrchestrator(checker *guideline.Checker, engine *decision.Engine, opts ...OrchestratorOption) *Orchestrator {
	if checker == nil {
		checker = guideline.NewChecker(nil)
	}
	if engine == nil {
		engine = decision.New()
	}
	o := &Orchestrator{stages: DefaultStages(checker, engine)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DefaultStages returns extraction, guideline check, risk and decision.
func DefaultStages(checker *guideline.Checker, engine *decision.Engine) []Stage {
	return []Stage{
		{Name: StageExtract, Status: model.StatusExtracting, Run: extractStage},
		{Name: StageGuidelines, Status: model.StatusCheckingGuidelines, Run: guidelineStage(checker)},
		{Name: StageRisk, Status: model.StatusAssessingRisk, Run: riskStage},
		{Name: StageDecide, Status: model.StatusDeciding, Run: decisionStage(engine)},
	}
}

func extractStage(s model.CaseState) (model.CaseState, string, error) {
	out, err := s.WithEvidence(evidence.Extract(s.Raw))
	return out, "Medical information extracted and structured", err
}

func guidelineStage(checker *guideline.Checker) StageFunc {
	return func(s model.CaseState) (model.CaseState, string, error) {
		c, err := checker.Check(s.Evidence)
		if err != nil {
			return s, "", err
		}
		out, err := s.WithCompliance(c)
		verdict := "Non-compliant"
		if c.OverallCompliant {
			verdict = "Compliant"
		}
		return out, "Guidelines check: " + verdict, err
	}
}

func riskStage(s model.CaseState) (model.CaseState, string, error) {
	r := risk.Assess(s.Evidence)
	out, err := s.WithRisk(r)
	return out, fmt.Sprintf("Risk assessment completed: %s risk", r.OverallRisk), err
}

func decisionStage(engine *decision.Engine) StageFunc {
	return func(s model.CaseState) (model.CaseState, string, error) {
		d := engine.Decide(s.Compliance, s.Risk, s.Evidence)
		out, err := s.WithDecision(d)
		return out, fmt.Sprintf("Final decision: %s - %s", d.Outcome, d.Reason), err
	}
}

// Process runs every stage over a fresh CaseState. It always returns a
// terminal state: Completed with a decision, or Failed with ErrorMessage set
// and the outputs of the stages that did succeed.
func (o *Orchestrator) Process(raw model.RawCase) model.CaseState {
	log := zap.L().With(zap.String("patient_id", raw.PatientID))
	state := model.NewCaseState(raw)

	for _, st := range o.stages {
		next, err := state.Advance(st.Status)
		if err != nil {
			return state.Fail(fmt.Sprintf("%s: %v", st.Name, err))
		}
		state = next

		start := time.Now()
		out, line, err := runStage(st, state)
		duration := time.Since(start).Milliseconds()

		if err != nil {
			log.Error("pipeline: stage failed",
				zap.String("stage", st.Name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return state.
				AppendStage(model.StageRecord{Name: st.Name, Status: model.StageFailed, Duration: duration, Error: err.Error()}).
				Fail(fmt.Sprintf("%s: %v", st.Name, err))
		}

		log.Debug("pipeline: stage complete",
			zap.String("stage", st.Name),
			zap.Int64("duration_ms", duration),
		)
		state = out.
			AppendReasoning(line).
			AppendStage(model.StageRecord{Name: st.Name, Status: model.StageComplete, Duration: duration})
	}

	done, err := state.Advance(model.StatusCompleted)
	if err != nil {
		return state.Fail(err.Error())
	}
	return done
}

// runStage converts a panic inside a stage into an error.
func runStage(st Stage, s model.CaseState) (out model.CaseState, line string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, line = s, ""
			err = eris.Errorf("panic: %v", r)
		}
	}()
	out, line, err = st.Run(s)
	if err != nil {
		return s, "", err
	}
	return out, line, nil
}
