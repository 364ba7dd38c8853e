package model

import (
	"github.com/rotisserie/eris"
)

// Status is the pipeline position of a case.
type Status string

const (
	StatusPending            Status = "pending"
	StatusExtracting         Status = "extracting"
	StatusCheckingGuidelines Status = "checking_guidelines"
	StatusAssessingRisk      Status = "assessing_risk"
	StatusDeciding           Status = "deciding"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

var statusOrder = map[Status]int{
	StatusPending:            0,
	StatusExtracting:         1,
	StatusCheckingGuidelines: 2,
	StatusAssessingRisk:      3,
	StatusDeciding:           4,
	StatusCompleted:          5,
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrFieldWritten is returned when a stage output is merged twice.
	ErrFieldWritten = eris.New("case state field already written")
	// ErrInvalidTransition is returned for a backward or post-terminal status move.
	ErrInvalidTransition = eris.New("invalid status transition")
)

// StageStatus is the outcome of one stage attempt.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
)

// StageRecord is the audit entry written for every attempted stage,
// successful or not.
type StageRecord struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// CaseState is the envelope threaded through the pipeline. Values are never
// mutated in place: every With*/Advance/Fail call returns a new CaseState
// with its own copies of the append-only slices.
type CaseState struct {
	Raw            RawCase            `json:"raw_case"`
	Evidence       *CanonicalEvidence `json:"evidence,omitempty"`
	Compliance     *ComplianceResult  `json:"compliance,omitempty"`
	Risk           *RiskResult        `json:"risk,omitempty"`
	Decision       *Decision          `json:"decision,omitempty"`
	ReasoningChain []string           `json:"reasoning_chain"`
	Stages         []StageRecord      `json:"stages"`
	Status         Status             `json:"status"`
	ErrorMessage   string             `json:"error_message,omitempty"`
}

// NewCaseState seeds a pending state from a raw case.
func NewCaseState(raw RawCase) CaseState {
	return CaseState{
		Raw:            raw,
		ReasoningChain: []string{},
		Stages:         []StageRecord{},
		Status:         StatusPending,
	}
}

func (s CaseState) clone() CaseState {
	out := s
	out.ReasoningChain = append(make([]string, 0, len(s.ReasoningChain)+1), s.ReasoningChain...)
	out.Stages = append(make([]StageRecord, 0, len(s.Stages)+1), s.Stages...)
	return out
}

// WithEvidence merges extraction output.
func (s CaseState) WithEvidence(ev CanonicalEvidence) (CaseState, error) {
	if s.Evidence != nil {
		return s, eris.Wrap(ErrFieldWritten, "evidence")
	}
	out := s.clone()
	out.Evidence = &ev
	return out, nil
}

// WithCompliance merges guideline checker output.
func (s CaseState) WithCompliance(c ComplianceResult) (CaseState, error) {
	if s.Compliance != nil {
		return s, eris.Wrap(ErrFieldWritten, "compliance")
	}
	out := s.clone()
	out.Compliance = &c
	return out, nil
}

// WithRisk merges risk assessor output.
func (s CaseState) WithRisk(r RiskResult) (CaseState, error) {
	if s.Risk != nil {
		return s, eris.Wrap(ErrFieldWritten, "risk")
	}
	out := s.clone()
	out.Risk = &r
	return out, nil
}

// WithDecision merges decision engine output.
func (s CaseState) WithDecision(d Decision) (CaseState, error) {
	if s.Decision != nil {
		return s, eris.Wrap(ErrFieldWritten, "decision")
	}
	out := s.clone()
	out.Decision = &d
	return out, nil
}

// Advance moves the status strictly forward.
func (s CaseState) Advance(next Status) (CaseState, error) {
	cur, okCur := statusOrder[s.Status]
	nxt, okNext := statusOrder[next]
	if s.Status.Terminal() || !okCur || !okNext || nxt <= cur {
		return s, eris.Wrapf(ErrInvalidTransition, "%s -> %s", s.Status, next)
	}
	out := s.clone()
	out.Status = next
	return out, nil
}

// Fail moves a non-terminal state to Failed with the given message.
// A terminal state is returned unchanged.
func (s CaseState) Fail(msg string) CaseState {
	if s.Status.Terminal() {
		return s
	}
	out := s.clone()
	out.Status = StatusFailed
	out.ErrorMessage = msg
	return out
}

// AppendReasoning adds one line to the reasoning chain.
func (s CaseState) AppendReasoning(line string) CaseState {
	out := s.clone()
	out.ReasoningChain = append(out.ReasoningChain, line)
	return out
}

// AppendStage adds one stage audit record.
func (s CaseState) AppendStage(rec StageRecord) CaseState {
	out := s.clone()
	out.Stages = append(out.Stages, rec)
	return out
}
