package guideline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/priorauth/internal/model"
)

// Checker evaluates evidence against a guideline table.
type Checker struct {
	table *Table
}

// NewChecker creates a Checker. A nil table falls back to DefaultTable.
func NewChecker(t *Table) *Checker {
	if t == nil {
		t = DefaultTable()
	}
	return &Checker{table: t}
}

// Table returns the table the checker evaluates against.
func (c *Checker) Table() *Table {
	return c.table
}

// Check runs the step-therapy and cost-limit rules. Absent evidence or an
// unknown diagnosis yields a compliant result. An error is returned only
// when the matched rule is malformed.
func (c *Checker) Check(ev *model.CanonicalEvidence) (model.ComplianceResult, error) {
	if ev == nil {
		ev = &model.CanonicalEvidence{}
	}

	step, err := c.checkStepTherapy(ev)
	if err != nil {
		return model.ComplianceResult{}, err
	}
	cost, err := c.checkCostLimits(ev)
	if err != nil {
		return model.ComplianceResult{}, err
	}

	return model.ComplianceResult{
		StepTherapy:      step,
		CostLimits:       cost,
		OverallCompliant: step.Compliant && cost.Compliant,
	}, nil
}

func (c *Checker) checkStepTherapy(ev *model.CanonicalEvidence) (model.CheckResult, error) {
	rule, ok := c.table.Lookup(ev.MedicalHistory.Diagnosis)
	if !ok || !rule.StepTherapyRequired {
		return model.CheckResult{Compliant: true, Reason: "Step therapy not required"}, nil
	}
	if len(rule.FirstLine) == 0 {
		return model.CheckResult{}, eris.Wrapf(ErrMalformedRule,
			"%s: step therapy required but no first-line drugs listed", ev.MedicalHistory.Diagnosis)
	}

	if rule.IsSecondLine(ev.CurrentRequest.Medication) && !ev.MedicalHistory.HasTriedAny(rule.FirstLine) {
		return model.CheckResult{
			Compliant: false,
			Reason:    "Must try first-line therapy: " + strings.Join(rule.FirstLine, ", "),
		}, nil
	}
	return model.CheckResult{Compliant: true, Reason: "Step therapy requirements met"}, nil
}

func (c *Checker) checkCostLimits(ev *model.CanonicalEvidence) (model.CheckResult, error) {
	tier := ev.InsuranceInfo.Tier
	ceiling, capped := c.table.CostCeiling(ev.MedicalHistory.Diagnosis, tier)
	if !capped {
		return model.CheckResult{Compliant: true, Reason: "Cost within acceptable limits"}, nil
	}
	if ceiling < 0 {
		return model.CheckResult{}, eris.Wrapf(ErrMalformedRule, "negative cost ceiling for %s", tier)
	}

	cost := ev.InsuranceInfo.EstimatedCost
	if cost > ceiling {
		return model.CheckResult{
			Compliant: false,
			Reason:    fmt.Sprintf("Cost $%s exceeds %s limit $%s", FormatAmount(cost), tier, FormatAmount(ceiling)),
		}, nil
	}
	return model.CheckResult{Compliant: true, Reason: "Cost within acceptable limits"}, nil
}

// FormatAmount renders a dollar amount without trailing zeros.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
