// Package guideline holds the diagnosis-keyed clinical guideline table and
// the compliance checker that evaluates canonical evidence against it.
package guideline

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// CappedTier is the insurance tier the legacy max_cost_tier_4 rule applies to.
const CappedTier = "Tier 4"

// DefaultMaxCostTier4 is used when the table does not configure a Tier 4 ceiling.
const DefaultMaxCostTier4 = 3000

// ErrMalformedRule marks a guideline entry the checker cannot evaluate.
var ErrMalformedRule = eris.New("malformed guideline rule")

// Rule is the guideline entry for one diagnosis.
type Rule struct {
	FirstLine           []string           `yaml:"first_line" json:"first_line"`
	SecondLine          []string           `yaml:"second_line" json:"second_line"`
	StepTherapyRequired bool               `yaml:"step_therapy_required" json:"step_therapy_required"`
	CostTierLimits      map[string]float64 `yaml:"cost_tier_limits,omitempty" json:"cost_tier_limits,omitempty"`

	DurationLimit     string   `yaml:"duration_limit,omitempty" json:"duration_limit,omitempty"`
	LabRequirements   []string `yaml:"lab_requirements,omitempty" json:"lab_requirements,omitempty"`
	Contraindications []string `yaml:"contraindications,omitempty" json:"contraindications,omitempty"`
	Monitoring        string   `yaml:"monitoring,omitempty" json:"monitoring,omitempty"`
	MaxCostPerMonth   float64  `yaml:"max_cost_per_month,omitempty" json:"max_cost_per_month,omitempty"`
}

// IsSecondLine reports whether drug is listed as second-line therapy.
func (r Rule) IsSecondLine(drug string) bool {
	for _, d := range r.SecondLine {
		if d == drug {
			return true
		}
	}
	return false
}

// GeneralRules apply across diagnoses.
type GeneralRules struct {
	MaxCostTier4          *float64           `yaml:"max_cost_tier_4,omitempty" json:"max_cost_tier_4,omitempty"`
	CostTierLimits        map[string]float64 `yaml:"cost_tier_limits,omitempty" json:"cost_tier_limits,omitempty"`
	EmergencyOverride     *bool              `yaml:"emergency_override,omitempty" json:"emergency_override,omitempty"`
	AppealProcessDays     int                `yaml:"appeal_process_days,omitempty" json:"appeal_process_days,omitempty"`
	DocumentationRequired []string           `yaml:"documentation_required,omitempty" json:"documentation_required,omitempty"`
}

// Tier4Ceiling returns the configured Tier 4 ceiling, or DefaultMaxCostTier4
// when the table leaves it unset. An explicit 0 is honored.
func (g GeneralRules) Tier4Ceiling() float64 {
	if g.MaxCostTier4 == nil {
		return DefaultMaxCostTier4
	}
	return *g.MaxCostTier4
}

// EmergencyOverrideEnabled defaults to true when the table does not say.
func (g GeneralRules) EmergencyOverrideEnabled() bool {
	return g.EmergencyOverride == nil || *g.EmergencyOverride
}

// Table is the full guideline table. It is read-only after load and safe to
// share between concurrent checkers.
type Table struct {
	Guidelines   map[string]Rule `yaml:"guidelines" json:"guidelines"`
	GeneralRules GeneralRules    `yaml:"general_rules" json:"general_rules"`
}

// Lookup returns the rule for a diagnosis.
func (t *Table) Lookup(diagnosis string) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	r, ok := t.Guidelines[diagnosis]
	return r, ok
}

// CostCeiling returns the maximum monthly cost for a tier under a diagnosis.
// Per-diagnosis limits win over general limits; the legacy Tier 4 ceiling is
// the last fallback. ok is false when the tier is uncapped.
func (t *Table) CostCeiling(diagnosis, tier string) (ceiling float64, ok bool) {
	if t == nil {
		return 0, false
	}
	if r, found := t.Guidelines[diagnosis]; found {
		if c, set := r.CostTierLimits[tier]; set {
			return c, true
		}
	}
	if c, set := t.GeneralRules.CostTierLimits[tier]; set {
		return c, true
	}
	if tier == CappedTier {
		return t.GeneralRules.Tier4Ceiling(), true
	}
	return 0, false
}

// Diagnoses returns the configured diagnosis names, sorted.
func (t *Table) Diagnoses() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.Guidelines))
	for name := range t.Guidelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every rule and returns all problems in one error.
func (t *Table) Validate() error {
	if t == nil {
		return eris.New("guideline: nil table")
	}
	var errs []string
	for _, name := range t.Diagnoses() {
		if err := validateRule(name, t.Guidelines[name]); err != nil {
			errs = append(errs, err.Error())
		}
	}
	for tier, c := range t.GeneralRules.CostTierLimits {
		if c < 0 {
			errs = append(errs, fmt.Sprintf("general_rules: cost limit for %s must be >= 0", tier))
		}
	}
	if t.GeneralRules.Tier4Ceiling() < 0 {
		errs = append(errs, "general_rules: max_cost_tier_4 must be >= 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("guideline: table validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRule(diagnosis string, r Rule) error {
	if strings.TrimSpace(diagnosis) == "" {
		return eris.Wrap(ErrMalformedRule, "empty diagnosis name")
	}
	if r.StepTherapyRequired && len(r.FirstLine) == 0 {
		return eris.Wrapf(ErrMalformedRule, "%s: step therapy required but no first-line drugs listed", diagnosis)
	}
	for tier, c := range r.CostTierLimits {
		if c < 0 {
			return eris.Wrapf(ErrMalformedRule, "%s: cost limit for %s must be >= 0", diagnosis, tier)
		}
	}
	return nil
}

// LoadTable reads a guideline table from a YAML or JSON file. A missing file
// is returned as an os.ErrNotExist-wrapping error so callers can fall back to
// DefaultTable.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "guideline: read table %s", path)
	}
	return ParseTable(data)
}

// ParseTable decodes a guideline table. JSON is accepted as a YAML subset.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "guideline: parse table")
	}
	if t.Guidelines == nil {
		t.Guidelines = map[string]Rule{}
	}
	return &t, nil
}

// DefaultTable returns the built-in minimal table used when no external
// guideline source is available.
func DefaultTable() *Table {
	override := true
	tier4 := float64(DefaultMaxCostTier4)
	return &Table{
		Guidelines: map[string]Rule{
			"Rheumatoid Arthritis": {
				FirstLine:           []string{"Methotrexate"},
				SecondLine:          []string{"Adalimumab", "Etanercept"},
				StepTherapyRequired: true,
				DurationLimit:       "6 months initial",
			},
			"Type 2 Diabetes": {
				FirstLine:           []string{"Metformin"},
				SecondLine:          []string{"Insulin", "Semaglutide"},
				StepTherapyRequired: true,
				DurationLimit:       "12 months",
			},
		},
		GeneralRules: GeneralRules{
			MaxCostTier4:      &tier4,
			EmergencyOverride: &override,
		},
	}
}
