package decision

import "github.com/sells-group/priorauth/internal/model"

// Recommendation texts.
const (
	RecTryFirstLine       = "Try first-line therapy as recommended in clinical guidelines"
	RecGenericAlternative = "Consider generic alternatives or patient assistance programs"
	RecEnhancedMonitoring = "Enhanced monitoring required due to risk factors"
	RecFollowUp30Days     = "Schedule follow-up appointment in 30 days"
	RecSubmitDocs         = "Submit additional clinical documentation"
	RecReviewTime         = "Expected review time: 24-48 hours"
)

// Recommendations returns the follow-up actions for an outcome. Denials
// list the step-therapy advice before the cost advice.
func Recommendations(outcome model.Outcome, in Inputs) []string {
	recs := []string{}
	switch outcome {
	case model.OutcomeDenied:
		if in.StepTherapyFailed {
			recs = append(recs, RecTryFirstLine)
		}
		if in.CostLimitFailed {
			recs = append(recs, RecGenericAlternative)
		}
	case model.OutcomeApprovedWithConditions:
		recs = append(recs, RecEnhancedMonitoring, RecFollowUp30Days)
	case model.OutcomePendingReview:
		recs = append(recs, RecSubmitDocs, RecReviewTime)
	}
	return recs
}
