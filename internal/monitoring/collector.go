// Package monitoring watches recent PA evaluations and raises alerts when
// failure, denial or review-backlog levels cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/store"
)

// collectLimit bounds how many recent runs one snapshot reads.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of evaluation health.
type MetricsSnapshot struct {
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	InFlight      int     `json:"in_flight"`
	FailRate      float64 `json:"fail_rate"`
	Approved      int     `json:"approved"`
	Denied        int     `json:"denied"`
	PendingReview int     `json:"pending_review"`
	DenialRate    float64 `json:"denial_rate"`
	AvgConfidence float64 `json:"avg_confidence"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of the run store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot over runs created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var confidence float64
	decided := 0
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		switch r.Status {
		case model.StatusCompleted:
			snap.Completed++
		case model.StatusFailed:
			snap.Failed++
		default:
			snap.InFlight++
		}

		switch r.Outcome() {
		case model.OutcomeApproved, model.OutcomeApprovedWithConditions:
			snap.Approved++
		case model.OutcomeDenied:
			snap.Denied++
		case model.OutcomePendingReview:
			snap.PendingReview++
		}
		if r.State != nil && r.State.Decision != nil {
			decided++
			confidence += r.State.Decision.Confidence
		}
	}

	if finished := snap.Completed + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if decided > 0 {
		snap.DenialRate = float64(snap.Denied) / float64(decided)
		snap.AvgConfidence = confidence / float64(decided)
	}

	return snap, nil
}
