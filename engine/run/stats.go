package run

import (
	"time"

	"github.com/agentctl/agentctl/engine/core"
)

// WorkflowStats aggregates outcomes across the runs of one workflow.
type WorkflowStats struct {
	TotalRuns       int             `json:"total_runs"`
	SuccessfulRuns  int             `json:"successful_runs"`
	FailedRuns      int             `json:"failed_runs"`
	TotalCost       float64         `json:"total_cost"`
	TotalTokens     int             `json:"total_tokens"`
	LastRunDate     *time.Time      `json:"last_run_date,omitempty"`
	LastRunStatus   *core.RunStatus `json:"last_run_status,omitempty"`
	AverageDuration *float64        `json:"average_duration,omitempty"`
}

// SuccessRate is the fraction of runs that completed, in [0, 1].
func (s *WorkflowStats) SuccessRate() float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return float64(s.SuccessfulRuns) / float64(s.TotalRuns)
}

// AverageCost is the mean cost per run, or false when no runs exist.
func (s *WorkflowStats) AverageCost() (float64, bool) {
	if s.TotalRuns == 0 {
		return 0, false
	}
	return s.TotalCost / float64(s.TotalRuns), true
}

// RecordRun folds one finished run into the aggregate.
func (s *WorkflowStats) RecordRun(r *WorkflowRun) {
	s.TotalRuns++
	switch r.Status {
	case core.RunCompleted:
		s.SuccessfulRuns++
	case core.RunFailed:
		s.FailedRuns++
	}
	s.TotalCost += r.TotalCost()
	s.TotalTokens += r.TotalTokens()

	last := r.StartTime
	if r.EndTime != nil {
		last = *r.EndTime
	}
	s.LastRunDate = &last
	status := r.Status
	s.LastRunStatus = &status

	if d, ok := r.Duration(); ok {
		seconds := d.Seconds()
		if s.AverageDuration == nil {
			s.AverageDuration = &seconds
		} else {
			avg := (*s.AverageDuration*float64(s.TotalRuns-1) + seconds) / float64(s.TotalRuns)
			s.AverageDuration = &avg
		}
	}
}
