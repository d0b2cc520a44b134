package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is what happened to a desired object during a run.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeExists  Outcome = "exists"  // found remotely, left untouched
	OutcomePlanned Outcome = "planned" // dry run: would be created
	OutcomeFailed  Outcome = "failed"
)

// Result records the outcome for one desired object.
type Result struct {
	Key     Key     `json:"key"`
	Outcome Outcome `json:"outcome"`
	Moid    string  `json:"moid,omitempty"`
	Note    string  `json:"note,omitempty"`
	Error   string  `json:"error,omitempty"`
	Err     error   `json:"-"`
}

// Report summarises a run: per-object results plus the rows the reader rejected.
type Report struct {
	RunID      string             `json:"run_id"`
	Action     string             `json:"action"`
	DryRun     bool               `json:"dry_run"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Results    []Result           `json:"results"`
	Validation []*ValidationError `json:"validation,omitempty"`
	Aborted    string             `json:"aborted,omitempty"`
}

// NewReport starts a report with a fresh run ID.
func NewReport(action string) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Action:    action,
		StartedAt: time.Now(),
		Results:   []Result{},
	}
}

// Add appends a result.
func (r *Report) Add(res Result) {
	if res.Err != nil && res.Error == "" {
		res.Error = res.Err.Error()
	}
	r.Results = append(r.Results, res)
}

// Abort records the fatal error that stopped the run.
func (r *Report) Abort(err error) {
	r.Aborted = err.Error()
}

// Finish stamps the end time.
func (r *Report) Finish() {
	now := time.Now()
	r.FinishedAt = &now
}

// Count returns the number of results with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// HasFailures reports failed objects, rejected rows or an aborted run.
func (r *Report) HasFailures() bool {
	return r.Count(OutcomeFailed) > 0 || len(r.Validation) > 0 || r.Aborted != ""
}
