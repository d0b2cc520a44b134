package models

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("another run is in progress")

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is a background execution of a workbench action.
type Run struct {
	ID         string     `json:"id"`
	Action     string     `json:"action"`
	File       string     `json:"file"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Report     *Report    `json:"report,omitempty"`
	Output     []string   `json:"output"`
	mu         sync.Mutex
}

type runJSON Run

// MarshalJSON encodes the run under its lock.
func (r *Run) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Marshal((*runJSON)(r))
}

// AppendLog adds a log line to the run output.
func (r *Run) AppendLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Output = append(r.Output, line)
}

// Write implements io.Writer so a logger can be teed into the run output.
// Each newline-terminated line becomes one log line.
func (r *Run) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		r.AppendLog(line)
	}
	return len(p), nil
}

// Sync satisfies zapcore.WriteSyncer.
func (r *Run) Sync() error { return nil }

// LogsSince returns log lines starting from the given index.
func (r *Run) LogsSince(offset int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= len(r.Output) {
		return nil
	}
	lines := make([]string, len(r.Output)-offset)
	copy(lines, r.Output[offset:])
	return lines
}

// Done reports whether the run has finished.
func (r *Run) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status != RunRunning
}

// State returns the current status under the lock.
func (r *Run) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status
}

// Complete marks the run as completed with its report.
func (r *Run) Complete(report *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunCompleted
	r.Report = report
	now := time.Now()
	r.FinishedAt = &now
}

// Fail marks the run as failed. The report may be partial or nil.
func (r *Run) Fail(err string, report *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunFailed
	r.Error = err
	r.Report = report
	now := time.Now()
	r.FinishedAt = &now
}

// RunStore is an in-memory thread-safe store for runs. At most one run is
// active at a time.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	active *Run
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

// Begin registers a new running run, or returns ErrRunInProgress.
func (s *RunStore) Begin(action, file string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && !s.active.Done() {
		return nil, ErrRunInProgress
	}
	r := &Run{
		ID:        uuid.New().String(),
		Action:    action,
		File:      file,
		Status:    RunRunning,
		StartedAt: time.Now(),
		Output:    []string{},
	}
	s.runs[r.ID] = r
	s.active = r
	return r, nil
}

// Get returns a run by ID.
func (s *RunStore) Get(id string) *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[id]
}

// List returns all runs, most recent first.
func (s *RunStore) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}
