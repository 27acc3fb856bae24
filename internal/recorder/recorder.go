package recorder

import "time"

// RetrainRun is one retrain cycle as written to the run ledger.
type RetrainRun struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Symbol     string
	Version    string // empty unless a new artifact was published
	Stage      string // last stage reached
	Outcome    string // "ok" or "failed"
	Error      string
	Rows       int
	Added      int
	DataFrom   time.Time
	DataTo     time.Time
}

// Recorder persists retrain history for later analysis.
type Recorder interface {
	RecordRetrain(run *RetrainRun) error
	RecentRetrains(limit int) ([]RetrainRun, error)
	Close() error
}

// NoopRecorder is used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRetrain(_ *RetrainRun) error           { return nil }
func (n *NoopRecorder) RecentRetrains(_ int) ([]RetrainRun, error) { return nil, nil }
func (n *NoopRecorder) Close() error                               { return nil }
