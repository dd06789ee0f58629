package queue

import (
	"errors"
	"math"
	"sync"

	"github.com/mediadl/mediadl/server/internal/engine"
	"github.com/mediadl/mediadl/server/internal/format"
	"github.com/mediadl/mediadl/server/internal/watch"
)

var ErrNoSuchTask = errors.New("no task found for the given id")

type Status string

const (
	StatusQueued  Status = "Queued"
	StatusRunning Status = "Running"
	StatusStopped Status = "Stopped"
)

func (s Status) IsActive() bool { return s == StatusRunning }

// Outcome tells why a task reached StatusStopped.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

type Progress struct {
	Fraction         float64 `json:"fraction"`
	SpeedBytesPerSec float64 `json:"speed"`
	ETASeconds       float64 `json:"eta"`
}

// Display holds the human readable progress fields.
type Display struct {
	Size    string `json:"size"`
	Speed   string `json:"speed"`
	Percent string `json:"percent"`
	ETA     string `json:"eta"`
}

// Row is a point in time copy of a task.
type Row struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Site      string   `json:"site"`
	Ext       string   `json:"ext"`
	Stream    string   `json:"stream"`
	Engine    string   `json:"engine"`
	SizeBytes int64    `json:"size_bytes"`
	Status    Status   `json:"status"`
	Outcome   Outcome  `json:"outcome,omitempty"`
	LastError string   `json:"last_error,omitempty"`
	Progress  Progress `json:"progress"`
	Display   Display  `json:"display"`
}

type Task struct {
	id   string
	info engine.StreamInfo

	mu        sync.Mutex
	status    Status
	outcome   Outcome
	progress  Progress
	lastError string
	// present only while a worker runs, consumed by the first stop
	cancel chan struct{}
	done   chan struct{}
	// set once the task left the queue, it never runs again
	removed bool
}

func newTask(id string, info engine.StreamInfo) *Task {
	return &Task{
		id:     id,
		info:   info,
		status: StatusQueued,
		progress: Progress{
			ETASeconds: watch.InitialETA.Seconds(),
		},
	}
}

// begin moves the task to StatusRunning unless it already runs or was
// removed.
func (t *Task) begin() (cancel <-chan struct{}, done chan struct{}, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.removed || t.status.IsActive() {
		return nil, nil, false
	}

	c := make(chan struct{}, 1)
	t.status = StatusRunning
	t.outcome = OutcomeNone
	t.lastError = ""
	t.cancel = c
	t.done = make(chan struct{})

	return c, t.done, true
}

// signal delivers the cancellation at most once per run.
func (t *Task) signal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.signalLocked()
}

func (t *Task) signalLocked() bool {
	if t.cancel == nil {
		return false
	}

	t.cancel <- struct{}{}
	t.cancel = nil

	return true
}

// detach marks the task as removed and signals its worker, if any. A begin
// racing with it either happened before, and its worker gets the signal, or
// it fails.
func (t *Task) detach() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removed = true
	return t.signalLocked()
}

// disarm withdraws the cancellation of the current run. It reports false
// when a stop was already delivered.
func (t *Task) disarm() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel == nil {
		return false
	}
	t.cancel = nil

	return true
}

func (t *Task) finish(status Status, outcome Outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
	t.outcome = outcome
	t.cancel = nil
	if err != nil {
		t.lastError = err.Error()
	}
}

func (t *Task) setProgress(e watch.Estimate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.progress = Progress{
		Fraction:         e.Fraction,
		SpeedBytesPerSec: e.SpeedBytesPerSec,
		ETASeconds:       e.ETASeconds,
	}
}

func (t *Task) fraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.progress.Fraction
}

func (t *Task) setError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastError = err.Error()
}

func (t *Task) doneChan() chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.done
}

func (t *Task) row() Row {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Row{
		ID:        t.id,
		Title:     t.info.Title,
		Site:      t.info.Site,
		Ext:       t.info.Ext,
		Stream:    t.info.DisplayName,
		Engine:    t.info.Engine,
		SizeBytes: t.info.SizeBytes,
		Status:    t.status,
		Outcome:   t.outcome,
		LastError: t.lastError,
		Progress:  t.progress,
		Display: Display{
			Size:    format.Size(t.info.SizeBytes),
			Speed:   format.Speed(t.progress.SpeedBytesPerSec),
			Percent: format.Percent(t.progress.Fraction),
			ETA:     format.ETA(etaSeconds(t.progress.ETASeconds)),
		},
	}
}

// Upper bound of a displayed ETA, far below the int64 limit.
const maxETASeconds = math.MaxInt64 / 2

func etaSeconds(eta float64) int64 {
	switch {
	case math.IsNaN(eta) || eta < 0:
		return 0
	case eta >= maxETASeconds:
		return maxETASeconds
	default:
		return int64(eta)
	}
}
