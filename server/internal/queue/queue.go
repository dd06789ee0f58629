package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"github.com/mediadl/mediadl/server/config"
	"github.com/mediadl/mediadl/server/internal/engine"
	"github.com/mediadl/mediadl/server/internal/kv"
)

// Topics published on the event bus, the only argument is a Row.
const (
	TopicAdded   = "task:added"
	TopicStatus  = "task:status"
	TopicRemoved = "task:removed"
)

type Queue struct {
	tasks    *kv.Store[*Task]
	launcher Launcher
	bus      EventBus.BusPublisher
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Queue)

func WithLauncher(l Launcher) Option {
	return func(q *Queue) { q.launcher = l }
}

// WithPublisher makes the queue announce task changes.
func WithPublisher(p EventBus.BusPublisher) Option {
	return func(q *Queue) { q.bus = p }
}

func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		tasks:    kv.NewStore[*Task](),
		launcher: engineLauncher{},
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

func (q *Queue) publish(topic string, t *Task) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(topic, t.row())
}

// Add enqueues one task per stream and returns how many were added.
func (q *Queue) Add(infos ...engine.StreamInfo) int {
	for _, info := range infos {
		t := newTask(uuid.NewString(), info)
		q.tasks.Set(t.id, t)

		slog.Info("task queued", slog.String("id", t.id), slog.String("title", info.Title))
		q.publish(TopicAdded, t)
	}
	return len(infos)
}

// Start launches a worker for every given task that is not running yet.
// It returns the number of workers started and never waits for a spawn.
func (q *Queue) Start(ids ...string) int {
	started := 0

	for _, id := range ids {
		t, err := q.tasks.Get(id)
		if err != nil {
			slog.Warn("cannot start unknown task", slog.String("id", id))
			continue
		}

		if err := q.launcher.Resolve(t.info.Engine); err != nil {
			slog.Error("cannot start task", slog.String("id", id), slog.Any("err", err))
			t.setError(err)
			continue
		}

		cancel, done, ok := t.begin()
		if !ok {
			continue
		}

		q.wg.Add(1)
		go q.run(t, cancel, done)

		started++
		q.publish(TopicStatus, t)
	}

	return started
}

// Stop signals the workers of the given tasks. It returns the number of
// signals actually delivered, a task can be signalled once per run.
func (q *Queue) Stop(ids ...string) int {
	sent := 0

	for _, id := range ids {
		t, err := q.tasks.Get(id)
		if err != nil {
			continue
		}
		if t.signal() {
			slog.Info("stopping task", slog.String("id", id))
			sent++
		}
	}

	return sent
}

// Remove stops and forgets the given tasks. Unknown ids are reported but do
// not prevent the others from being removed.
func (q *Queue) Remove(ids ...string) error {
	var errs []error

	for _, id := range ids {
		t, err := q.tasks.Delete(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoSuchTask, id))
			continue
		}

		t.detach()

		slog.Info("task removed", slog.String("id", id))
		q.publish(TopicRemoved, t)
	}

	return errors.Join(errs...)
}

// Snapshot returns every task in insertion order.
func (q *Queue) Snapshot() []Row {
	tasks := q.tasks.All()

	rows := make([]Row, len(tasks))
	for i, t := range tasks {
		rows[i] = t.row()
	}

	return rows
}

func (q *Queue) Get(id string) (Row, error) {
	t, err := q.tasks.Get(id)
	if err != nil {
		return Row{}, fmt.Errorf("%w: %s", ErrNoSuchTask, id)
	}
	return t.row(), nil
}

// Range returns the ids at positions [from, to) of the queue, clipped to its
// bounds.
func (q *Queue) Range(from, to int) []string {
	keys := q.tasks.Keys()

	from = max(from, 0)
	to = min(to, len(keys))
	if from >= to {
		return []string{}
	}

	return keys[from:to]
}

// Wait blocks until the current worker of the task has exited. Tasks that
// never ran return immediately.
func (q *Queue) Wait(ctx context.Context, id string) error {
	t, err := q.tasks.Get(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoSuchTask, id)
	}

	done := t.doneChan()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every task and waits for the workers to exit.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Stop(q.tasks.Keys()...)
	q.cancel()

	exited := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// saveTarget fills the missing parts of the requested target with the
// configured download path and "<title>.<ext>".
func saveTarget(info engine.StreamInfo) (dir, name string) {
	if info.Save != nil {
		dir, name = info.Save.OutputDir, info.Save.FileName
	}

	if dir == "" {
		dir = config.Instance().Paths.DownloadPath
	}
	if dir == "" {
		dir = "./"
	}

	if name == "" {
		name = info.Title + "." + info.Ext
	}

	return dir, sanitizeFileName(name)
}

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_")

func sanitizeFileName(name string) string {
	return fileNameReplacer.Replace(name)
}
