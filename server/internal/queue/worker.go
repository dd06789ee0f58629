package queue

import (
	"log/slog"

	"github.com/mediadl/mediadl/server/internal/cookies"
	"github.com/mediadl/mediadl/server/internal/watch"
)

// run drives one task from spawn to StatusStopped. Only this goroutine changes
// the task's status and progress while it runs.
func (q *Queue) run(t *Task, cancel <-chan struct{}, done chan struct{}) {
	defer q.wg.Done()
	defer close(done)

	log := slog.With(slog.String("id", t.id), slog.String("engine", t.info.Engine))
	log.Info("download worker started")

	dir, name := saveTarget(t.info)

	var cookieFile string
	if t.info.Cookies != "" {
		path, cleanup, err := cookies.Write(t.info.Cookies)
		if err != nil {
			log.Error("failed to write cookie file", slog.Any("err", err))
			t.finish(StatusQueued, OutcomeFailed, err)
			q.publish(TopicStatus, t)
			return
		}
		defer cleanup()
		cookieFile = path
	}

	proc, err := q.launcher.Launch(q.ctx, LaunchRequest{
		Info:       t.info,
		OutputDir:  dir,
		OutputName: name,
		CookieFile: cookieFile,
	})
	if err != nil {
		log.Error("failed to spawn engine", slog.Any("err", err))
		t.finish(StatusQueued, OutcomeFailed, err)
		q.publish(TopicStatus, t)
		return
	}

	samples := make(chan watch.Sample)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		defer close(samples)
		readErr <- watch.WatchProgress(proc.Progress(), func(s watch.Sample) {
			select {
			case samples <- s:
			case <-quit:
			}
		})
	}()

	est := watch.NewEstimator(t.info.SizeBytes, q.now(), t.fraction())

	for {
		// the signal wins over pending output
		select {
		case <-cancel:
			q.kill(t, proc)
			return
		default:
		}

		select {
		case <-cancel:
			q.kill(t, proc)
			return

		case s, ok := <-samples:
			if !ok {
				// a stop that arrived with the end of output still wins
				if !t.disarm() {
					q.kill(t, proc)
					return
				}
				q.complete(t, proc, <-readErr)
				return
			}
			if !s.Valid {
				log.Debug("unparsable progress sample")
				continue
			}
			if e, changed := est.Observe(s.Fraction, q.now()); changed {
				t.setProgress(e)
			}
		}
	}
}

func (q *Queue) kill(t *Task, proc Process) {
	proc.Kill()
	t.finish(StatusStopped, OutcomeCancelled, nil)
	q.publish(TopicStatus, t)

	// reap
	if err := proc.Wait(); err != nil {
		slog.Debug("killed engine exited", slog.String("id", t.id), slog.Any("err", err))
	}
}

func (q *Queue) complete(t *Task, proc Process, readErr error) {
	waitErr := proc.Wait()

	switch {
	case readErr != nil:
		slog.Error("failed reading engine progress", slog.String("id", t.id), slog.Any("err", readErr))
		t.finish(StatusStopped, OutcomeFailed, readErr)
	case waitErr != nil:
		slog.Error("engine exited with error", slog.String("id", t.id), slog.Any("err", waitErr))
		t.finish(StatusStopped, OutcomeFailed, waitErr)
	default:
		slog.Info("download completed", slog.String("id", t.id))
		t.finish(StatusStopped, OutcomeCompleted, nil)
	}

	q.publish(TopicStatus, t)
}
