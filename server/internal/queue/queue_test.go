package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"

	"github.com/mediadl/mediadl/server/config"
	"github.com/mediadl/mediadl/server/internal/engine"
	"github.com/mediadl/mediadl/server/internal/process"
)

const (
	helperEnv = "MEDIADL_QUEUE_HELPER"
	cookieEnv = "MEDIADL_QUEUE_COOKIE"
)

// The test binary acts as a download engine when helperEnv is set.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "progress":
		for _, p := range []string{"10%", "50.5%", "100%"} {
			fmt.Print(p)
			time.Sleep(20 * time.Millisecond)
		}
	case "hang":
		fmt.Print("5%")
		time.Sleep(time.Minute)
	case "fail":
		fmt.Print("10%")
		os.Exit(2)
	case "cookie":
		b, err := os.ReadFile(os.Getenv(cookieEnv))
		if err != nil || string(b) != "session=1" {
			os.Exit(3)
		}
		fmt.Print("100%")
	}
	os.Exit(0)
}

type helperLauncher struct {
	mode string

	mu      sync.Mutex
	cookies []string
	handles []*process.Handle
}

func (l *helperLauncher) Resolve(name string) error {
	if name == "missing" {
		return engine.ErrEngineNotFound
	}
	return nil
}

func (l *helperLauncher) Launch(ctx context.Context, req LaunchRequest) (Process, error) {
	l.mu.Lock()
	l.cookies = append(l.cookies, req.CookieFile)
	l.mu.Unlock()

	h, err := process.Spawn(ctx, process.Spec{
		Path:    os.Args[0],
		Channel: process.Stdout,
		Env:     []string{helperEnv + "=" + l.mode, cookieEnv + "=" + req.CookieFile},
	})
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.handles = append(l.handles, h)
	l.mu.Unlock()

	return h, nil
}

func (l *helperLauncher) launched() []*process.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.handles)
}

// gatedLauncher holds Resolve until release is closed.
type gatedLauncher struct {
	*helperLauncher
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLauncher) Resolve(name string) error {
	close(l.entered)
	<-l.release
	return l.helperLauncher.Resolve(name)
}

func newHelperQueue(t *testing.T, mode string) (*Queue, *helperLauncher) {
	t.Helper()

	l := &helperLauncher{mode: mode}
	q := New(WithLauncher(l))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := q.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})

	return q, l
}

func stream(title string) engine.StreamInfo {
	return engine.StreamInfo{
		SourceURL: "https://example.com/" + title,
		Title:     title,
		Ext:       "mp4",
		StreamID:  "best",
		SizeBytes: 1000,
		Engine:    "fake",
		Save:      &engine.SaveTarget{OutputDir: os.TempDir()},
	}
}

func onlyID(t *testing.T, q *Queue) string {
	t.Helper()
	keys := q.tasks.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(keys))
	}
	return keys[0]
}

func wait(t *testing.T, q *Queue, id string) Row {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Wait(ctx, id); err != nil {
		t.Fatalf("wait %s: %v", id, err)
	}

	row, err := q.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return row
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLifecycle(t *testing.T) {
	q, _ := newHelperQueue(t, "progress")

	if n := q.Add(stream("clip")); n != 1 {
		t.Fatalf("added %d", n)
	}
	id := onlyID(t, q)

	if row, _ := q.Get(id); row.Status != StatusQueued {
		t.Fatalf("new task is %s", row.Status)
	}

	if n := q.Start(id); n != 1 {
		t.Fatalf("started %d", n)
	}

	row := wait(t, q, id)
	if row.Status != StatusStopped || row.Outcome != OutcomeCompleted {
		t.Fatalf("unexpected final state %s/%s (%s)", row.Status, row.Outcome, row.LastError)
	}
	if row.Progress.Fraction != 1 {
		t.Errorf("fraction %v, want 1", row.Progress.Fraction)
	}
	if row.Display.Percent != "100.0%" {
		t.Errorf("percent %q", row.Display.Percent)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	q, _ := newHelperQueue(t, "hang")
	q.Add(stream("clip"))
	id := onlyID(t, q)

	if n := q.Start(id, id); n != 1 {
		t.Fatalf("started %d, want 1", n)
	}
	if n := q.Start(id); n != 0 {
		t.Fatalf("running task started again")
	}

	if n := q.Stop(id); n != 1 {
		t.Fatalf("stop sent %d signals", n)
	}
	if n := q.Stop(id); n != 0 {
		t.Fatalf("second stop sent %d signals", n)
	}

	row := wait(t, q, id)
	if row.Status != StatusStopped || row.Outcome != OutcomeCancelled {
		t.Fatalf("unexpected final state %s/%s", row.Status, row.Outcome)
	}
}

func TestStopQueuedTask(t *testing.T) {
	q, _ := newHelperQueue(t, "hang")
	q.Add(stream("clip"))

	if n := q.Stop(onlyID(t, q)); n != 0 {
		t.Errorf("stopping a queued task sent %d signals", n)
	}
}

func TestConcurrentStop(t *testing.T) {
	q, _ := newHelperQueue(t, "hang")
	q.Add(stream("clip"))
	id := onlyID(t, q)
	q.Start(id)

	var (
		wg   sync.WaitGroup
		sent atomic.Int32
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sent.Add(int32(q.Stop(id)))
		}()
	}
	wg.Wait()

	if sent.Load() != 1 {
		t.Errorf("%d signals sent, want 1", sent.Load())
	}
	wait(t, q, id)
}

func TestRestartKeepsProgress(t *testing.T) {
	q, _ := newHelperQueue(t, "hang")
	q.Add(stream("clip"))
	id := onlyID(t, q)

	q.Start(id)
	waitFor(t, func() bool {
		row, _ := q.Get(id)
		return row.Progress.Fraction > 0
	})

	q.Stop(id)
	wait(t, q, id)

	if n := q.Start(id); n != 1 {
		t.Fatalf("stopped task not restarted")
	}

	row, _ := q.Get(id)
	if row.Status != StatusRunning || row.Progress.Fraction != 0.05 {
		t.Errorf("unexpected restarted state %s %v", row.Status, row.Progress.Fraction)
	}
}

func TestRemove(t *testing.T) {
	q, _ := newHelperQueue(t, "hang")
	q.Add(stream("a"), stream("b"))

	keys := q.tasks.Keys()
	q.Start(keys[0])

	err := q.Remove(keys[0], "does-not-exist")
	if !errors.Is(err, ErrNoSuchTask) {
		t.Fatalf("expected ErrNoSuchTask, got %v", err)
	}

	rows := q.Snapshot()
	if len(rows) != 1 || rows[0].ID != keys[1] {
		t.Fatalf("unexpected rows after remove %+v", rows)
	}

	if err := q.Remove(keys[0]); !errors.Is(err, ErrNoSuchTask) {
		t.Errorf("second remove: expected ErrNoSuchTask, got %v", err)
	}
}

func TestRemoveTerminatesEngine(t *testing.T) {
	q, l := newHelperQueue(t, "hang")
	q.Add(stream("clip"))
	id := onlyID(t, q)
	q.Start(id)

	waitFor(t, func() bool {
		row, _ := q.Get(id)
		return row.Progress.Fraction > 0
	})

	handles := l.launched()
	if len(handles) != 1 {
		t.Fatalf("expected one engine process, got %d", len(handles))
	}

	if err := q.Remove(id); err != nil {
		t.Fatal(err)
	}
	if len(q.Snapshot()) != 0 {
		t.Fatalf("removed task still listed")
	}

	select {
	case <-handles[0].Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("engine still running after remove")
	}
}

func TestRemoveDuringStart(t *testing.T) {
	l := &gatedLauncher{
		helperLauncher: &helperLauncher{mode: "hang"},
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	q := New(WithLauncher(l))

	q.Add(stream("clip"))
	id := onlyID(t, q)

	started := make(chan int, 1)
	go func() { started <- q.Start(id) }()

	<-l.entered
	if err := q.Remove(id); err != nil {
		t.Fatal(err)
	}
	close(l.release)

	if n := <-started; n != 0 {
		t.Errorf("removed task started %d workers", n)
	}
	if n := len(l.launched()); n != 0 {
		t.Errorf("%d engines launched for a removed task", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestDisarm(t *testing.T) {
	tk := newTask("a", stream("clip"))
	cancel, _, ok := tk.begin()
	if !ok {
		t.Fatal("task did not begin")
	}

	if !tk.disarm() {
		t.Fatal("fresh run already disarmed")
	}
	if tk.signal() {
		t.Error("stop counted after the run stopped listening")
	}
	select {
	case <-cancel:
		t.Error("signal delivered to a disarmed run")
	default:
	}

	tk = newTask("b", stream("clip"))
	tk.begin()
	tk.signal()
	if tk.disarm() {
		t.Error("delivered stop was withdrawn")
	}
}

func TestDetachedTaskNeverBegins(t *testing.T) {
	tk := newTask("a", stream("clip"))
	if tk.detach() {
		t.Error("queued task signalled on detach")
	}
	if _, _, ok := tk.begin(); ok {
		t.Error("detached task began")
	}
}

func TestETASecondsClamped(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{42.9, 42},
		{-1, 0},
		{math.NaN(), 0},
		{1e300, maxETASeconds},
		{math.Inf(1), maxETASeconds},
	}

	for _, tt := range tests {
		if got := etaSeconds(tt.in); got != tt.want {
			t.Errorf("etaSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}

	tk := newTask("a", stream("clip"))
	tk.progress.ETASeconds = 1e300
	if eta := tk.row().Display.ETA; !strings.HasPrefix(eta, ">= ") || !strings.HasSuffix(eta, "d") {
		t.Errorf("unexpected eta %q", eta)
	}
}

func TestExitFailure(t *testing.T) {
	q, _ := newHelperQueue(t, "fail")
	q.Add(stream("clip"))
	id := onlyID(t, q)
	q.Start(id)

	row := wait(t, q, id)
	if row.Status != StatusStopped || row.Outcome != OutcomeFailed || row.LastError == "" {
		t.Errorf("unexpected final state %+v", row)
	}
}

func TestUnknownEngine(t *testing.T) {
	q, _ := newHelperQueue(t, "progress")

	info := stream("clip")
	info.Engine = "missing"
	q.Add(info)
	id := onlyID(t, q)

	if n := q.Start(id); n != 0 {
		t.Fatalf("task with unknown engine started")
	}

	row, _ := q.Get(id)
	if row.Status != StatusQueued || row.LastError == "" {
		t.Errorf("unexpected state %+v", row)
	}
}

func TestSpawnFailure(t *testing.T) {
	cfg := config.Instance()
	cfg.Engines["lux"] = "/nonexistent/lux"
	t.Cleanup(func() { delete(cfg.Engines, "lux") })

	q := New()
	t.Cleanup(func() { q.Shutdown(context.Background()) })

	info := stream("clip")
	info.Engine = "lux"
	q.Add(info)
	id := onlyID(t, q)

	if n := q.Start(id); n != 1 {
		t.Fatalf("started %d", n)
	}

	row := wait(t, q, id)
	if row.Status != StatusQueued {
		t.Errorf("status %s, want %s", row.Status, StatusQueued)
	}
	if !strings.Contains(row.LastError, process.ErrSpawnFailed.Error()) {
		t.Errorf("unexpected last error %q", row.LastError)
	}
}

func TestCookieFileLifetime(t *testing.T) {
	q, l := newHelperQueue(t, "cookie")

	info := stream("clip")
	info.Cookies = "session=1"
	q.Add(info)
	id := onlyID(t, q)
	q.Start(id)

	row := wait(t, q, id)
	if row.Outcome != OutcomeCompleted {
		t.Fatalf("engine did not see the cookie file: %+v", row)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.cookies) != 1 || l.cookies[0] == "" {
		t.Fatalf("unexpected cookie files %v", l.cookies)
	}
	if _, err := os.Stat(l.cookies[0]); !os.IsNotExist(err) {
		t.Errorf("cookie file not removed: %v", err)
	}
}

func TestSnapshotOrder(t *testing.T) {
	q, _ := newHelperQueue(t, "progress")
	q.Add(stream("a"), stream("b"), stream("c"))

	titles := func() []string {
		var out []string
		for _, r := range q.Snapshot() {
			out = append(out, r.Title)
		}
		return out
	}

	if got := titles(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected order %v", got)
	}

	q.Remove(q.Range(1, 2)...)

	if got := titles(); !slices.Equal(got, []string{"a", "c"}) {
		t.Fatalf("unexpected order after remove %v", got)
	}

	if got := q.Range(-5, 100); len(got) != 2 {
		t.Errorf("range not clipped: %v", got)
	}
	if got := q.Range(2, 1); len(got) != 0 {
		t.Errorf("empty range returned %v", got)
	}
}

func TestEvents(t *testing.T) {
	bus := EventBus.New()

	var added []Row
	bus.Subscribe(TopicAdded, func(r Row) { added = append(added, r) })

	q := New(WithPublisher(bus), WithLauncher(&helperLauncher{mode: "progress"}))
	q.Add(stream("a"), stream("b"))

	if len(added) != 2 || added[0].Title != "a" || added[1].Status != StatusQueued {
		t.Errorf("unexpected events %+v", added)
	}
}

func TestSaveTarget(t *testing.T) {
	cfg := config.Instance()
	prev := cfg.Paths.DownloadPath
	cfg.Paths.DownloadPath = "/downloads"
	t.Cleanup(func() { cfg.Paths.DownloadPath = prev })

	tests := []struct {
		name     string
		info     engine.StreamInfo
		dir, out string
	}{
		{
			"default",
			engine.StreamInfo{Title: "Clip", Ext: "mp4"},
			"/downloads", "Clip.mp4",
		},
		{
			"explicit",
			engine.StreamInfo{Title: "Clip", Ext: "mp4", Save: &engine.SaveTarget{OutputDir: "/tmp", FileName: "Clip[hd]"}},
			"/tmp", "Clip[hd]",
		},
		{
			"sanitized",
			engine.StreamInfo{Title: "AC/DC", Ext: "mp3"},
			"/downloads", "AC_DC.mp3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, name := saveTarget(tt.info)
			if dir != tt.dir || name != tt.out {
				t.Errorf("got %q %q, want %q %q", dir, name, tt.dir, tt.out)
			}
		})
	}
}
