package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Channel is the output stream of an engine that carries its progress.
type Channel int

const (
	Stdout Channel = iota
	Stderr
)

func (c Channel) String() string {
	if c == Stderr {
		return "stderr"
	}
	return "stdout"
}

var ErrSpawnFailed = errors.New("failed to spawn engine process")

// Grace period between the polite termination request and the forced kill.
const killGrace = 3 * time.Second

type Spec struct {
	Path    string
	Args    []string
	Channel Channel
	// Extra environment entries appended to the current environment.
	Env []string
}

// Handle owns a running engine process.
type Handle struct {
	cmd      *exec.Cmd
	progress io.ReadCloser

	killOnce sync.Once
	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
}

// Command builds an exec.Cmd with the platform process attributes applied:
// a dedicated process group on unix, a hidden console on windows.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = killGrace
	return cmd
}

// Spawn starts the engine binary with null stdin. Only the progress channel
// is piped back to the caller, the other one is discarded.
func Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	// the lifetime of the process is bound to Kill, not to ctx
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.SysProcAttr = sysProcAttr()
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	var (
		r   io.ReadCloser
		err error
	)

	switch spec.Channel {
	case Stderr:
		r, err = cmd.StderrPipe()
	default:
		r, err = cmd.StdoutPipe()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		slog.Error(
			"failed to start engine process",
			slog.String("path", spec.Path),
			slog.Any("err", err),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, spec.Path, err)
	}

	slog.Debug(
		"engine process started",
		slog.String("path", spec.Path),
		slog.Int("pid", cmd.Process.Pid),
		slog.String("channel", spec.Channel.String()),
	)

	return &Handle{
		cmd:      cmd,
		progress: r,
		exited:   make(chan struct{}),
	}, nil
}

func (h *Handle) Pid() int { return h.cmd.Process.Pid }

// Progress is the readable end of the engine's progress channel.
func (h *Handle) Progress() io.Reader { return h.progress }

// Kill asks the OS to terminate the process and its children. It never
// blocks and only the first call has an effect. If the process is still
// alive after the grace period it is killed forcibly.
func (h *Handle) Kill() {
	h.killOnce.Do(func() {
		select {
		case <-h.exited:
			return
		default:
		}

		slog.Info("terminating engine process", slog.Int("pid", h.Pid()))

		if err := terminate(h.cmd.Process); err != nil {
			slog.Warn("failed to terminate process group", slog.Int("pid", h.Pid()), slog.Any("err", err))
			h.cmd.Process.Kill()
			return
		}

		time.AfterFunc(killGrace, func() {
			select {
			case <-h.exited:
			default:
				forceKill(h.cmd.Process)
			}
		})
	})
}

// Wait reaps the process. Any number of goroutines may call it, all of them
// observe the same result.
func (h *Handle) Wait() error {
	h.waitOnce.Do(func() {
		h.waitErr = h.cmd.Wait()
		close(h.exited)
	})
	return h.waitErr
}

// Exited is closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} { return h.exited }
