package queue

import (
	"context"
	"io"

	"github.com/mediadl/mediadl/server/internal/engine"
)

// Process is a running download as seen by a worker.
type Process interface {
	Progress() io.Reader
	Kill()
	Wait() error
}

type LaunchRequest struct {
	Info       engine.StreamInfo
	OutputDir  string
	OutputName string
	CookieFile string
}

// Launcher starts engine processes on behalf of the workers.
type Launcher interface {
	// Resolve reports whether the engine can be launched at all.
	Resolve(engineName string) error
	Launch(ctx context.Context, req LaunchRequest) (Process, error)
}

type engineLauncher struct{}

func (engineLauncher) Resolve(name string) error {
	_, err := engine.Get(name)
	return err
}

func (engineLauncher) Launch(ctx context.Context, req LaunchRequest) (Process, error) {
	d, err := engine.Get(req.Info.Engine)
	if err != nil {
		return nil, err
	}

	h, err := d.Invoke(ctx, req.Info.SourceURL, req.Info.StreamID, req.OutputDir, req.OutputName, req.CookieFile)
	if err != nil {
		return nil, err
	}

	return h, nil
}
