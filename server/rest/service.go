package rest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/mediadl/mediadl/server/config"
	"github.com/mediadl/mediadl/server/internal/cookies"
	"github.com/mediadl/mediadl/server/internal/engine"
	"github.com/mediadl/mediadl/server/internal/queue"
	"github.com/mediadl/mediadl/server/internal/release"
	"github.com/mediadl/mediadl/server/updater"
)

var errNoPluginPath = errors.New("paths.plugin_path is not configured")

type Service struct {
	q        *queue.Queue
	releases *release.Client
}

func NewService(q *queue.Queue, releases *release.Client) *Service {
	return &Service{
		q:        q,
		releases: releases,
	}
}

func (s *Service) Engines() []EngineInfo {
	names := engine.Names()

	engines := make([]EngineInfo, 0, len(names))
	for _, name := range names {
		d, _ := engine.Get(name)
		engines = append(engines, EngineInfo{
			Name:    d.Name,
			Aliases: d.Aliases,
			Channel: d.Channel.String(),
		})
	}

	return engines
}

func (s *Service) Engine(ctx context.Context, name string) (*EngineInfo, error) {
	d, err := engine.Get(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	path, version, err := engine.Program(ctx, d.Name)
	if err != nil {
		return nil, err
	}

	return &EngineInfo{
		Name:     d.Name,
		Aliases:  d.Aliases,
		Channel:  d.Channel.String(),
		Location: path,
		Version:  version,
	}, nil
}

func (s *Service) LatestRelease(ctx context.Context, name, mirror string) (*release.Release, error) {
	r, err := s.releases.Latest(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.WithMirror(mirror), nil
}

// InstallEngine downloads the latest release asset of the engine into the
// plugin directory, where engine binaries are looked up first.
func (s *Service) InstallEngine(ctx context.Context, name, platform, mirror string) (*InstallResponse, error) {
	dir := config.Instance().Paths.PluginPath
	if dir == "" {
		return nil, errNoPluginPath
	}

	rel, path, err := s.releases.Install(ctx, name, platform, mirror, dir)
	if err != nil {
		return nil, err
	}

	return &InstallResponse{
		Engine:  rel.Engine,
		Version: rel.Version,
		Path:    path,
	}, nil
}

func (s *Service) UpdateEngine(ctx context.Context, name string) error {
	return updater.UpdateExecutable(ctx, name)
}

// Probe returns the streams ordered by id. Cookies only live for the
// duration of the probe.
func (s *Service) Probe(ctx context.Context, req ProbeRequest) ([]engine.StreamInfo, error) {
	var cookieFile string
	if req.Cookies != "" {
		path, cleanup, err := cookies.Write(req.Cookies)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		cookieFile = path
	}

	streams, err := engine.Probe(ctx, req.Engine, req.URL, cookieFile)
	if err != nil {
		return nil, err
	}

	out := make([]engine.StreamInfo, 0, len(streams))
	for _, st := range streams {
		st.Cookies = req.Cookies
		out = append(out, st)
	}

	slices.SortFunc(out, func(a, b engine.StreamInfo) int {
		return strings.Compare(a.StreamID, b.StreamID)
	})

	return out, nil
}

func (s *Service) Tasks() []queue.Row { return s.q.Snapshot() }

func (s *Service) Task(id string) (queue.Row, error) { return s.q.Get(id) }

func (s *Service) Add(streams []engine.StreamInfo) int { return s.q.Add(streams...) }

func (s *Service) resolve(sel Selection) []string {
	ids := slices.Clone(sel.IDs)
	if sel.Range != nil {
		ids = append(ids, s.q.Range(sel.Range[0], sel.Range[1])...)
	}
	return ids
}

func (s *Service) Start(sel Selection) int { return s.q.Start(s.resolve(sel)...) }

func (s *Service) Stop(sel Selection) int { return s.q.Stop(s.resolve(sel)...) }

func (s *Service) Remove(sel Selection) (int, error) {
	ids := s.resolve(sel)

	err := s.q.Remove(ids...)
	if err == nil {
		return len(ids), nil
	}

	removed := len(ids)
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		removed -= len(joined.Unwrap())
	}

	return removed, err
}
