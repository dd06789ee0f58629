package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mediadl/mediadl/server/internal/process"
)

const unknown = "Unknown"

// Probe asks the named engine which streams url offers. cookieFile is
// passed through to the engine and never removed here.
func Probe(ctx context.Context, name, url, cookieFile string) (map[string]StreamInfo, error) {
	d, err := Get(name)
	if err != nil {
		return nil, err
	}
	return d.Probe(ctx, url, cookieFile)
}

func (d *Descriptor) Probe(ctx context.Context, url, cookieFile string) (map[string]StreamInfo, error) {
	cmd := process.Command(ctx, d.Binary(), d.ProbeArgs(url, cookieFile)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Info("probing streams", slog.String("engine", d.Name), slog.String("url", url))

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf(
			"%w: %s: %w: %s",
			ErrProbeProcessFailed, d.Name, err, strings.TrimSpace(stderr.String()),
		)
	}

	streams, err := d.parse(url, stdout.Bytes())
	if err != nil {
		if errors.Is(err, ErrProbeProcessFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedProbeOutput, d.Name, err)
	}

	for id, s := range streams {
		s.Engine = d.Name
		s.SourceURL = url
		streams[id] = s
	}

	return streams, nil
}

// Program reports the resolved executable and its version string.
func Program(ctx context.Context, name string) (path string, version string, err error) {
	d, err := Get(name)
	if err != nil {
		return "", "", err
	}

	path = d.Binary()

	out, err := process.Command(ctx, path, d.flags.version).Output()
	if err != nil {
		return path, "", fmt.Errorf("%w: %s: %w", ErrProbeProcessFailed, d.Name, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	if sc.Scan() {
		version = strings.TrimSpace(sc.Text())
	}

	return path, version, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}
