package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mediadl/mediadl/server/internal/engine"
	"github.com/mediadl/mediadl/server/internal/process"
)

var ErrNotUpdatable = errors.New("engine has no self update mechanism")

// command returns the program and arguments that update the engine in place.
func command(d *engine.Descriptor) (string, []string, error) {
	switch d.Name {
	case "yt-dlp", "youtube-dl":
		return d.Binary(), []string{"-U"}, nil
	case "you-get":
		return "pip", []string{"install", "-U", "you-get", "--break-system-packages"}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrNotUpdatable, d.Name)
	}
}

// Update using the builtin mechanism of the engine
func UpdateExecutable(ctx context.Context, engineName string) error {
	d, err := engine.Get(engineName)
	if err != nil {
		return err
	}

	name, args, err := command(d)
	if err != nil {
		return err
	}

	out, err := process.Command(ctx, name, args...).CombinedOutput()
	slog.Warn(string(out), slog.String("engine", d.Name))

	return err
}
