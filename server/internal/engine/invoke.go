package engine

import (
	"context"
	"log/slog"

	"github.com/mediadl/mediadl/server/internal/process"
)

// Invoke starts a download of one stream. The returned handle exposes the
// engine's progress channel.
func (d *Descriptor) Invoke(
	ctx context.Context,
	url, streamID, outputDir, outputName, cookieFile string,
) (*process.Handle, error) {
	args := d.DownloadArgs(url, streamID, outputDir, outputName, cookieFile)

	slog.Info(
		"requesting download",
		slog.String("engine", d.Name),
		slog.String("url", url),
		slog.Any("params", args),
	)

	return process.Spawn(ctx, process.Spec{
		Path:    d.Binary(),
		Args:    args,
		Channel: d.Channel,
	})
}
