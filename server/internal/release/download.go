package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

var ErrNoAsset = errors.New("no release asset for the requested platform")

// Suffix of the file an unfinished transfer is written to.
const partialSuffix = ".download"

// Download fetches rawURL into dest and returns the size of the file. Bytes
// go to dest+".download" first, a later call resumes from there with a range
// request. The partial file is renamed to dest once the body is complete.
// An existing dest is not downloaded again.
func (c *Client) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	if st, err := os.Stat(dest); err == nil && st.Mode().IsRegular() {
		return st.Size(), nil
	}

	partial := dest + partialSuffix

	var offset int64
	if st, err := os.Stat(partial); err == nil {
		offset = st.Size()
	}

	req := c.files.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if offset > 0 {
		req.SetHeader("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := req.Get(rawURL)
	if err != nil {
		return 0, fmt.Errorf("failed to request %s: %w", rawURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	flags := os.O_CREATE | os.O_WRONLY

	switch resp.StatusCode() {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		// the server ignored the range, start over
		flags |= os.O_TRUNC
		offset = 0
	case http.StatusRequestedRangeNotSatisfiable:
		if offset == 0 {
			return 0, fmt.Errorf("download of %s failed: %s", rawURL, resp.Status())
		}
		return offset, os.Rename(partial, dest)
	default:
		return 0, fmt.Errorf("download of %s failed: %s", rawURL, resp.Status())
	}

	fd, err := os.OpenFile(partial, flags, 0o755)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(fd, body)
	if cerr := fd.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		slog.Warn(
			"download interrupted",
			slog.String("url", rawURL),
			slog.Int64("written", offset+n),
			slog.Any("err", err),
		)
		return offset + n, err
	}

	if err := os.Rename(partial, dest); err != nil {
		return offset + n, err
	}

	return offset + n, nil
}

// Install downloads the latest asset of the engine for the platform key into
// dir. An empty key selects the running system.
func (c *Client) Install(ctx context.Context, engineName, key, mirror, dir string) (*Release, string, error) {
	rel, err := c.Latest(ctx, engineName)
	if err != nil {
		return nil, "", err
	}

	if key == "" {
		key = Platform()
	}

	asset, ok := rel.Assets[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s on %q", ErrNoAsset, rel.Engine, key)
	}
	asset = Mirror(asset, mirror)

	u, err := url.Parse(asset)
	if err != nil {
		return nil, "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	dest := filepath.Join(dir, path.Base(u.Path))

	slog.Info(
		"installing engine",
		slog.String("engine", rel.Engine),
		slog.String("version", rel.Version),
		slog.String("url", asset),
		slog.String("dest", dest),
	)

	if _, err := c.Download(ctx, asset, dest); err != nil {
		return nil, "", err
	}

	return rel, dest, nil
}
