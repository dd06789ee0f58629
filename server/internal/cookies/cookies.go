package cookies

import (
	"log/slog"
	"os"
)

// Write stores the cookie text in a fresh temporary file readable only by
// the current user. cleanup removes it and is safe to call more than once.
func Write(text string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "mediadl-cookies-*.txt")
	if err != nil {
		return "", nil, err
	}

	path = f.Name()
	cleanup = func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove cookie file", slog.String("path", path), slog.Any("err", err))
		}
	}

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}

	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}

	return path, cleanup, nil
}
