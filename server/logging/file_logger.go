package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// RotableLogger is an io.Writer appending to a file that can be rotated
// while in use.
type RotableLogger struct {
	path string
	fd   *os.File
	mu   sync.Mutex
}

func NewRotableLogger(path string) (*RotableLogger, error) {
	fd, err := openLog(path)
	if err != nil {
		return nil, err
	}

	return &RotableLogger{path: path, fd: fd}, nil
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func (l *RotableLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.fd.Write(p)
}

// Rotate moves the current file aside with a timestamp suffix and starts a
// new one.
func (l *RotableLogger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fd.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", l.path, time.Now().Format("2006-01-02T15-04-05"))
	if err := os.Rename(l.path, rotated); err != nil {
		return err
	}

	fd, err := openLog(l.path)
	if err != nil {
		return err
	}
	l.fd = fd

	return nil
}

func (l *RotableLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.fd.Close()
}
