package logging

import (
	"sync"
)

// ObservableLogger fans every log line out to the current subscribers.
// Slow subscribers lose lines instead of blocking the logger.
type ObservableLogger struct {
	subs map[chan string]struct{}
	mu   sync.Mutex
}

func NewObservableLogger() *ObservableLogger {
	return &ObservableLogger{
		subs: make(map[chan string]struct{}),
	}
}

func (o *ObservableLogger) Write(p []byte) (int, error) {
	line := string(p)

	o.mu.Lock()
	defer o.mu.Unlock()

	for c := range o.subs {
		select {
		case c <- line:
		default:
		}
	}

	return len(p), nil
}

// Subscribe returns a channel of log lines and the function detaching it.
func (o *ObservableLogger) Subscribe() (<-chan string, func()) {
	c := make(chan string, 64)

	o.mu.Lock()
	o.subs[c] = struct{}{}
	o.mu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, c)
			o.mu.Unlock()
			close(c)
		})
	}
}
