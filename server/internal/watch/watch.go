package watch

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Watch splits r on delim and invokes onChunk for every chunk, delimiter
// included, after lossy UTF-8 decoding and whitespace trimming. It returns
// nil at end of input and the read error otherwise.
func Watch(r io.Reader, delim byte, onChunk func(chunk string)) error {
	br := bufio.NewReader(r)

	for {
		buf, err := br.ReadBytes(delim)
		if len(buf) > 0 {
			onChunk(strings.TrimSpace(strings.ToValidUTF8(string(buf), "\uFFFD")))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Sample is a single percentage read from an engine. Valid is false when
// a number was found but could not be parsed.
type Sample struct {
	Fraction float64
	Valid    bool
}

// the longest run of digits with at most one decimal point before the '%'
var percentRe = regexp.MustCompile(`((?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+))%$`)

// WatchProgress reads percentages from r. Chunks without a number directly
// preceding the '%' are skipped.
func WatchProgress(r io.Reader, onSample func(Sample)) error {
	return Watch(r, '%', func(chunk string) {
		sample, ok := parsePercent(chunk)
		if ok {
			onSample(sample)
		}
	})
}

func parsePercent(chunk string) (Sample, bool) {
	m := percentRe.FindStringSubmatch(chunk)
	if m == nil {
		return Sample{}, false
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Sample{Valid: false}, true
	}

	return Sample{Fraction: min(max(v/100, 0), 1), Valid: true}, true
}
