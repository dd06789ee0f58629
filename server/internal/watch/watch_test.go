package watch

import (
	"errors"
	"io"
	"math"
	"slices"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

func TestWatchChunks(t *testing.T) {
	var got []string
	err := Watch(strings.NewReader("a%b% c \xff%tail"), '%', func(c string) {
		got = append(got, c)
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a%", "b%", "c \uFFFD%", "tail"}
	if !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWatchReadError(t *testing.T) {
	boom := errors.New("boom")
	r := io.MultiReader(strings.NewReader("5%"), iotest.ErrReader(boom))

	var n int
	err := Watch(r, '%', func(string) { n++ })
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 chunk before failure, got %d", n)
	}
}

func TestWatchProgress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []float64
	}{
		{"sequence", "12.5% 37% 100%", []float64{0.125, 0.37, 1.0}},
		{"leading dot", " .5%", []float64{0.005}},
		{"dots before digits", "...37%", []float64{0.0037}},
		{"yt-dlp", "[download]  45.0% of 10MiB\n[download]  46.1%", []float64{0.45, 0.461}},
		{"no digits", "abc%def%", nil},
		{"two dots", "1.2.3%", []float64{0.023}},
		{"clamped", "150%", []float64{1}},
		{"trailing dot", "7.%", []float64{0.07}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []float64
			err := WatchProgress(strings.NewReader(tt.input), func(s Sample) {
				if !s.Valid {
					t.Fatalf("unexpected invalid sample")
				}
				got = append(got, s.Fraction)
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("sample %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParsePercentOverflow(t *testing.T) {
	s, ok := parsePercent(strings.Repeat("9", 400) + "%")
	if !ok {
		t.Fatal("expected a sample")
	}
	if s.Valid {
		t.Errorf("expected invalid sample, got %+v", s)
	}
}

func TestEstimator(t *testing.T) {
	t0 := time.Unix(0, 0)
	e := NewEstimator(1000, t0, 0.10)

	if e.Current().ETASeconds != InitialETA.Seconds() {
		t.Fatalf("unexpected initial eta %v", e.Current().ETASeconds)
	}

	est, changed := e.Observe(0.30, t0.Add(2*time.Second))
	if !changed {
		t.Fatal("expected estimate to change")
	}
	if math.Abs(est.SpeedBytesPerSec-100) > 1e-6 {
		t.Errorf("speed: got %v, want 100", est.SpeedBytesPerSec)
	}
	if math.Abs(est.ETASeconds-7) > 1e-6 {
		t.Errorf("eta: got %v, want 7", est.ETASeconds)
	}

	same, changed := e.Observe(0.30, t0.Add(3*time.Second))
	if changed || same != est {
		t.Errorf("non-increasing sample must not change the estimate")
	}

	if _, changed := e.Observe(0.20, t0.Add(4*time.Second)); changed {
		t.Errorf("decreasing sample must not change the estimate")
	}
}
