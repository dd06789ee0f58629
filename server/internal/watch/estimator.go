package watch

import "time"

// InitialETA is reported before the first rate could be measured.
const InitialETA = 24 * time.Hour

// Estimate is the derived state after an observed sample.
type Estimate struct {
	Fraction         float64
	SpeedBytesPerSec float64
	ETASeconds       float64
}

// Estimator derives speed and remaining time from successive fractions.
// Non-increasing samples move the time reference but leave the estimate as is.
type Estimator struct {
	size int64
	last time.Time
	cur  Estimate
}

func NewEstimator(sizeBytes int64, start time.Time, fraction float64) *Estimator {
	return &Estimator{
		size: sizeBytes,
		last: start,
		cur: Estimate{
			Fraction:   fraction,
			ETASeconds: InitialETA.Seconds(),
		},
	}
}

func (e *Estimator) Current() Estimate { return e.cur }

// Observe feeds a fraction sampled at now. It reports whether the estimate
// changed.
func (e *Estimator) Observe(p float64, now time.Time) (Estimate, bool) {
	dt := now.Sub(e.last).Seconds()
	e.last = now

	if p <= e.cur.Fraction {
		return e.cur, false
	}

	if dt <= 0 {
		dt = time.Millisecond.Seconds()
	}

	speed := (p - e.cur.Fraction) / dt

	e.cur = Estimate{
		Fraction:         p,
		SpeedBytesPerSec: speed * float64(e.size),
		ETASeconds:       (1 - p) / speed,
	}

	return e.cur, true
}
