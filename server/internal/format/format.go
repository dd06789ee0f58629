// Package format renders task progress values for display.
package format

import "fmt"

const (
	kb = 1_000
	mb = 1_000 * kb
	gb = 1_000 * mb
)

// Size uses decimal units. Zero means the size is not known.
func Size(bytes int64) string {
	if bytes <= 0 {
		return "Unknown"
	}
	return size(float64(bytes))
}

func size(b float64) string {
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GB", b/gb)
	case b >= mb:
		return fmt.Sprintf("%.2f MB", b/mb)
	case b >= kb:
		return fmt.Sprintf("%.2f KB", b/kb)
	default:
		return fmt.Sprintf("%d B", int64(b))
	}
}

func Speed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "---"
	}
	return size(bytesPerSec) + "/s"
}

func Percent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}

// ETA is coarse above one hour and exact below it.
func ETA(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}

	d := seconds / 86_400
	h := seconds / 3_600
	m := seconds / 60
	s := seconds % 60

	switch {
	case d > 0:
		return fmt.Sprintf(">= %dd", d)
	case h > 0:
		return fmt.Sprintf(">= %dh", h)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
