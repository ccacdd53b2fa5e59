package merge

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// SampleRate is the muscle sensor rate used to spread rows logged with
// whole-second timestamps across the second.
const SampleRate = 22

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05.999999999",
	"2006/1/2 15:04:05.999999999",
	"2006.1.2 15:04:05.999999999",
	"1/2/2006 15:04:05.999999999",
	"15:04:05.999999999",
}

// ParseTimestamp accepts the date-time forms found in the sensor logs.
// Fractional seconds are optional in every layout.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// TimestampColumn returns the index of the first header containing "time"
// or "stamp", case-insensitively, or -1.
func TimestampColumn(header []string) int {
	for i, h := range header {
		l := strings.ToLower(h)
		if strings.Contains(l, "time") || strings.Contains(l, "stamp") {
			return i
		}
	}
	return -1
}

// Subsecond rewrites timestamps so that the n-th consecutive row within the
// same wall-clock second gets n*(1000/SampleRate) milliseconds, wrapping at
// one second. Existing fractions are discarded.
func Subsecond(ts []time.Time) []time.Time {
	out := make([]time.Time, len(ts))
	var prev [3]int
	count := 0
	for i, t := range ts {
		h, m, s := t.Clock()
		cur := [3]int{h, m, s}
		if i > 0 && cur == prev {
			count++
		} else {
			count = 0
			prev = cur
		}
		ms := int(float64(count)*(1000.0/SampleRate)) % 1000
		out[i] = t.Truncate(time.Second).Add(time.Duration(ms) * time.Millisecond)
	}
	return out
}

// Alignment returns the shifts to subtract from the muscle and angle keys.
// When the first rows are more than a second apart the later series is
// moved back by the offset rounded to whole seconds.
func Alignment(firstMuscle, firstAngle time.Time) (muscleShift, angleShift time.Duration) {
	offset := firstMuscle.Sub(firstAngle).Seconds()
	if math.Abs(offset) <= 1 {
		return 0, 0
	}
	shift := time.Duration(math.RoundToEven(math.Abs(offset))) * time.Second
	if offset > 0 {
		return shift, 0
	}
	return 0, shift
}
