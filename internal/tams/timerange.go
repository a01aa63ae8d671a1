package tams

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedTimeRange is returned when a timerange string cannot be parsed
// or is unbounded where a bounded interval is required.
var ErrMalformedTimeRange = errors.New("malformed timerange")

// Timestamp is a store timestamp: whole seconds since the epoch plus a
// non-negative nanosecond component. The negative flag applies to the whole
// value, so "-5:100" means 100ns further from zero than -5s.
type Timestamp struct {
	Seconds     int64
	Nanoseconds int64
	negative    bool
}

// Float returns the timestamp as fractional seconds since the epoch.
func (t Timestamp) Float() float64 {
	f := float64(t.Seconds) + float64(t.Nanoseconds)/1e9
	if t.negative {
		f = -f
	}
	return f
}

// Time returns the timestamp as a UTC time.Time.
func (t Timestamp) Time() time.Time {
	if t.negative {
		return time.Unix(-t.Seconds, -t.Nanoseconds).UTC()
	}
	return time.Unix(t.Seconds, t.Nanoseconds).UTC()
}

// TimeRange is a closed time interval with per-end inclusivity, decoded from
// the store's string form, e.g. "[1709634568:0_1709634578:0)".
type TimeRange struct {
	Start         *Timestamp
	End           *Timestamp
	IncludesStart bool
	IncludesEnd   bool
}

// Bounded reports whether both ends of the range are present.
func (r TimeRange) Bounded() bool {
	return r.Start != nil && r.End != nil
}

// LengthSeconds returns the interval length in fractional seconds.
// The range must be bounded.
func (r TimeRange) LengthSeconds() (float64, error) {
	if !r.Bounded() {
		return 0, fmt.Errorf("%w: unbounded range has no length", ErrMalformedTimeRange)
	}
	return r.End.Float() - r.Start.Float(), nil
}

// ParseTimeRange decodes the store's timerange string syntax:
// an optional "["/"(" inclusivity bracket, a start timestamp, "_", an end
// timestamp, and an optional "]"/")" bracket. Either timestamp may be absent
// (unbounded end); a bare timestamp with no "_" denotes the instantaneous
// inclusive range [ts,ts].
func ParseTimeRange(s string) (TimeRange, error) {
	r := TimeRange{IncludesStart: true, IncludesEnd: true}

	rest := s
	if strings.HasPrefix(rest, "[") || strings.HasPrefix(rest, "(") {
		r.IncludesStart = rest[0] == '['
		rest = rest[1:]
	}
	if strings.HasSuffix(rest, "]") || strings.HasSuffix(rest, ")") {
		r.IncludesEnd = rest[len(rest)-1] == ']'
		rest = rest[:len(rest)-1]
	}

	if rest == "" {
		// Empty range.
		r.IncludesStart, r.IncludesEnd = false, false
		return r, nil
	}

	startStr, endStr, hasSep := strings.Cut(rest, "_")
	if !hasSep {
		ts, err := parseTimestamp(startStr)
		if err != nil {
			return TimeRange{}, err
		}
		r.Start, r.End = &ts, &ts
		return r, nil
	}

	if startStr != "" {
		ts, err := parseTimestamp(startStr)
		if err != nil {
			return TimeRange{}, err
		}
		r.Start = &ts
	}
	if endStr != "" {
		ts, err := parseTimestamp(endStr)
		if err != nil {
			return TimeRange{}, err
		}
		r.End = &ts
	}
	return r, nil
}

func parseTimestamp(s string) (Timestamp, error) {
	secStr, nsecStr, hasNsec := strings.Cut(s, ":")

	neg := strings.HasPrefix(secStr, "-")
	sec, err := strconv.ParseInt(strings.TrimPrefix(secStr, "-"), 10, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: bad seconds in %q", ErrMalformedTimeRange, s)
	}

	var nsec int64
	if hasNsec {
		nsec, err = strconv.ParseInt(nsecStr, 10, 64)
		if err != nil || nsec < 0 || nsec > 999999999 {
			return Timestamp{}, fmt.Errorf("%w: bad nanoseconds in %q", ErrMalformedTimeRange, s)
		}
	}

	return Timestamp{Seconds: sec, Nanoseconds: nsec, negative: neg}, nil
}
