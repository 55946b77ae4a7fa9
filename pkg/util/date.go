package util

import (
    "math/rand"
    "strconv"
    "time"
)

// Layouts seen in marketplace payloads, tried in order after RFC3339.
var marketLayouts = []string{
    "2006-01-02T15:04:05Z",
    "2006-01-02T15:04:05.000Z",
    "2006-01-02T15:04:05.000-0700",
    "2006-01-02T15:04:05-0700",
}

// ParseTime tries RFC3339, RFC3339Nano, marketplace layouts, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    for _, layout := range marketLayouts {
        if t, err := time.Parse(layout, s); err == nil {
            return t, true
        }
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0), true
    }
    return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
    if t, ok := ParseTime(s); ok {
        return t
    }
    return def
}

// ParseTimePtr is ParseTime returning nil when s is not a time.
func ParseTimePtr(s string) *time.Time {
    if t, ok := ParseTime(s); ok {
        t = t.UTC()
        return &t
    }
    return nil
}

// Jitter returns a uniformly random duration in [base*(1-frac), base*(1+frac)].
func Jitter(base time.Duration, frac float64) time.Duration {
    if frac <= 0 || base <= 0 {
        return base
    }
    lo := float64(base) * (1 - frac)
    hi := float64(base) * (1 + frac)
    return time.Duration(lo + rand.Float64()*(hi-lo))
}
