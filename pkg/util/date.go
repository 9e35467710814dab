package util

import (
    "strconv"
    "time"
)

var layouts = []string{
    time.RFC3339,
    time.RFC3339Nano,
    "2006-01-02 15:04:05",
    "2006-01-02",
}

// ParseTime accepts RFC3339, "2006-01-02 15:04:05", a bare date, and unix
// seconds or milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil {
            return t.UTC(), true
        }
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return FromUnix(ts), true
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

// FromUnix treats values above 1e12 as milliseconds.
func FromUnix(ts int64) time.Time {
    if ts > 1e12 {
        return time.UnixMilli(ts).UTC()
    }
    return time.Unix(ts, 0).UTC()
}
