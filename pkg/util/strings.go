package util

import (
    "strconv"
    "strings"
    "time"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
    if s == "" {
        return def
    }
    v, err := strconv.Atoi(s)
    if err != nil {
        return def
    }
    return v
}

// ParseFloatDefault parses string to float64 or returns default if empty/invalid.
func ParseFloatDefault(s string, def float64) float64 {
    if s == "" {
        return def
    }
    v, err := strconv.ParseFloat(s, 64)
    if err != nil {
        return def
    }
    return v
}

func ParseDurationDefault(s string, def time.Duration) time.Duration {
    if s == "" {
        return def
    }
    d, err := time.ParseDuration(s)
    if err != nil || d <= 0 {
        return def
    }
    return d
}

// SplitCSV splits on commas, trims blanks and drops empty items.
func SplitCSV(s string) []string {
    if s == "" {
        return nil
    }
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
