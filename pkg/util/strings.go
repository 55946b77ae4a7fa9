package util

import (
    "html"
    "strconv"
    "strings"
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

var breakReplacer = strings.NewReplacer("<br />", "\n", "<br/>", "\n", "<br>", "\n")

// PlainText unescapes HTML entities and turns line-break tags into newlines.
func PlainText(s string) string {
    return strings.TrimSpace(breakReplacer.Replace(html.UnescapeString(s)))
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
    if n <= 0 {
        return ""
    }
    r := []rune(s)
    if len(r) <= n {
        return s
    }
    if n == 1 {
        return "…"
    }
    return string(r[:n-1]) + "…"
}
