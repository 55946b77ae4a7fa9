package util

import (
    "strconv"
    "testing"
    "time"
)

func TestParseTimeRFC3339(t *testing.T) {
    s := "2024-10-10T10:10:10Z"
    got, ok := ParseTime(s)
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.UTC().Format(time.RFC3339) != s {
        t.Fatalf("unexpected time %v", got)
    }
}

func TestParseTimeMillisZulu(t *testing.T) {
    got, ok := ParseTime("2024-10-10T10:10:10.000Z")
    if !ok {
        t.Fatalf("expected ok")
    }
    want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
    if !got.Equal(want) {
        t.Fatalf("got %v want %v", got, want)
    }
}

func TestParseTimeOffsetWithoutColon(t *testing.T) {
    got, ok := ParseTime("2024-10-10T12:10:10.000+0200")
    if !ok {
        t.Fatalf("expected ok")
    }
    want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
    if !got.Equal(want) {
        t.Fatalf("got %v want %v", got, want)
    }
}

func TestParseTimeUnix(t *testing.T) {
    ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
    got, ok := ParseTime(strconv.FormatInt(ts, 10))
    if !ok {
        t.Fatalf("expected ok")
    }
    if got.Unix() != ts {
        t.Fatalf("unexpected unix %v", got.Unix())
    }
}

func TestParseTimeDefault(t *testing.T) {
    def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
    got := ParseTimeDefault("", def)
    if !got.Equal(def) {
        t.Fatalf("expected default")
    }
}

func TestParseTimePtrInvalid(t *testing.T) {
    if p := ParseTimePtr("not a time"); p != nil {
        t.Fatalf("expected nil, got %v", p)
    }
}

func TestJitterBounds(t *testing.T) {
    base := 10 * time.Second
    for i := 0; i < 200; i++ {
        d := Jitter(base, 0.5)
        if d < 5*time.Second || d > 15*time.Second {
            t.Fatalf("jitter out of range: %v", d)
        }
    }
    if Jitter(base, 0) != base {
        t.Fatalf("zero fraction must return base")
    }
}
