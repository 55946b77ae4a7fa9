package util

import "testing"

func TestPlainText(t *testing.T) {
    got := PlainText("Tom &amp; Jerry<br />second line<br>third")
    want := "Tom & Jerry\nsecond line\nthird"
    if got != want {
        t.Fatalf("got %q want %q", got, want)
    }
}

func TestTruncate(t *testing.T) {
    if got := Truncate("hello", 10); got != "hello" {
        t.Fatalf("unexpected %q", got)
    }
    if got := Truncate("hello world", 6); got != "hello…" {
        t.Fatalf("unexpected %q", got)
    }
}

func TestParseIntDefault(t *testing.T) {
    if ParseIntDefault("x", 7) != 7 || ParseIntDefault("", 3) != 3 || ParseIntDefault("12", 0) != 12 {
        t.Fatalf("unexpected parse result")
    }
}
