package clickhouse

import (
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "marketpull",
		User:        "default",
		Password:    "pw",
		DialTimeout: 5 * time.Second,
		AsyncInsert: true,
	}
	want := "clickhouse://default:pw@ch:9000/marketpull?dial_timeout=5s&async_insert=1"
	if got := buildDSN(cfg); got != want {
		t.Fatalf("dsn mismatch:\n got %s\nwant %s", got, want)
	}

	cfg.UseHTTP = true
	cfg.WaitForAsync = true
	cfg.DialTimeout = 0
	want = "clickhouse+http://default:pw@ch:9000/marketpull?async_insert=1&wait_for_async_insert=1"
	if got := buildDSN(cfg); got != want {
		t.Fatalf("http dsn mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}
