package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
marketplaces:
  big:
    base_url: https://big.example/api/
  small:
    base_url: https://small.example/api/
poller:
  small:
    enabled: true
    interval: 30s
    jitter: 0.2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Environment != "test" {
		t.Fatalf("environment = %q", c.Environment)
	}
	if c.Poller.Small.Interval != 30*time.Second || c.Poller.Small.Jitter != 0.2 {
		t.Fatalf("small poller = %+v", c.Poller.Small)
	}
	if c.Poller.Big.Interval != 120*time.Second {
		t.Fatalf("big interval = %v, want default", c.Poller.Big.Interval)
	}
	if c.Storage.Type != "file" || c.Scheduler.DefaultLead != 2*time.Second {
		t.Fatalf("defaults lost: storage=%q lead=%v", c.Storage.Type, c.Scheduler.DefaultLead)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("MARKETPULL_STORAGE_TYPE", "sqlite")
	t.Setenv("MARKETPULL_STORAGE_PATH", "/tmp/state.db")
	t.Setenv("MARKETPULL_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MARKETPULL_SERVER_PORT", "9090")
	t.Setenv("MARKETPULL_BIG_AUTH_TOKEN", "secret")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if c.Storage.Type != "sqlite" || c.Storage.Path != "/tmp/state.db" {
		t.Fatalf("storage = %+v", c.Storage)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}
	if c.Server.Port != 9090 || c.Marketplaces.Big.AuthToken != "secret" {
		t.Fatalf("port=%d token=%q", c.Server.Port, c.Marketplaces.Big.AuthToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Marketplaces.Big.BaseURL = "https://big.example/"
		c.Marketplaces.Small.BaseURL = "https://small.example/"
		return c
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown storage", func(c *Config) { c.Storage.Type = "etcd" }, "storage.type"},
		{"file without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"unknown archive", func(c *Config) { c.Archive.Type = "s3" }, "archive.type"},
		{"postgres without dsn", func(c *Config) { c.Archive.Type = "postgres" }, "postgres.dsn"},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
			c.Kafka.EventsTopic = "events"
		}, "kafka.brokers"},
		{"kafka without topics", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"k:9092"}
		}, "events_topic"},
		{"jitter out of range", func(c *Config) { c.Poller.Big.Jitter = 1 }, "jitter"},
		{"missing base url", func(c *Config) { c.Marketplaces.Small.BaseURL = " " }, "marketplaces.small.base_url"},
		{"overbid without increment", func(c *Config) {
			c.Scheduler.Overbid.Enabled = true
			c.Scheduler.Overbid.Increment = 0
		}, "overbid.increment"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tc.want)
			}
		})
	}

	c := valid()
	c.Poller.Small.Enabled = false
	c.Marketplaces.Small.BaseURL = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("disabled poller should not need a base url: %v", err)
	}
}
