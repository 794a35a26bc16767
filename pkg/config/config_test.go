package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
environment: test
server:
  port: 9090
  read_timeout: 5s
backend:
  type: clickhouse
kafka:
  brokers: ["localhost:9092"]
  topic: points
feed:
  websocket_url: ""
preprocess:
  max_rows: 100000
  default_rows: 500
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Port != 9090 {
		t.Fatalf("got port %d, want 9090", c.Server.Port)
	}
	if c.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("got read timeout %v, want 5s", c.Server.ReadTimeout)
	}
	if c.Backend.Type != "clickhouse" {
		t.Fatalf("got backend %q, want clickhouse", c.Backend.Type)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("SERVER_PORT", "8000")

	c, err := LoadWithEnv(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if c.Backend.Type != "kafka" {
		t.Fatalf("got backend %q, want kafka", c.Backend.Type)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("brokers not overridden: %v", c.Kafka.Brokers)
	}
	if c.Server.Port != 8000 {
		t.Fatalf("got port %d, want 8000", c.Server.Port)
	}
}

func TestLoadWithEnvValidatesOverrides(t *testing.T) {
	t.Setenv("BACKEND", "postgres")

	if _, err := LoadWithEnv(writeConfig(t, sampleYAML)); err == nil {
		t.Fatal("expected invalid backend override to fail")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing environment", "backend:\n  type: kafka\n"},
		{"missing backend", "environment: test\n"},
		{"feed without series", "environment: test\nbackend:\n  type: kafka\nfeed:\n  websocket_url: wss://feed.example.com\n"},
		{"default rows above max", "environment: test\nbackend:\n  type: kafka\npreprocess:\n  max_rows: 10\n  default_rows: 20\n"},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.body)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
