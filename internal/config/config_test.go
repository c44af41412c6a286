package config

import (
	"testing"
	"time"
)

func TestParseEnvDefaults(t *testing.T) {
	for _, key := range []string{"QUEST_SERVER_URL", "QUEST_REQUEST_TIMEOUT", "QUEST_LOG_SINKS", "QUEST_NPUB", "QUEST_SAVE_ID"} {
		t.Setenv(key, "")
	}
	cfg, err := ParseEnv()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.ServerURL != "http://localhost:4020" {
		t.Fatalf("unexpected server url: %q", cfg.ServerURL)
	}
	if cfg.RequestTimeout != 8*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.RequestTimeout)
	}
	if len(cfg.LogSinks) != 1 || cfg.LogSinks[0] != "console" {
		t.Fatalf("unexpected sinks: %v", cfg.LogSinks)
	}
	if cfg.HasSession() {
		t.Fatalf("no session expected without credentials")
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("QUEST_SERVER_URL", "http://quest.example:9999")
	t.Setenv("QUEST_NPUB", "npub1zzz")
	t.Setenv("QUEST_SAVE_ID", "save-42")
	t.Setenv("QUEST_TICK_PERIOD", "250ms")
	t.Setenv("QUEST_LOG_SINKS", "console,json")

	cfg, err := ParseEnv()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.ServerURL != "http://quest.example:9999" {
		t.Fatalf("unexpected server url: %q", cfg.ServerURL)
	}
	if !cfg.HasSession() {
		t.Fatalf("expected session credentials")
	}
	if cfg.TickPeriod != 250*time.Millisecond {
		t.Fatalf("unexpected tick period: %v", cfg.TickPeriod)
	}
	if len(cfg.LogSinks) != 2 || cfg.LogSinks[1] != "json" {
		t.Fatalf("unexpected sinks: %v", cfg.LogSinks)
	}
}

func TestNormalizeClampsBrokenValues(t *testing.T) {
	cfg := Config{RequestTimeout: -1, LogBuffer: 0, JournalCap: -5}
	cfg.Normalize()
	if cfg.RequestTimeout != 8*time.Second || cfg.LogBuffer != 256 || cfg.JournalCap != 64 {
		t.Fatalf("normalize must restore floors, got %+v", cfg)
	}
}

func TestLoggingConfigCarriesSave(t *testing.T) {
	cfg := Config{LogSinks: []string{"json"}, LogBuffer: 32, SaveID: "save-7", LogMinSeverity: 0}
	lc := cfg.Logging()
	if !lc.HasSink("json") || lc.HasSink("console") {
		t.Fatalf("unexpected sinks: %v", lc.EnabledSinks)
	}
	if lc.BufferSize != 32 {
		t.Fatalf("unexpected buffer: %d", lc.BufferSize)
	}
	if lc.Fields["saveId"] != "save-7" {
		t.Fatalf("expected save id field, got %v", lc.Fields)
	}
}
