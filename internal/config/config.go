package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"pubkey-quest/engine/logging"
)

// Config is the engine's runtime configuration, loaded from QUEST_*
// environment variables. Binaries may override individual fields from
// flags after parsing.
type Config struct {
	// ServerURL is the quest server base URL.
	ServerURL string `env:"QUEST_SERVER_URL" envDefault:"http://localhost:4020"`
	// RequestTimeout bounds every HTTP round-trip.
	RequestTimeout time.Duration `env:"QUEST_REQUEST_TIMEOUT" envDefault:"8s"`

	// Npub and SaveID identify the session. The synchronizer skips
	// firings until both are present.
	Npub   string `env:"QUEST_NPUB"`
	SaveID string `env:"QUEST_SAVE_ID"`

	// TickPeriod overrides the sync cadence; zero keeps one firing per
	// game minute.
	TickPeriod time.Duration `env:"QUEST_TICK_PERIOD"`
	// FrameInterval overrides the render cadence.
	FrameInterval time.Duration `env:"QUEST_FRAME_INTERVAL"`

	// ObserverAddr is where the diagnostics server listens. Empty
	// disables it.
	ObserverAddr string `env:"QUEST_OBSERVER_ADDR" envDefault:"127.0.0.1:7341"`
	// ObserverPprof mounts net/http/pprof on the diagnostics server.
	ObserverPprof bool `env:"QUEST_OBSERVER_PPROF"`

	LogSinks       []string      `env:"QUEST_LOG_SINKS" envSeparator:"," envDefault:"console"`
	LogBuffer      int           `env:"QUEST_LOG_BUFFER" envDefault:"256"`
	LogJSONPath    string        `env:"QUEST_LOG_JSON_PATH"`
	LogMinSeverity int           `env:"QUEST_LOG_MIN_SEVERITY" envDefault:"1"`
	LogColor       bool          `env:"QUEST_LOG_COLOR" envDefault:"true"`
	JournalCap     int           `env:"QUEST_JOURNAL_CAPACITY" envDefault:"64"`
	JournalMaxAge  time.Duration `env:"QUEST_JOURNAL_MAX_AGE" envDefault:"10m"`

	// Stub runs the in-process quest server and points the client at
	// it, for development without a real backend.
	Stub     bool   `env:"QUEST_STUB"`
	StubAddr string `env:"QUEST_STUB_ADDR" envDefault:"127.0.0.1:4020"`
	StubSeed int64  `env:"QUEST_STUB_SEED" envDefault:"1"`
}

// ParseEnv loads the configuration from the environment and applies
// the floors Normalize enforces.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize clamps values a zero or negative override would break.
func (c *Config) Normalize() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 8 * time.Second
	}
	if c.LogBuffer <= 0 {
		c.LogBuffer = 256
	}
	if c.JournalCap <= 0 {
		c.JournalCap = 64
	}
	if c.JournalMaxAge <= 0 {
		c.JournalMaxAge = 10 * time.Minute
	}
	if len(c.LogSinks) == 0 {
		c.LogSinks = []string{"console"}
	}
}

// HasSession reports whether both credential halves are configured.
func (c Config) HasSession() bool {
	return c.Npub != "" && c.SaveID != ""
}

// Logging builds the router configuration this config describes.
func (c Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.EnabledSinks = append([]string(nil), c.LogSinks...)
	lc.BufferSize = c.LogBuffer
	lc.MinimumSeverity = logging.Severity(c.LogMinSeverity)
	lc.JSON.FilePath = c.LogJSONPath
	lc.Console.UseColor = c.LogColor
	if c.SaveID != "" {
		lc.Fields = map[string]any{"saveId": c.SaveID}
	}
	return lc
}
