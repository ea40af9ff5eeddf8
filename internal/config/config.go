package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	UpstreamURL    string `env:"UPSTREAM_URL"`
	UpstreamAPIKey string `env:"UPSTREAM_API_KEY"`
	StreamFormat   string `env:"STREAM_FORMAT" envDefault:"auto"`
	SSEDataPrefix  string `env:"SSE_DATA_PREFIX" envDefault:"data: "`
	ReadBufferSize int    `env:"READ_BUFFER_SIZE" envDefault:"32768"`
	TypewriterTick int    `env:"TYPEWRITER_TICK_MS" envDefault:"15"`
	SessionID      string `env:"SESSION_ID"`

	FlagStore      string        `env:"FLAG_STORE" envDefault:"memory"`
	NATSStoreDir   string        `env:"NATS_STORE_DIR" envDefault:"./data/nats"`
	NATSFlagBucket string        `env:"NATS_FLAG_BUCKET" envDefault:"STREAMTYPE_FLAGS"`
	NATSMaxFile    int64         `env:"NATS_MAX_FILE_STORE" envDefault:"1073741824"`
	NATSMaxMemory  int64         `env:"NATS_MAX_MEMORY_STORE" envDefault:"67108864"`
	RecordStreams  bool          `env:"RECORD_STREAMS" envDefault:"false"`
	RecordMaxAge   time.Duration `env:"RECORD_MAX_AGE" envDefault:"24h"`

	DatabaseURL      string `env:"DATABASE_URL"`
	DBMaxConns       int32  `env:"DB_MAX_CONNS" envDefault:"4"`
	WriterBufferSize int    `env:"WRITER_BUFFER_SIZE" envDefault:"10000"`
	WriterBatchSize  int    `env:"WRITER_BATCH_SIZE" envDefault:"100"`
	WriterFlushMs    int    `env:"WRITER_FLUSH_MS" envDefault:"100"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StreamFormat {
	case "auto", "ndjson", "sse":
	default:
		return fmt.Errorf("STREAM_FORMAT must be auto, ndjson or sse, got %q", c.StreamFormat)
	}
	switch c.FlagStore {
	case "memory", "nats":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("FLAG_STORE=postgres needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("FLAG_STORE must be memory, nats or postgres, got %q", c.FlagStore)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("READ_BUFFER_SIZE must be positive, got %d", c.ReadBufferSize)
	}
	if c.NATSMaxFile < 0 || c.NATSMaxMemory < 0 {
		return fmt.Errorf("NATS store limits must not be negative")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.TypewriterTick <= 0 {
		return fmt.Errorf("TYPEWRITER_TICK_MS must be positive, got %d", c.TypewriterTick)
	}
	return nil
}

// NeedsNATS reports whether the embedded NATS server has to be started.
func (c *Config) NeedsNATS() bool {
	return c.FlagStore == "nats" || c.RecordStreams
}

// TickInterval is the typewriter interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TypewriterTick) * time.Millisecond
}
