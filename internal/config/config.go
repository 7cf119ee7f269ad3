// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/jason-s-yu/crusty/internal/game"
	"github.com/sirupsen/logrus"
)

// Config is the static startup configuration of the game service.
type Config struct {
	Port      string `env:"PORT"       envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	HandSize    int  `env:"HAND_SIZE"    envDefault:"10"`
	ScoreTarget int  `env:"SCORE_TARGET" envDefault:"8"`
	MinPlayers  int  `env:"MIN_PLAYERS"  envDefault:"3"`
	MaxPlayers  int  `env:"MAX_PLAYERS"  envDefault:"10"`
	AutoStart   bool `env:"AUTO_START"   envDefault:"true"`

	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT"   envDefault:"4h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	RedisAddr          string `env:"REDIS_ADDR"           envDefault:"localhost:6379"`
	RedisDB            int    `env:"REDIS_DB"             envDefault:"0"`
	EventQueueName     string `env:"EVENT_QUEUE_NAME"     envDefault:"crusty_game_events"`
	EventChannelPrefix string `env:"EVENT_CHANNEL_PREFIX" envDefault:"game:"`

	PublishQueueSize      int           `env:"PUBLISH_QUEUE_SIZE"      envDefault:"1024"`
	PublishWorkers        int           `env:"PUBLISH_WORKERS"         envDefault:"4"`
	PublishMaxAttempts    uint          `env:"PUBLISH_MAX_ATTEMPTS"    envDefault:"5"`
	PublishInitialBackoff time.Duration `env:"PUBLISH_INITIAL_BACKOFF" envDefault:"100ms"`
	PublishMaxBackoff     time.Duration `env:"PUBLISH_MAX_BACKOFF"     envDefault:"2s"`
	PublishTimeout        time.Duration `env:"PUBLISH_TIMEOUT"         envDefault:"2s"`
	PublishDrainTimeout   time.Duration `env:"PUBLISH_DRAIN_TIMEOUT"   envDefault:"5s"`

	// Catalog comes from DATABASE_URL when set, otherwise from CATALOG_FILE.
	DatabaseURL    string        `env:"DATABASE_URL"`
	CatalogFile    string        `env:"CATALOG_FILE"    envDefault:"catalog.json"`
	CatalogRefresh time.Duration `env:"CATALOG_REFRESH" envDefault:"10m"`
	DefaultPacks   []string      `env:"DEFAULT_PACKS"   envDefault:"base" envSeparator:","`

	JWTPrivateKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	if err := c.Rules().Validate(); err != nil {
		return err
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT must be positive, got %s", c.IdleTimeout)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.PublishMaxAttempts == 0 {
		return fmt.Errorf("PUBLISH_MAX_ATTEMPTS must be at least 1")
	}
	if len(c.DefaultPacks) == 0 {
		return fmt.Errorf("DEFAULT_PACKS must name at least one pack")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Rules is the default rule set for new games.
func (c Config) Rules() game.Rules {
	return game.Rules{
		HandSize:    c.HandSize,
		ScoreTarget: c.ScoreTarget,
		MinPlayers:  c.MinPlayers,
		MaxPlayers:  c.MaxPlayers,
		AutoStart:   c.AutoStart,
	}
}

// PublisherOptions maps the PUBLISH_* settings onto the event publisher.
func (c Config) PublisherOptions() events.Options {
	return events.Options{
		QueueSize:      c.PublishQueueSize,
		Workers:        c.PublishWorkers,
		MaxAttempts:    c.PublishMaxAttempts,
		InitialBackoff: c.PublishInitialBackoff,
		MaxBackoff:     c.PublishMaxBackoff,
		Timeout:        c.PublishTimeout,
		DrainTimeout:   c.PublishDrainTimeout,
	}
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *logrus.Logger {
	return newLogger(c.LogLevel, c.LogFormat)
}

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// HistorianConfig configures the historian, which drains the event queue into Postgres.
type HistorianConfig struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	RedisAddr      string `env:"REDIS_ADDR"       envDefault:"localhost:6379"`
	RedisDB        int    `env:"REDIS_DB"         envDefault:"0"`
	EventQueueName string `env:"EVENT_QUEUE_NAME" envDefault:"crusty_game_events"`

	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	BatchSize  int           `env:"HISTORIAN_BATCH_SIZE"  envDefault:"20"`
	FlushDelay time.Duration `env:"HISTORIAN_FLUSH_DELAY" envDefault:"500ms"`
}

// LoadHistorian parses the historian's environment.
func LoadHistorian() (HistorianConfig, error) {
	var cfg HistorianConfig
	if err := env.Parse(&cfg); err != nil {
		return HistorianConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BatchSize <= 0 {
		return HistorianConfig{}, fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	return cfg, nil
}

// NewLogger builds the historian's logger.
func (c HistorianConfig) NewLogger() *logrus.Logger {
	return newLogger(c.LogLevel, c.LogFormat)
}
