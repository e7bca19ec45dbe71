// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	// ChannelID is the chat the bot publishes listings to.
	ChannelID    int64  `env:"CHANNEL_ID,required"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/bot.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// ListingLifetime is how long a listing stays active after creation
	// or extension.
	ListingLifetime time.Duration `env:"LISTING_LIFETIME" envDefault:"60m"`
	// PurgeGrace is how long an expired listing's channel message is left
	// in place before the sweeper removes it.
	PurgeGrace    time.Duration `env:"PURGE_GRACE" envDefault:"15m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	// RatingDelay is how long after a contact reveal the rating prompt is
	// scheduled.
	RatingDelay time.Duration `env:"RATING_DELAY" envDefault:"2h"`

	MaxPrice int `env:"MAX_PRICE" envDefault:"270"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ListingLifetime <= 0 {
		return nil, fmt.Errorf("LISTING_LIFETIME must be positive, got %s", cfg.ListingLifetime)
	}
	if cfg.PurgeGrace < 0 {
		return nil, fmt.Errorf("PURGE_GRACE must not be negative, got %s", cfg.PurgeGrace)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.MaxPrice <= 0 {
		return nil, fmt.Errorf("MAX_PRICE must be positive, got %d", cfg.MaxPrice)
	}

	return &cfg, nil
}
