// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	CachePath           string        `mapstructure:"CACHE_PATH"`
	GithubToken         string        `mapstructure:"GITHUB_TOKEN"`
	ReposToSync         []string      `mapstructure:"REPOS_TO_SYNC"`
	PageSize            int           `mapstructure:"PAGE_SIZE"`
	IssuePollInterval   time.Duration `mapstructure:"ISSUE_POLL_INTERVAL"`
	CommentPollInterval time.Duration `mapstructure:"COMMENT_POLL_INTERVAL"`
	ReviewPollInterval  time.Duration `mapstructure:"REVIEW_POLL_INTERVAL"`
	CommentTTL          time.Duration `mapstructure:"COMMENT_TTL"`
	CommentCap          int           `mapstructure:"COMMENT_CAP"`
	ListenAddr          string        `mapstructure:"LISTEN_ADDR"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CACHE_PATH", "mirror.db")
	viper.SetDefault("PAGE_SIZE", 50)
	viper.SetDefault("ISSUE_POLL_INTERVAL", "5m")
	viper.SetDefault("COMMENT_POLL_INTERVAL", "1m")
	viper.SetDefault("REVIEW_POLL_INTERVAL", "2m")
	viper.SetDefault("COMMENT_TTL", "720h")
	viper.SetDefault("COMMENT_CAP", 5000)
	viper.SetDefault("LISTEN_ADDR", "127.0.0.1:7480")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if len(cfg.ReposToSync) == 0 {
		return nil, errors.New("REPOS_TO_SYNC must contain at least one repository")
	}
	if cfg.PageSize < 1 || cfg.PageSize > 100 {
		return nil, errors.New("PAGE_SIZE must be between 1 and 100")
	}
	if cfg.CommentCap < 1 {
		return nil, errors.New("COMMENT_CAP must be positive")
	}

	return &cfg, nil
}
