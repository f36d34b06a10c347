package proxy

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds proxy-provider API settings
type Config struct {
	// API access
	BaseURL string
	APIKey  string

	// Pool behavior
	PreferredCountry string
	RefreshInterval  time.Duration
	PageSize         int

	Logger *logrus.Logger
}

// NewConfig creates a proxy Config from environment variables.
func NewConfig(logger *logrus.Logger) (*Config, error) {
	pageSize, _ := strconv.Atoi(getEnvOrDefault("PROXY_PAGE_SIZE", "100"))
	refreshMin, _ := strconv.Atoi(getEnvOrDefault("PROXY_REFRESH_MINUTES", "10"))

	cfg := &Config{
		BaseURL:          getEnvOrDefault("PROXY_API_BASE_URL", "https://api.proxyprovider.io/v1"),
		APIKey:           os.Getenv("PROXY_API_KEY"),
		PreferredCountry: getEnvOrDefault("PROXY_PREFERRED_COUNTRY", "US"),
		RefreshInterval:  time.Duration(refreshMin) * time.Minute,
		PageSize:         pageSize,
		Logger:           logger,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and applies defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.BaseURL == "" {
		return fmt.Errorf("proxy API base URL is required")
	}
	if c.PageSize < 1 {
		c.PageSize = 100
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 10 * time.Minute
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
