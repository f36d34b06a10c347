package scraper

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds scraping policy knobs. The caps here exist for cost control
// and are deliberately configuration, not structural limits.
type Config struct {
	// Navigation
	NavigationTimeout time.Duration
	SettleDelay       time.Duration

	// Cost-control caps
	MaxURLsPerStore  int
	StoreBatchSize   int
	MaxCandidates    int
	DownloadsPerItem int

	// Download floor. Candidates below either floor are discarded.
	MinDownloadKB    int
	MinImageWidth    int
	MinImageHeight   int
	DownloadTimeout  time.Duration
	DownloadRatePerS float64

	Logger *logrus.Logger
}

// NewConfig creates a scraper Config from environment variables.
func NewConfig(logger *logrus.Logger) (*Config, error) {
	navSec, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_NAV_TIMEOUT_SECONDS", "25"))
	settleMs, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_SETTLE_DELAY_MS", "1500"))
	maxPerStore, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_MAX_URLS_PER_STORE", "5"))
	batchSize, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_STORE_BATCH_SIZE", "5"))
	maxCandidates, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_MAX_CANDIDATES", "25"))
	downloadsPerItem, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_DOWNLOADS_PER_ITEM", "12"))
	minKB, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_MIN_DOWNLOAD_KB", "15"))
	minW, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_MIN_IMAGE_WIDTH", "200"))
	minH, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_MIN_IMAGE_HEIGHT", "200"))
	dlSec, _ := strconv.Atoi(getEnvOrDefault("SCRAPE_DOWNLOAD_TIMEOUT_SECONDS", "30"))
	rate, _ := strconv.ParseFloat(getEnvOrDefault("SCRAPE_DOWNLOAD_RATE_PER_SECOND", "8"), 64)

	cfg := &Config{
		NavigationTimeout: time.Duration(navSec) * time.Second,
		SettleDelay:       time.Duration(settleMs) * time.Millisecond,
		MaxURLsPerStore:   maxPerStore,
		StoreBatchSize:    batchSize,
		MaxCandidates:     maxCandidates,
		DownloadsPerItem:  downloadsPerItem,
		MinDownloadKB:     minKB,
		MinImageWidth:     minW,
		MinImageHeight:    minH,
		DownloadTimeout:   time.Duration(dlSec) * time.Second,
		DownloadRatePerS:  rate,
		Logger:            logger,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings and applies defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.StoreBatchSize < 1 {
		c.StoreBatchSize = 5
	}
	if c.MaxURLsPerStore < 1 {
		c.MaxURLsPerStore = 5
	}
	if c.MaxCandidates < 1 {
		c.MaxCandidates = 25
	}
	if c.DownloadsPerItem < 1 {
		c.DownloadsPerItem = 12
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 30 * time.Second
	}
	if c.DownloadRatePerS <= 0 {
		c.DownloadRatePerS = 8
	}
	return nil
}

// CompressedFloor lowers the download floor for compressed output mode,
// where thumbnails are acceptable input.
func (c *Config) CompressedFloor() (kb, w, h int) {
	return 5, 100, 100
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
