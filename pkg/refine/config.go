package refine

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects the output profile for a whole pipeline run, never per image.
type Mode string

const (
	// ModeStudio delivers the large lossless-ish canvas with upscaling on.
	ModeStudio Mode = "studio"
	// ModeCompressed delivers a smaller lossy canvas and skips the upscale
	// call entirely for zero marginal inference cost.
	ModeCompressed Mode = "compressed"
)

// Config holds refinement settings
type Config struct {
	// Inference service
	InferenceBaseURL string
	InferenceAPIKey  string
	MaxAttempts      int
	AttemptTimeout   time.Duration
	RateLimitBackoff time.Duration
	RequestsPerMin   int

	// Canvas geometry
	StudioCanvas     int
	CompressedCanvas int
	// MarginFraction of the canvas side left as white border around the
	// longest image dimension.
	MarginFraction float64
	JPEGQuality    int

	Logger *logrus.Logger
}

// NewConfig creates a refine Config from environment variables.
func NewConfig(logger *logrus.Logger) (*Config, error) {
	attempts, _ := strconv.Atoi(getEnvOrDefault("UPSCALE_MAX_ATTEMPTS", "3"))
	timeoutSec, _ := strconv.Atoi(getEnvOrDefault("UPSCALE_ATTEMPT_TIMEOUT_SECONDS", "120"))
	backoffSec, _ := strconv.Atoi(getEnvOrDefault("UPSCALE_RATELIMIT_BACKOFF_SECONDS", "15"))
	rpm, _ := strconv.Atoi(getEnvOrDefault("UPSCALE_REQUESTS_PER_MINUTE", "20"))
	studio, _ := strconv.Atoi(getEnvOrDefault("CANVAS_STUDIO_SIZE", "2048"))
	compressed, _ := strconv.Atoi(getEnvOrDefault("CANVAS_COMPRESSED_SIZE", "1024"))
	margin, _ := strconv.ParseFloat(getEnvOrDefault("CANVAS_MARGIN_FRACTION", "0.10"), 64)
	quality, _ := strconv.Atoi(getEnvOrDefault("CANVAS_JPEG_QUALITY", "80"))

	cfg := &Config{
		InferenceBaseURL: getEnvOrDefault("UPSCALE_API_BASE_URL", "https://api.superres.dev/v1"),
		InferenceAPIKey:  os.Getenv("UPSCALE_API_KEY"),
		MaxAttempts:      attempts,
		AttemptTimeout:   time.Duration(timeoutSec) * time.Second,
		RateLimitBackoff: time.Duration(backoffSec) * time.Second,
		RequestsPerMin:   rpm,
		StudioCanvas:     studio,
		CompressedCanvas: compressed,
		MarginFraction:   margin,
		JPEGQuality:      quality,
		Logger:           logger,
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
	if c.InferenceBaseURL == "" {
		return fmt.Errorf("inference base URL is required")
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 120 * time.Second
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = 15 * time.Second
	}
	if c.StudioCanvas < 512 {
		c.StudioCanvas = 2048
	}
	if c.CompressedCanvas < 256 {
		c.CompressedCanvas = 1024
	}
	if c.MarginFraction < 0.08 || c.MarginFraction > 0.15 {
		c.MarginFraction = 0.10
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		c.JPEGQuality = 80
	}
	if c.RequestsPerMin < 1 {
		c.RequestsPerMin = 20
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
