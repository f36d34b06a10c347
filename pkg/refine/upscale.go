package refine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// FactorFor returns the super-resolution scale for an image: large images
// skip inference, medium images get 2x unless they are already pixel-dense,
// and small images always get 4x.
func FactorFor(width, height int) int {
	shorter := width
	if height < shorter {
		shorter = height
	}
	totalPixels := width * height

	switch {
	case shorter >= 2000:
		return 0
	case shorter >= 1000:
		if totalPixels > 2_000_000 {
			return 0
		}
		return 2
	default:
		return 4
	}
}

// UpscaleClient calls the external super-resolution service.
type UpscaleClient struct {
	config     *Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewUpscaleClient creates a new UpscaleClient
func NewUpscaleClient(config *Config) (*UpscaleClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &UpscaleClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.AttemptTimeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(config.RequestsPerMin)/60.0), 1),
		logger:     config.Logger,
	}, nil
}

type upscaleRequest struct {
	Image string `json:"image"`
	Scale int    `json:"scale"`
}

type upscaleResponse struct {
	Image string `json:"image"`
}

// Upscale submits the image for super-resolution at the given factor. A
// 429-class response waits out the service's reset hint (or a fixed backoff)
// before retrying, up to MaxAttempts. Each attempt is bounded by
// AttemptTimeout.
func (c *UpscaleClient) Upscale(ctx context.Context, data []byte, factor int) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		out, retryIn, err := c.attempt(ctx, data, factor)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if retryIn <= 0 {
			// Non-rate-limit failures still get a short linear backoff.
			retryIn = time.Duration(attempt) * 2 * time.Second
		}

		c.logger.WithFields(logrus.Fields{
			"attempt":  attempt,
			"retry_in": retryIn.String(),
			"error":    err,
		}).Warn("Upscale attempt failed")

		if attempt == c.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryIn):
		}
	}

	return nil, fmt.Errorf("upscale failed after %d attempts: %w", c.config.MaxAttempts, lastErr)
}

// attempt performs one inference call. The second return value is the wait
// the service asked for on a 429, zero otherwise.
func (c *UpscaleClient) attempt(ctx context.Context, data []byte, factor int) ([]byte, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
	defer cancel()

	payload, err := json.Marshal(upscaleRequest{
		Image: base64.StdEncoding.EncodeToString(data),
		Scale: factor,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.config.InferenceBaseURL+"/upscale", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.InferenceAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.InferenceAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ParseResetHint(resp, c.config.RateLimitBackoff), fmt.Errorf("inference service rate limited")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("inference service error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed upscaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("failed to decode inference response: %w", err)
	}

	out, err := base64.StdEncoding.DecodeString(parsed.Image)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode upscaled image: %w", err)
	}
	if len(out) == 0 {
		return nil, 0, fmt.Errorf("inference service returned empty image")
	}
	return out, 0, nil
}

// ParseResetHint reads the service's rate-limit reset hint from the
// Retry-After or X-RateLimit-Reset headers, falling back to the configured
// fixed wait.
func ParseResetHint(resp *http.Response, fallback time.Duration) time.Duration {
	if resp == nil {
		return fallback
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if wait := time.Until(time.Unix(unix, 0)); wait > 0 {
				return wait
			}
		}
	}
	return fallback
}
