package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Endpoint is one egress proxy as reported by the provider.
type Endpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Country  string `json:"country"`
	Active   bool   `json:"active"`
}

// URL renders the endpoint as a proxy URL without credentials; credentials
// travel separately because Chrome takes them via a different switch.
func (e Endpoint) URL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// Client fetches the paginated endpoint list from the proxy provider.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new proxy provider API client
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     config.Logger,
	}, nil
}

type listResponse struct {
	Endpoints []Endpoint `json:"endpoints"`
	NextPage  int        `json:"next_page"`
}

// ListEndpoints walks the provider's pagination and returns every active
// endpoint.
func (c *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var all []Endpoint
	page := 1

	for {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}

		for _, ep := range resp.Endpoints {
			if ep.Active {
				all = append(all, ep)
			}
		}

		if resp.NextPage == 0 || len(resp.Endpoints) == 0 {
			break
		}
		page = resp.NextPage
	}

	c.logger.WithField("endpoint_count", len(all)).Debug("Fetched proxy endpoints")
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) (*listResponse, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	url := fmt.Sprintf("%s/endpoints?page=%d&page_size=%d", c.config.BaseURL, page, c.config.PageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("proxy provider error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed listResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode endpoint list: %w", err)
	}

	return &parsed, nil
}
