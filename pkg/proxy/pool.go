package proxy

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pool caches the provider's endpoint list and hands out endpoints
// round-robin. Preferred-country endpoints rotate independently from the
// rest so a burst of preferred draws does not starve the other pool.
type Pool struct {
	client *Client
	logger *logrus.Logger

	mu           sync.RWMutex
	preferred    []Endpoint
	others       []Endpoint
	preferredIdx int
	otherIdx     int
	lastRefresh  time.Time
}

// NewPool creates a Pool around the given provider client. Call Refresh once
// before first use, then Run in a goroutine for periodic refreshes.
func NewPool(client *Client) *Pool {
	return &Pool{
		client: client,
		logger: client.logger,
	}
}

// Refresh re-fetches the endpoint list, splitting it into preferred-country
// and other pools. A fetch failure keeps the previous cache.
func (p *Pool) Refresh(ctx context.Context) error {
	endpoints, err := p.client.ListEndpoints(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Proxy refresh failed, keeping cached endpoints")
		return err
	}

	var preferred, others []Endpoint
	for _, ep := range endpoints {
		if ep.Country == p.client.config.PreferredCountry {
			preferred = append(preferred, ep)
		} else {
			others = append(others, ep)
		}
	}

	p.mu.Lock()
	p.preferred = preferred
	p.others = others
	p.lastRefresh = time.Now()
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"preferred": len(preferred),
		"others":    len(others),
	}).Info("Proxy pool refreshed")
	return nil
}

// Run refreshes the pool on the configured interval until ctx is canceled.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.client.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Refresh(ctx)
		}
	}
}

// Next returns the next endpoint in rotation. When the preferred pool is
// requested but empty, it falls back to the other pool. Returns false when no
// endpoints are cached at all; scraping then proceeds without a proxy.
func (p *Pool) Next(preferred bool) (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if preferred && len(p.preferred) > 0 {
		ep := p.preferred[p.preferredIdx%len(p.preferred)]
		p.preferredIdx++
		return ep, true
	}
	if len(p.others) > 0 {
		ep := p.others[p.otherIdx%len(p.others)]
		p.otherIdx++
		return ep, true
	}
	if len(p.preferred) > 0 {
		ep := p.preferred[p.preferredIdx%len(p.preferred)]
		p.preferredIdx++
		return ep, true
	}
	return Endpoint{}, false
}

// Size returns the cached endpoint counts.
func (p *Pool) Size() (preferred, others int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.preferred), len(p.others)
}
