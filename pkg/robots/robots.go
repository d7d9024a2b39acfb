// Package robots decides whether a URL may be fetched according to its host's robots.txt.
package robots

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"market-sentiment/pkg/httpclient"
	"market-sentiment/pkg/metrics"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// Checker caches parsed robots.txt per scheme+host for its lifetime.
//
// When robots data cannot be obtained (transport error, 5xx, unparsable body, or the
// caller gave up waiting) the fetch is allowed and the lookup is not cached.
type Checker struct {
	client  *httpclient.HTTPClient
	agent   string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	hosts  map[string]*robotstxt.RobotsData
	flight singleflight.Group
}

// NewChecker creates a checker that tests paths against client's user-agent.
func NewChecker(client *httpclient.HTTPClient, logger *slog.Logger, m *metrics.Metrics) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		client:  client,
		agent:   client.UserAgent(),
		logger:  logger.With("component", "robots"),
		metrics: m,
		hosts:   make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched.
func (c *Checker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		c.metrics.RobotsCheck("unavailable")
		return true
	}

	data := c.rulesFor(ctx, u)
	if data == nil {
		c.metrics.RobotsCheck("unavailable")
		return true
	}

	if !data.TestAgent(u.RequestURI(), c.agent) {
		c.metrics.RobotsCheck("disallowed")
		c.logger.Info("Robots: path disallowed", "url", rawURL)
		return false
	}
	c.metrics.RobotsCheck("allowed")
	return true
}

// rulesFor returns parsed rules for u's host, or nil when none could be obtained.
// Only parsed robots.txt responses are cached; a failed lookup is retried by the next caller.
func (c *Checker) rulesFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	hostKey := u.Scheme + "://" + u.Host

	c.mu.RLock()
	data, ok := c.hosts[hostKey]
	c.mu.RUnlock()
	if ok {
		return data
	}

	// The load outlives any single caller; the client timeout bounds it.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(hostKey, func() (interface{}, error) {
		data, ok := c.load(loadCtx, hostKey)
		if ok {
			c.mu.Lock()
			c.hosts[hostKey] = data
			c.mu.Unlock()
		}
		return data, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*robotstxt.RobotsData)
	case <-ctx.Done():
		return nil
	}
}

// load fetches and parses robots.txt. ok is false when the rules could not be obtained.
func (c *Checker) load(ctx context.Context, hostKey string) (*robotstxt.RobotsData, bool) {
	robotsURL := hostKey + "/robots.txt"

	resp, err := c.client.Get(ctx, robotsURL)
	if err != nil {
		c.logger.Warn("Robots: robots.txt unreachable, allowing", "url", robotsURL, "error", err)
		return nil, false
	}
	if resp.StatusCode >= 500 {
		c.logger.Warn("Robots: robots.txt server error, allowing", "url", robotsURL, "status", resp.StatusCode)
		return nil, false
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		c.logger.Warn("Robots: robots.txt unparsable, allowing", "url", robotsURL, "error", err)
		return nil, false
	}
	return data, true
}
