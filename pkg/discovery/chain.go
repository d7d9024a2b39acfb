package discovery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Chain tries providers in order and returns the first non-empty result.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger.With("component", "discovery")}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Search returns an error only when every provider failed.
func (c *Chain) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	var errs []error
	for _, p := range c.providers {
		results, err := p.Search(ctx, query, limit)
		if err != nil {
			c.logger.Warn("Discovery: provider failed, trying next", "provider", p.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	if len(errs) == len(c.providers) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}
