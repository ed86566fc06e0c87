// Package quote fetches stock quotes and symbol matches from market data
// providers.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"stockmind/internal/domain"
)

var (
	// ErrNoData means the provider answered but had nothing usable: unknown
	// symbol, throttling notice, or an empty body.
	ErrNoData = errors.New("no market data")
	// ErrRateLimited means the local request budget is spent. It wraps
	// ErrNoData so callers treat it as a soft miss.
	ErrRateLimited = fmt.Errorf("rate limit reached: %w", ErrNoData)
	// ErrNoCredential means the provider needs an API key that is not set.
	ErrNoCredential = errors.New("market data API key not configured")
)

// Provider is a source of quotes and symbol search results.
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
	Search(ctx context.Context, keywords string) ([]domain.SymbolMatch, error)
}

// normalize upper-cases and trims a symbol, rejecting empty input.
func normalize(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", fmt.Errorf("empty symbol: %w", ErrNoData)
	}
	return s, nil
}

// Fallback tries providers in order and returns the first success.
type Fallback struct {
	providers []Provider
	log       *slog.Logger
}

// NewFallback chains providers. The last one should be a provider that
// cannot fail, such as Demo.
func NewFallback(log *slog.Logger, providers ...Provider) *Fallback {
	return &Fallback{providers: providers, log: log.With("component", "quote")}
}

// Name lists the chained providers.
func (f *Fallback) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// Quote returns the first provider's quote that succeeds.
func (f *Fallback) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	var errs []error
	for _, p := range f.providers {
		q, err := p.Quote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		if ctx.Err() != nil {
			return domain.Quote{}, ctx.Err()
		}
		f.log.Debug("quote provider failed", "provider", p.Name(), "symbol", symbol, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return domain.Quote{}, errors.Join(errs...)
}

// Search returns the first non-empty result set.
func (f *Fallback) Search(ctx context.Context, keywords string) ([]domain.SymbolMatch, error) {
	var errs []error
	for _, p := range f.providers {
		matches, err := p.Search(ctx, keywords)
		if err == nil && len(matches) > 0 {
			return matches, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			f.log.Debug("search provider failed", "provider", p.Name(), "keywords", keywords, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	if len(errs) == len(f.providers) {
		return nil, errors.Join(errs...)
	}
	return []domain.SymbolMatch{}, nil
}
