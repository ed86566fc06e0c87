// Package market builds the market heat map and overview from a quote
// provider.
package market

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stockmind/internal/domain"
	"stockmind/internal/quote"
	"stockmind/internal/util"
)

const fetchConcurrency = 4

// Service computes heat maps for a fixed watch universe. Results are cached
// for ttl so bursts of requests do not exhaust provider quotas.
type Service struct {
	provider quote.Provider
	universe []quote.Listing
	session  *util.USSession
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	cached   *Heatmap
	cachedAt time.Time
}

// NewService creates a Service over universe.
func NewService(provider quote.Provider, universe []quote.Listing, session *util.USSession, ttl time.Duration, log *slog.Logger) *Service {
	return &Service{
		provider: provider,
		universe: universe,
		session:  session,
		ttl:      ttl,
		now:      time.Now,
		log:      log.With("component", "market"),
	}
}

// Heatmap returns the current heat map. Symbols whose quote fails are left
// out.
func (s *Service) Heatmap(ctx context.Context) (*Heatmap, error) {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.cachedAt) < s.ttl {
		hm := s.cached
		s.mu.Unlock()
		return hm, nil
	}
	s.mu.Unlock()

	quotes, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	tiles := make([]Tile, 0, len(quotes))
	for i, q := range quotes {
		if q == nil {
			continue
		}
		tiles = append(tiles, newTile(s.universe[i], *q))
	}

	// Sort by market cap descending for consistent treemap layout.
	sort.SliceStable(tiles, func(i, j int) bool {
		return tiles[i].MarketCapB > tiles[j].MarketCapB
	})

	now := s.now()
	hm := &Heatmap{
		AsOf:  now,
		Tiles: tiles,
		Stats: computeStats(tiles),
	}
	if s.session != nil {
		hm.MarketOpen = s.session.IsOpen(now)
		if !hm.MarketOpen {
			hm.NextOpen = s.session.NextOpen(now)
		}
	}

	s.mu.Lock()
	s.cached, s.cachedAt = hm, now
	s.mu.Unlock()
	return hm, nil
}

// Overview returns quotes for the universe ordered by percent change, best
// first.
func (s *Service) Overview(ctx context.Context) ([]domain.Quote, error) {
	quotes, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q != nil {
			out = append(out, *q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ChangePercent > out[j].ChangePercent
	})
	return out, nil
}

// fetch quotes every universe symbol concurrently. The result is indexed
// like the universe with nil for failures.
func (s *Service) fetch(ctx context.Context) ([]*domain.Quote, error) {
	results := make([]*domain.Quote, len(s.universe))
	sem := make(chan struct{}, fetchConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i, l := range s.universe {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			q, err := s.provider.Quote(gctx, l.Symbol)
			if err != nil {
				s.log.Debug("skipping symbol", "symbol", l.Symbol, "error", err)
				return nil
			}
			results[i] = &q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func newTile(l quote.Listing, q domain.Quote) Tile {
	t := Tile{
		Symbol:        l.Symbol,
		Name:          l.Name,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		MarketCapB:    l.MarketCapB,
		Intensity:     Intensity(q.ChangePercent),
		Size:          SizeClass(l.MarketCapB),
		Source:        q.Source,
	}
	switch {
	case q.ChangePercent > 0:
		t.Direction = "up"
	case q.ChangePercent < 0:
		t.Direction = "down"
	default:
		t.Direction = "flat"
	}
	return t
}

// Intensity maps a percent change to a colour strength in [0, 1].
func Intensity(changePercent float64) float64 {
	return math.Min(math.Abs(changePercent)/5, 1)
}

// SizeClass buckets a market cap in billions into a tile size.
func SizeClass(capB float64) string {
	switch {
	case capB > 2000:
		return "xl"
	case capB > 1000:
		return "wide"
	case capB > 500:
		return "tall"
	default:
		return "normal"
	}
}

func computeStats(tiles []Tile) Stats {
	var st Stats
	if len(tiles) == 0 {
		return st
	}
	var sum float64
	for _, t := range tiles {
		sum += t.ChangePercent
		switch t.Direction {
		case "up":
			st.Gainers++
		case "down":
			st.Losers++
		}
	}
	st.AvgChange = math.Round(sum/float64(len(tiles))*100) / 100
	return st
}
