package quote

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockmind/internal/domain"
	"stockmind/internal/util"
)

type snapshotGetter interface {
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

type assetLister interface {
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
}

const (
	assetTTL       = time.Hour
	maxSearchHits  = 10
	alpacaAttempts = 3
)

// Alpaca serves quotes from Alpaca market data snapshots and searches the
// tradable US equity list.
type Alpaca struct {
	data   snapshotGetter
	assets assetLister
	now    func() time.Time

	mu        sync.Mutex
	cached    []alpaca.Asset
	fetchedAt time.Time
}

// NewAlpaca creates a provider from Alpaca credentials. Empty URLs use the
// SDK defaults.
func NewAlpaca(apiKey, apiSecret, baseURL, dataURL string) *Alpaca {
	mdOpts := marketdata.ClientOpts{APIKey: apiKey, APISecret: apiSecret}
	if dataURL != "" {
		mdOpts.BaseURL = dataURL
	}
	return &Alpaca{
		data: marketdata.NewClient(mdOpts),
		assets: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		now: time.Now,
	}
}

// Name implements Provider.
func (a *Alpaca) Name() string { return "alpaca" }

// Quote compares the latest trade against the previous daily close.
func (a *Alpaca) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	sym, err := normalize(symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	var snap *marketdata.Snapshot
	err = util.Retry(ctx, alpacaAttempts, 250*time.Millisecond, func() error {
		var err error
		snap, err = a.data.GetSnapshot(sym, marketdata.GetSnapshotRequest{})
		return err
	})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("alpaca snapshot %s: %w", sym, err)
	}
	if snap == nil || snap.LatestTrade == nil {
		return domain.Quote{}, fmt.Errorf("alpaca snapshot %s: %w", sym, ErrNoData)
	}

	q := domain.Quote{
		Symbol: sym,
		Price:  snap.LatestTrade.Price,
		Source: a.Name(),
		AsOf:   snap.LatestTrade.Timestamp,
	}
	if q.AsOf.IsZero() {
		q.AsOf = a.now()
	}
	if snap.DailyBar != nil {
		q.Volume = int64(snap.DailyBar.Volume)
	}
	if snap.PrevDailyBar != nil && snap.PrevDailyBar.Close > 0 {
		prev := snap.PrevDailyBar.Close
		q.Change = q.Price - prev
		q.ChangePercent = q.Change / prev * 100
	}
	return q, nil
}

// Search matches keywords against active US equity symbols and names.
// Exact symbol hits rank first, then symbol prefixes, then symbols containing
// the keyword, then name matches.
func (a *Alpaca) Search(ctx context.Context, keywords string) ([]domain.SymbolMatch, error) {
	kw := strings.ToUpper(strings.TrimSpace(keywords))
	if kw == "" {
		return []domain.SymbolMatch{}, nil
	}

	assets, err := a.assetList(ctx)
	if err != nil {
		return nil, err
	}

	type hit struct {
		rank  int
		asset alpaca.Asset
	}
	var hits []hit
	for _, as := range assets {
		sym := strings.ToUpper(as.Symbol)
		switch {
		case sym == kw:
			hits = append(hits, hit{0, as})
		case strings.HasPrefix(sym, kw):
			hits = append(hits, hit{1, as})
		case strings.Contains(sym, kw):
			hits = append(hits, hit{2, as})
		case strings.Contains(strings.ToUpper(as.Name), kw):
			hits = append(hits, hit{3, as})
		}
	}
	slices.SortStableFunc(hits, func(x, y hit) int {
		if x.rank != y.rank {
			return x.rank - y.rank
		}
		return strings.Compare(x.asset.Symbol, y.asset.Symbol)
	})

	out := make([]domain.SymbolMatch, 0, min(len(hits), maxSearchHits))
	for _, h := range hits[:min(len(hits), maxSearchHits)] {
		out = append(out, domain.SymbolMatch{
			Symbol:   h.asset.Symbol,
			Name:     h.asset.Name,
			Type:     "Equity",
			Region:   "United States",
			Currency: "USD",
		})
	}
	return out, nil
}

// assetList returns the cached asset list, refreshing it once per TTL.
func (a *Alpaca) assetList(ctx context.Context) ([]alpaca.Asset, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cached != nil && a.now().Sub(a.fetchedAt) < assetTTL {
		return a.cached, nil
	}

	var assets []alpaca.Asset
	err := util.Retry(ctx, alpacaAttempts, 250*time.Millisecond, func() error {
		var err error
		assets, err = a.assets.GetAssets(alpaca.GetAssetsRequest{
			Status:     "active",
			AssetClass: "us_equity",
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca assets: %w", err)
	}
	a.cached = assets
	a.fetchedAt = a.now()
	return assets, nil
}
