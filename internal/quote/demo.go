package quote

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"stockmind/internal/domain"
)

// Listing is one stock of the built-in demo universe.
type Listing struct {
	Symbol        string
	Name          string
	Price         float64
	Change        float64
	ChangePercent float64
	MarketCapB    float64 // billions of USD
}

// Universe is the fixed demo watch list.
var Universe = []Listing{
	{"AAPL", "Apple Inc.", 175.84, 2.34, 1.35, 2800},
	{"MSFT", "Microsoft Corporation", 378.85, 4.23, 1.13, 2900},
	{"GOOGL", "Alphabet Inc.", 138.21, -1.45, -1.04, 1700},
	{"AMZN", "Amazon.com, Inc.", 145.86, 0.92, 0.63, 1500},
	{"TSLA", "Tesla, Inc.", 248.50, -8.34, -3.25, 789},
	{"NVDA", "NVIDIA Corporation", 875.30, 15.67, 1.82, 2100},
	{"META", "Meta Platforms, Inc.", 484.10, 8.98, 1.89, 890},
	{"NFLX", "Netflix, Inc.", 578.45, -8.51, -1.45, 180},
	{"ORCL", "Oracle Corporation", 125.20, 0.83, 0.67, 340},
	{"CRM", "Salesforce, Inc.", 302.15, 6.24, 2.11, 250},
	{"ADBE", "Adobe Inc.", 529.60, -5.24, -0.98, 280},
	{"INTC", "Intel Corporation", 43.12, 0.57, 1.34, 200},
}

// Lookup returns the demo listing for symbol.
func Lookup(symbol string) (Listing, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, l := range Universe {
		if l.Symbol == symbol {
			return l, true
		}
	}
	return Listing{}, false
}

// Demo fabricates quotes around the demo universe. Known symbols wander
// slightly around their listed values; unknown symbols get a random price.
// It never fails for a non-empty symbol.
type Demo struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewDemo creates a Demo seeded from seed.
func NewDemo(seed uint64) *Demo {
	return &Demo{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Name implements Provider.
func (d *Demo) Name() string { return "demo" }

// jitter returns a value uniformly distributed in [-spread/2, spread/2).
func (d *Demo) jitter(spread float64) float64 {
	return (d.rng.Float64() - 0.5) * spread
}

// Quote implements Provider.
func (d *Demo) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	sym, err := normalize(symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	q := domain.Quote{Symbol: sym, Source: d.Name(), AsOf: d.now()}
	if l, ok := Lookup(sym); ok {
		q.Price = l.Price + d.jitter(2)
		q.Change = l.Change + d.jitter(0.5)
		q.ChangePercent = l.ChangePercent + d.jitter(0.1)
	} else {
		q.Price = d.rng.Float64()*500 + 50
		q.ChangePercent = d.jitter(10)
		q.Change = q.Price * q.ChangePercent / 100
	}
	q.Volume = int64(d.rng.IntN(50_000_000) + 1_000_000)
	q.Price = round2(q.Price)
	q.Change = round2(q.Change)
	q.ChangePercent = round2(q.ChangePercent)
	return q, nil
}

// Search matches keywords against demo symbols and names.
func (d *Demo) Search(_ context.Context, keywords string) ([]domain.SymbolMatch, error) {
	kw := strings.ToUpper(strings.TrimSpace(keywords))
	out := []domain.SymbolMatch{}
	if kw == "" {
		return out, nil
	}
	for _, l := range Universe {
		if strings.Contains(l.Symbol, kw) || strings.Contains(strings.ToUpper(l.Name), kw) {
			out = append(out, domain.SymbolMatch{
				Symbol:   l.Symbol,
				Name:     l.Name,
				Type:     "Equity",
				Region:   "United States",
				Currency: "USD",
			})
		}
	}
	return out, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
