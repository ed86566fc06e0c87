package market

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrUnknownRange is returned by History for an unsupported chart range.
var ErrUnknownRange = errors.New("unknown chart range")

// Prediction is a simulated forecast for one horizon.
type Prediction struct {
	Direction     string  `json:"direction"`     // "up" or "down"
	Confidence    int     `json:"confidence"`    // 30-95
	ChangePercent float64 `json:"changePercent"` // signed, one decimal
}

// ModelScore is the simulated accuracy of one forecasting model.
type ModelScore struct {
	Name     string  `json:"name"`
	Accuracy float64 `json:"accuracy"` // 60-98
	Status   string  `json:"status"`   // "active" or "training"
}

// Forecast is the prediction panel for a symbol.
type Forecast struct {
	Symbol    string       `json:"symbol"`
	AsOf      time.Time    `json:"asOf"`
	NextDay   Prediction   `json:"nextDay"`
	NextWeek  Prediction   `json:"nextWeek"`
	NextMonth Prediction   `json:"nextMonth"`
	Models    []ModelScore `json:"models"`
}

// ChartPoint is one sample of a simulated price series.
type ChartPoint struct {
	Label  string  `json:"label"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

type profile struct {
	volatility float64
	growth     float64
	stability  float64
}

var profiles = map[string]profile{
	"AAPL":  {0.3, 0.8, 0.9},
	"GOOGL": {0.4, 0.7, 0.8},
	"MSFT":  {0.25, 0.75, 0.95},
	"TSLA":  {0.8, 0.9, 0.4},
	"NFLX":  {0.5, 0.6, 0.6},
	"AMZN":  {0.35, 0.85, 0.7},
	"META":  {0.6, 0.7, 0.5},
	"NVDA":  {0.7, 0.95, 0.6},
}

var defaultProfile = profile{0.5, 0.6, 0.6}

var techStocks = []string{"AAPL", "GOOGL", "MSFT", "TSLA", "NFLX", "META", "NVDA"}

type horizon struct {
	volMultiplier float64
	maxChange     float64
}

var (
	nextDay   = horizon{1, 5}
	nextWeek  = horizon{1.5, 12}
	nextMonth = horizon{2, 20}
)

type model struct {
	name     string
	accuracy float64
	status   string
}

var models = []model{
	{"LSTM Neural Network", 85, "active"},
	{"Random Forest", 78, "active"},
	{"Transformer Model", 92, "training"},
	{"Ensemble Model", 88, "active"},
}

// chartRange describes how many points a range has and how they are labelled.
type chartRange struct {
	points int
	period float64 // of the sine drift, in points
	drift  float64 // drift amplitude per point
	label  func(i int) string
}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var chartRanges = map[string]chartRange{
	"1D": {24, 10, 0.001, func(i int) string { return fmt.Sprintf("%d:%02d", 9+i/2, 30*(i%2)) }},
	"1W": {7, 10, 0.001, func(i int) string { return weekdays[i] }},
	"1M": {30, 10, 0.001, func(i int) string { return fmt.Sprintf("%d", i+1) }},
	"3M": {90, 10, 0.001, func(i int) string { return fmt.Sprintf("Day %d", i+1) }},
	"1Y": {365, 50, 0.002, func(i int) string { return fmt.Sprintf("%dM", i/30+1) }},
}

// Ranges lists the chart ranges History accepts.
func Ranges() []string { return []string{"1D", "1W", "1M", "3M", "1Y"} }

// Predictor fabricates forecasts and price histories. Nothing here is a
// real model; the numbers are shaped by a per-company profile so the
// dashboard has plausible values to show.
type Predictor struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewPredictor creates a Predictor seeded from seed.
func NewPredictor(seed uint64) *Predictor {
	return &Predictor{
		rng: rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d)),
		now: time.Now,
	}
}

func normalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", errors.New("empty symbol")
	}
	return s, nil
}

// Predict returns next-day, next-week and next-month forecasts for symbol
// along with model accuracies.
func (p *Predictor) Predict(symbol string) (Forecast, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return Forecast{}, err
	}
	prof, ok := profiles[sym]
	if !ok {
		prof = defaultProfile
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return Forecast{
		Symbol:    sym,
		AsOf:      p.now(),
		NextDay:   p.predict(prof, nextDay),
		NextWeek:  p.predict(prof, nextWeek),
		NextMonth: p.predict(prof, nextMonth),
		Models:    p.scoreModels(sym),
	}, nil
}

// predict must be called with mu held.
func (p *Predictor) predict(prof profile, h horizon) Prediction {
	// Growth biases the coin toward up.
	up := p.rng.Float64()+prof.growth*0.3 > 0.5

	conf := 40 + prof.stability*40 + (p.rng.Float64()-0.5)*20
	conf = min(max(conf, 30), 95)

	change := math.Abs((p.rng.Float64() - 0.5) * h.maxChange * prof.volatility * h.volMultiplier)
	pred := Prediction{Direction: "up", Confidence: int(conf), ChangePercent: math.Round(change*10) / 10}
	if !up {
		pred.Direction = "down"
		pred.ChangePercent = -pred.ChangePercent
	}
	return pred
}

// scoreModels must be called with mu held.
func (p *Predictor) scoreModels(sym string) []ModelScore {
	tech := slices.Contains(techStocks, sym)
	out := make([]ModelScore, 0, len(models))
	for _, m := range models {
		adj := 0.0
		switch {
		case m.name == "Transformer Model" && tech:
			adj = 3
		case m.name == "LSTM Neural Network" && sym == "TSLA":
			adj = -5
		case m.name == "Random Forest" && !tech:
			adj = 4
		}
		acc := m.accuracy + adj + (p.rng.Float64()-0.5)*4
		out = append(out, ModelScore{
			Name:     m.name,
			Accuracy: math.Round(min(max(acc, 60), 98)*10) / 10,
			Status:   m.status,
		})
	}
	return out
}

// chartVolatility is the per-point move size for a symbol.
func chartVolatility(sym string) float64 {
	switch {
	case strings.Contains(sym, "CRYPTO") || strings.Contains(sym, "BITCOIN"):
		return 0.08
	case strings.HasSuffix(sym, ".BSE") || strings.HasSuffix(sym, ".NSE"):
		return 0.035
	default:
		return 0.025
	}
}

// History walks a random price series backwards from price so the last
// point is the current price. A non-positive price starts from 100.
func (p *Predictor) History(symbol string, price float64, rangeName string) ([]ChartPoint, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	cr, ok := chartRanges[strings.ToUpper(rangeName)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", rangeName, ErrUnknownRange)
	}
	if price <= 0 {
		price = 100
	}
	vol := chartVolatility(sym)

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ChartPoint, cr.points)
	cur := price
	for i := cr.points - 1; i >= 0; i-- {
		if i < cr.points-1 {
			drift := math.Sin(float64(i)/cr.period) * cr.drift
			cur *= 1 - (drift + (p.rng.Float64()-0.5)*vol*2)
		}
		out[i] = ChartPoint{
			Label:  cr.label(i),
			Price:  math.Round(cur*100) / 100,
			Volume: int64(p.rng.IntN(10_000_000) + 1_000_000),
		}
	}
	return out, nil
}
