package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockmind/internal/domain"
	"stockmind/internal/util"
)

// AlphaVantage queries the Alpha Vantage REST API.
type AlphaVantage struct {
	baseURL string
	apiKey  func() string
	client  *http.Client
	limiter *util.RateLimiter
	now     func() time.Time
}

// NewAlphaVantage creates a provider. apiKey is read on every request so a
// key changed in settings takes effect immediately. perMinute <= 0 disables
// rate limiting. A request over the limit fails with ErrRateLimited instead
// of waiting, so a Fallback chain moves on to the next provider.
func NewAlphaVantage(baseURL string, apiKey func() string, perMinute int) *AlphaVantage {
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}
	return &AlphaVantage{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: util.NewRateLimiter(perMinute),
		now:     time.Now,
	}
}

// Name implements Provider.
func (a *AlphaVantage) Name() string { return "alphavantage" }

type avGlobalQuote struct {
	Quote map[string]string `json:"Global Quote"`
	avNotice
}

type avSearch struct {
	BestMatches []map[string]string `json:"bestMatches"`
	avNotice
}

// avNotice carries the fields Alpha Vantage returns instead of data when a
// request is throttled or malformed.
type avNotice struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (n avNotice) err() error {
	for _, msg := range []string{n.ErrorMessage, n.Note, n.Information} {
		if msg != "" {
			return fmt.Errorf("%s: %w", msg, ErrNoData)
		}
	}
	return nil
}

// Quote fetches GLOBAL_QUOTE for symbol.
func (a *AlphaVantage) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	sym, err := normalize(symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	var resp avGlobalQuote
	if err := a.get(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {sym}}, &resp); err != nil {
		return domain.Quote{}, err
	}
	if err := resp.err(); err != nil {
		return domain.Quote{}, err
	}
	if len(resp.Quote) == 0 || resp.Quote["05. price"] == "" {
		return domain.Quote{}, fmt.Errorf("%s: %w", sym, ErrNoData)
	}

	q := domain.Quote{
		Symbol: resp.Quote["01. symbol"],
		Source: a.Name(),
		AsOf:   a.now(),
	}
	if q.Symbol == "" {
		q.Symbol = sym
	}
	if q.Price, err = parseFloat(resp.Quote["05. price"]); err != nil {
		return domain.Quote{}, fmt.Errorf("%s price: %w", sym, err)
	}
	q.Change, _ = parseFloat(resp.Quote["09. change"])
	q.ChangePercent, _ = parseFloat(strings.TrimSuffix(resp.Quote["10. change percent"], "%"))
	q.Volume, _ = strconv.ParseInt(resp.Quote["06. volume"], 10, 64)
	return q, nil
}

// Search runs SYMBOL_SEARCH for keywords.
func (a *AlphaVantage) Search(ctx context.Context, keywords string) ([]domain.SymbolMatch, error) {
	keywords = strings.TrimSpace(keywords)
	if keywords == "" {
		return []domain.SymbolMatch{}, nil
	}

	var resp avSearch
	if err := a.get(ctx, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {keywords}}, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	out := make([]domain.SymbolMatch, 0, len(resp.BestMatches))
	for _, m := range resp.BestMatches {
		out = append(out, domain.SymbolMatch{
			Symbol:   m["1. symbol"],
			Name:     m["2. name"],
			Type:     m["3. type"],
			Region:   m["4. region"],
			Currency: m["8. currency"],
		})
	}
	return out, nil
}

func (a *AlphaVantage) get(ctx context.Context, q url.Values, out any) error {
	key := ""
	if a.apiKey != nil {
		key = a.apiKey()
	}
	if key == "" {
		return ErrNoCredential
	}
	q.Set("apikey", key)
	endpoint := a.baseURL + "/query?" + q.Encode()

	return util.Retry(ctx, 2, 500*time.Millisecond, func() error {
		if !a.limiter.Allow() {
			return util.Permanent(fmt.Errorf("alphavantage %s: %w", q.Get("function"), ErrRateLimited))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return util.Permanent(err)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("alphavantage %s: %w", q.Get("function"), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("alphavantage %s: HTTP %d", q.Get("function"), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return util.Permanent(fmt.Errorf("alphavantage %s: HTTP %d: %w", q.Get("function"), resp.StatusCode, ErrNoData))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return util.Permanent(fmt.Errorf("decoding alphavantage %s: %w", q.Get("function"), err))
		}
		return nil
	})
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
