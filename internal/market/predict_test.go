package market

import (
	"errors"
	"testing"
)

func TestPredictBounds(t *testing.T) {
	p := NewPredictor(5)
	for _, sym := range []string{"AAPL", "TSLA", "ZZZZ"} {
		for range 50 {
			f, err := p.Predict(sym)
			if err != nil {
				t.Fatalf("Predict(%s) error: %v", sym, err)
			}
			for name, pr := range map[string]Prediction{"day": f.NextDay, "week": f.NextWeek, "month": f.NextMonth} {
				if pr.Confidence < 30 || pr.Confidence > 95 {
					t.Errorf("%s %s confidence = %d, want 30-95", sym, name, pr.Confidence)
				}
				if pr.Direction == "up" && pr.ChangePercent < 0 || pr.Direction == "down" && pr.ChangePercent > 0 {
					t.Errorf("%s %s = %+v, direction and change disagree", sym, name, pr)
				}
			}
			if len(f.Models) != 4 {
				t.Fatalf("got %d models, want 4", len(f.Models))
			}
			for _, m := range f.Models {
				if m.Accuracy < 60 || m.Accuracy > 98 {
					t.Errorf("%s %s accuracy = %v, want 60-98", sym, m.Name, m.Accuracy)
				}
			}
		}
	}
}

func TestPredictProfiles(t *testing.T) {
	p := NewPredictor(9)
	for range 50 {
		// MSFT: stability 0.95 puts confidence within 10 of 78.
		f, _ := p.Predict("msft")
		if f.Symbol != "MSFT" {
			t.Fatalf("Symbol = %q, want MSFT", f.Symbol)
		}
		if c := f.NextDay.Confidence; c < 68 || c > 88 {
			t.Errorf("MSFT confidence = %d, want 68-88", c)
		}
		// Next-day change for MSFT is bounded by 5 * 0.25 / 2.
		if c := f.NextDay.ChangePercent; c < -0.7 || c > 0.7 {
			t.Errorf("MSFT next-day change = %v, want within 0.7", c)
		}

		tsla, _ := p.Predict("TSLA")
		lstm := tsla.Models[0]
		if lstm.Name != "LSTM Neural Network" || lstm.Accuracy < 78 || lstm.Accuracy > 82 {
			t.Errorf("TSLA %s accuracy = %v, want 78-82", lstm.Name, lstm.Accuracy)
		}

		other, _ := p.Predict("KO")
		rf := other.Models[1]
		if rf.Accuracy < 80 || rf.Accuracy > 84 {
			t.Errorf("KO Random Forest accuracy = %v, want 80-84", rf.Accuracy)
		}
	}
}

func TestPredictSeeded(t *testing.T) {
	a, _ := NewPredictor(42).Predict("NVDA")
	b, _ := NewPredictor(42).Predict("NVDA")
	if a.NextDay != b.NextDay || a.NextWeek != b.NextWeek || a.NextMonth != b.NextMonth {
		t.Errorf("same seed gave %+v and %+v", a, b)
	}
	if _, err := NewPredictor(1).Predict("  "); err == nil {
		t.Error("Predict(blank) error = nil")
	}
}

func TestHistory(t *testing.T) {
	p := NewPredictor(3)

	day, err := p.History("aapl", 175.84, "1d")
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(day) != 24 {
		t.Fatalf("1D points = %d, want 24", len(day))
	}
	if day[0].Label != "9:00" || day[1].Label != "9:30" || day[23].Label != "20:30" {
		t.Errorf("1D labels = %q, %q ... %q", day[0].Label, day[1].Label, day[23].Label)
	}
	if day[23].Price != 175.84 {
		t.Errorf("last price = %v, want 175.84", day[23].Price)
	}
	for i, pt := range day {
		if pt.Price <= 0 {
			t.Errorf("point %d price = %v", i, pt.Price)
		}
		if pt.Volume < 1_000_000 || pt.Volume >= 11_000_000 {
			t.Errorf("point %d volume = %d", i, pt.Volume)
		}
	}

	week, _ := p.History("AAPL", 0, "1W")
	if len(week) != 7 || week[0].Label != "Mon" || week[6].Label != "Sun" || week[6].Price != 100 {
		t.Errorf("1W = %+v", week)
	}

	year, _ := p.History("AAPL", 50, "1Y")
	if len(year) != 365 || year[0].Label != "1M" || year[364].Label != "13M" {
		t.Errorf("1Y points = %d, labels %q..%q", len(year), year[0].Label, year[364].Label)
	}

	if _, err := p.History("AAPL", 10, "5Y"); !errors.Is(err, ErrUnknownRange) {
		t.Errorf("History(5Y) err = %v, want ErrUnknownRange", err)
	}
}

func TestChartVolatility(t *testing.T) {
	cases := map[string]float64{
		"AAPL":         0.025,
		"RELIANCE.BSE": 0.035,
		"BTC-CRYPTO":   0.08,
	}
	for sym, want := range cases {
		if got := chartVolatility(sym); got != want {
			t.Errorf("chartVolatility(%s) = %v, want %v", sym, got, want)
		}
	}
}
