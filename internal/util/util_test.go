package util

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	errBad := errors.New("bad symbol")
	attempts := 0

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(errBad)
	})

	if !errors.Is(err, errBad) {
		t.Errorf("Retry err = %v, want %v", err, errBad)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiterBurst(60, 3)
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow #%d = false, want true", i)
		}
	}
	if rl.Allow() {
		t.Error("fourth Allow = true, want false")
	}
	rl.mu.Lock()
	rl.lastTime = rl.lastTime.Add(-time.Second)
	rl.mu.Unlock()
	if !rl.Allow() {
		t.Error("Allow after one second = false, want true")
	}
}

func TestRateLimiterUnlimited(t *testing.T) {
	rl := NewRateLimiter(0)
	if rl != nil {
		t.Fatal("NewRateLimiter(0) != nil")
	}
	for i := 0; i < 100; i++ {
		if !rl.Allow() {
			t.Fatalf("nil limiter Allow #%d = false", i)
		}
	}
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "warn", "json")
	log.Info("dropped")
	log.Warn("kept", "workflow", "risk-monitor")

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("got %d lines, want 1: %q", strings.Count(line, "\n")+1, line)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["workflow"] != "risk-monitor" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	NewLoggerTo(&buf, "debug", "text").Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output = %q, want k=v", buf.String())
	}
}

func TestUSSession(t *testing.T) {
	s := NewUSSession()
	ny := s.loc

	cases := []struct {
		at   time.Time
		open bool
	}{
		{time.Date(2026, 3, 2, 10, 0, 0, 0, ny), true},  // Monday morning
		{time.Date(2026, 3, 2, 9, 29, 0, 0, ny), false}, // pre-market
		{time.Date(2026, 3, 2, 16, 0, 0, 0, ny), false}, // close is exclusive
		{time.Date(2026, 3, 7, 12, 0, 0, 0, ny), false}, // Saturday
	}
	for _, c := range cases {
		if got := s.IsOpen(c.at); got != c.open {
			t.Errorf("IsOpen(%v) = %v, want %v", c.at, got, c.open)
		}
	}

	fri := time.Date(2026, 3, 6, 17, 0, 0, 0, ny)
	want := time.Date(2026, 3, 9, 9, 30, 0, 0, ny)
	if got := s.NextOpen(fri); !got.Equal(want) {
		t.Errorf("NextOpen(Friday evening) = %v, want %v", got, want)
	}
}
