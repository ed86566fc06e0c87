package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s := NewStore(path, discardLogger())

	if err := s.Set(WebhookKey("stock-analysis"), " https://n8n.example.com/webhook/sa "); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if err := s.Set(KeyStockAPIKey, "demo"); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	reopened := NewStore(path, discardLogger())
	if got := reopened.WebhookURL("stock-analysis"); got != "https://n8n.example.com/webhook/sa" {
		t.Errorf("WebhookURL() = %q, want trimmed URL", got)
	}
	if got := reopened.Credential(); got != "demo" {
		t.Errorf("Credential() = %q, want %q", got, "demo")
	}
	if n := len(reopened.Snapshot()); n != 2 {
		t.Errorf("len(Snapshot()) = %d, want 2", n)
	}
}

func TestStoreGetDelete(t *testing.T) {
	s := NewStore("", discardLogger())

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
	if err := s.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) err = %v, want ErrNotFound", err)
	}
	if err := s.Set("", "x"); err == nil {
		t.Error("Set with empty key succeeded")
	}

	_ = s.Set(KeyN8nBaseURL, "https://n8n.example.com")
	if v, err := s.Get(KeyN8nBaseURL); err != nil || v != "https://n8n.example.com" {
		t.Errorf("Get() = %q, %v", v, err)
	}

	// An empty value clears the key.
	if err := s.Set(KeyN8nBaseURL, "  "); err != nil {
		t.Fatalf("Set(empty) = %v", err)
	}
	if _, err := s.Get(KeyN8nBaseURL); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after clearing err = %v, want ErrNotFound", err)
	}
}

func TestStoreFallback(t *testing.T) {
	s := NewStore("", discardLogger())
	s.SetFallback(KeyStockAPIKey, "from-config")

	if _, ok := s.Snapshot()[KeyStockAPIKey]; ok {
		t.Error("fallback leaked into Snapshot()")
	}
	if got := s.Credential(); got != "from-config" {
		t.Errorf("Credential() = %q, want fallback", got)
	}
	_ = s.Set(KeyStockAPIKey, "from-user")
	if got := s.Credential(); got != "from-user" {
		t.Errorf("Credential() = %q, want stored value", got)
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore("", discardLogger())
	id, ch := s.Subscribe(4)

	_ = s.Set("k", "v")
	_ = s.Delete("k")

	if e := <-ch; e.Type != "set" || e.Key != "k" || e.Value != "v" {
		t.Errorf("first event = %+v, want set k=v", e)
	}
	if e := <-ch; e.Type != "delete" || e.Key != "k" {
		t.Errorf("second event = %+v, want delete k", e)
	}

	s.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestStoreDropsOnSlowSubscriber(t *testing.T) {
	s := NewStore("", discardLogger())
	_, ch := s.Subscribe(1)

	_ = s.Set("a", "1")
	_ = s.Set("b", "2")

	if e := <-ch; e.Key != "a" {
		t.Errorf("event = %+v, want key a", e)
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected buffered event %+v", e)
	default:
	}
}

func TestWatchReloadsExternalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewStore(path, discardLogger())
	if err := s.Set("own", "write"); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	_, ch := s.Subscribe(16)
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case e := <-ch:
			if e.Type != "reload" {
				continue
			}
			if got := e.Data["webhook.risk-monitor"]; got != "https://n8n.example.com/webhook/risk" {
				t.Errorf("reload data = %v", e.Data)
			}
			if got := s.WebhookURL("risk-monitor"); got != "https://n8n.example.com/webhook/risk" {
				t.Errorf("WebhookURL() after reload = %q", got)
			}
			if _, err := s.Get("own"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(own) err = %v, want ErrNotFound after external rewrite", err)
			}
			return
		case <-tick.C:
			// The watcher registers asynchronously; keep rewriting until it
			// notices.
			data := []byte(`{"webhook.risk-monitor":"https://n8n.example.com/webhook/risk"}`)
			tmp := filepath.Join(filepath.Dir(path), "edit.tmp")
			if err := os.WriteFile(tmp, data, 0o600); err != nil {
				t.Fatalf("WriteFile() = %v", err)
			}
			if err := os.Rename(tmp, path); err != nil {
				t.Fatalf("Rename() = %v", err)
			}
		case <-deadline:
			t.Fatal("no reload event after external write")
		}
	}
}

func TestStoreEventsFollowStoredOrder(t *testing.T) {
	s := NewStore("", discardLogger())
	_, ch := s.Subscribe(512)

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Set("n8n_base_url", fmt.Sprintf("https://n8n-%d.example.com", i))
		}()
	}
	wg.Wait()

	var last Event
	for n := 0; n < 200; n++ {
		last = <-ch
	}
	if got, _ := s.Get("n8n_base_url"); last.Value != got {
		t.Errorf("last event value = %q, stored value = %q", last.Value, got)
	}
}

func TestReloadIgnoresMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewStore(path, discardLogger())
	if err := s.Set(KeyStockAPIKey, "av-key-1234"); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	_, ch := s.Subscribe(4)

	// First half of an editor's atomic save: the old file is gone.
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() = %v", err)
	}
	s.reload()
	if got := s.Credential(); got != "av-key-1234" {
		t.Errorf("Credential() with file missing = %q, want av-key-1234", got)
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected event %+v while file missing", e)
	default:
	}

	data := []byte(`{"stockApiKey":"av-key-5678"}`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	s.reload()
	if got := s.Credential(); got != "av-key-5678" {
		t.Errorf("Credential() after save = %q, want av-key-5678", got)
	}
	if e := <-ch; e.Type != "reload" || e.Data[KeyStockAPIKey] != "av-key-5678" {
		t.Errorf("event = %+v, want reload with new key", e)
	}
}
