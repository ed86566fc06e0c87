// Package settings provides a small string key/value store for user
// settings (credentials, n8n endpoints, webhook URLs) with JSON persistence
// and pub/sub for SSE push.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known keys.
const (
	KeyStockAPIKey   = "stockApiKey"
	KeyN8nBaseURL    = "n8n_base_url"
	webhookKeyPrefix = "webhook."
)

// ErrNotFound is returned for keys that are not set.
var ErrNotFound = errors.New("setting not found")

// WebhookKey returns the key holding the webhook URL of a workflow.
func WebhookKey(workflowID string) string { return webhookKeyPrefix + workflowID }

// Event is the wire format for SSE messages.
type Event struct {
	Type  string            `json:"type"`            // "snapshot", "set", "delete", "reload"
	Key   string            `json:"key,omitempty"`   // set/delete only
	Value string            `json:"value,omitempty"` // set only
	Data  map[string]string `json:"data,omitempty"`  // snapshot/reload only
}

// Store holds settings in memory with JSON persistence and pub/sub.
//
// Fallbacks are consulted by the read helpers when a key is unset. They are
// never persisted or listed by Snapshot.
type Store struct {
	mu        sync.RWMutex
	values    map[string]string
	fallbacks map[string]string
	filePath  string
	lastFlush []byte
	log       *slog.Logger

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewStore creates a Store, loading persisted state from filePath. An empty
// filePath keeps everything in memory.
func NewStore(filePath string, log *slog.Logger) *Store {
	s := &Store{
		values:    make(map[string]string),
		fallbacks: make(map[string]string),
		filePath:  filePath,
		log:       log.With("component", "settings"),
		subs:      make(map[int]chan Event),
	}
	if data, err := s.read(); err == nil {
		s.values = data
		s.log.Info("loaded settings", "keys", len(data))
	} else if !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("loading settings file", "path", filePath, "error", err)
	}
	return s
}

// SetFallback registers a value returned for key while it is unset.
func (s *Store) SetFallback(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.fallbacks, key)
		return
	}
	s.fallbacks[key] = value
}

// Snapshot returns a copy of all stored settings.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Get returns a stored value, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, nil
}

// Value returns the stored value for key, its fallback, or "".
func (s *Store) Value(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok && v != "" {
		return v
	}
	return s.fallbacks[key]
}

// Set stores a value, persists to disk, and broadcasts to subscribers.
// Surrounding whitespace is trimmed; setting an empty value deletes the key.
func (s *Store) Set(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key must not be empty")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		err := s.Delete(key)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	err := s.flush()
	s.broadcast(Event{Type: "set", Key: key, Value: value})
	return err
}

// Delete removes a value, persists to disk, and broadcasts to subscribers.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	delete(s.values, key)
	err := s.flush()
	s.broadcast(Event{Type: "delete", Key: key})
	return err
}

// WebhookURL returns the configured webhook URL for a workflow.
func (s *Store) WebhookURL(workflowID string) string {
	return s.Value(WebhookKey(workflowID))
}

// Credential returns the market-data API key forwarded with workflow
// payloads.
func (s *Store) Credential() string {
	return s.Value(KeyStockAPIKey)
}

// N8nBaseURL returns the configured n8n instance URL.
func (s *Store) N8nBaseURL() string {
	return s.Value(KeyN8nBaseURL)
}

// Subscribe returns a channel that receives events. bufSize controls the
// channel buffer; slow consumers will have events dropped.
func (s *Store) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subsMu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

// broadcast sends an event to all subscribers non-blocking (drop on full).
// Callers hold mu so subscribers see changes in the order they were stored.
func (s *Store) broadcast(e Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *Store) read() (map[string]string, error) {
	if s.filePath == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, err
	}
	loaded := map[string]string{}
	if len(bytes.TrimSpace(data)) == 0 {
		return loaded, nil
	}
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.filePath, err)
	}
	return loaded, nil
}

// flush writes the in-memory state to disk via a temp file and rename.
// Must be called with mu held.
func (s *Store) flush() error {
	if s.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replacing settings file: %w", err)
	}
	s.lastFlush = data
	return nil
}
