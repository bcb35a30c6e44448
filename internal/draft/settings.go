package draft

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/starford/charforge/internal/kv"
)

// Settings exposes the remaining client slots as typed, fail-soft accessors.
type Settings struct {
	kv     kv.Store
	logger *slog.Logger

	mu sync.Mutex // serializes read-modify-write of the baseline map
}

// NewSettings creates settings over the given slots.
func NewSettings(store kv.Store, logger *slog.Logger) *Settings {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settings{kv: store, logger: logger}
}

func (s *Settings) get(key string) string {
	v, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Debug("settings: read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return ""
	}
	return v
}

func (s *Settings) set(key, value string) {
	if err := s.kv.Set(key, value); err != nil {
		s.logger.Debug("settings: write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// CloudEnabled reports whether automatic cloud sync is on.
func (s *Settings) CloudEnabled() bool {
	return s.get(KeyCloudEnabled) == "true"
}

// SetCloudEnabled persists the cloud sync flag.
func (s *Settings) SetCloudEnabled(enabled bool) {
	s.set(KeyCloudEnabled, strconv.FormatBool(enabled))
}

// APIKey returns the stored bearer credential, or "".
func (s *Settings) APIKey() string {
	return s.get(KeyAPIKey)
}

// SetAPIKey persists the bearer credential.
func (s *Settings) SetAPIKey(key string) {
	s.set(KeyAPIKey, key)
}

// LastSync returns the last successful sync time.
func (s *Settings) LastSync() (time.Time, bool) {
	raw := s.get(KeyLastSync)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetLastSync persists the last successful sync time.
func (s *Settings) SetLastSync(at time.Time) {
	s.set(KeyLastSync, at.UTC().Format(time.RFC3339Nano))
}

// Step returns the persisted wizard step id, or "".
func (s *Settings) Step() string {
	return s.get(KeyStep)
}

// SetStep persists the wizard step id.
func (s *Settings) SetStep(step string) {
	s.set(KeyStep, step)
}

// StorageTarget returns the selected provider id, or "".
func (s *Settings) StorageTarget() string {
	return s.get(KeyStorageTarget)
}

// SetStorageTarget persists the selected provider id.
func (s *Settings) SetStorageTarget(id string) {
	s.set(KeyStorageTarget, id)
}

func (s *Settings) baselines() map[string]time.Time {
	out := map[string]time.Time{}
	raw := s.get(KeyRemoteBaseline)
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.logger.Debug("settings: corrupt baselines ignored", slog.String("error", err.Error()))
		return map[string]time.Time{}
	}
	return out
}

// Baseline returns the last known server UpdatedAt for a character.
func (s *Settings) Baseline(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.baselines()[id]
	return t, ok
}

// SetBaseline records the server UpdatedAt for a character. A zero time
// forgets it.
func (s *Settings) SetBaseline(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.baselines()
	if at.IsZero() {
		delete(m, id)
	} else {
		m[id] = at.UTC()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	s.set(KeyRemoteBaseline, string(data))
}
