// Package draft persists the in-progress character sheet and the client
// settings into local key/value slots. Every operation is fail-soft: storage
// errors are logged and swallowed, never returned.
package draft

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/starford/charforge/internal/kv"
	"github.com/starford/charforge/internal/models"
)

// Slot keys.
const (
	KeyDraft          = "ws_character_builder_draft_v1"
	KeyCloudEnabled   = "ws_character_cloud_enabled"
	KeyAPIKey         = "ws_character_api_key"
	KeyLastSync       = "ws_character_last_sync"
	KeyStep           = "ws_character_builder_step"
	KeyStorageTarget  = "ws_character_storage_target"
	KeyRemoteBaseline = "ws_character_remote_baseline"
)

// Store reads and writes the single draft slot.
type Store struct {
	kv     kv.Store
	logger *slog.Logger
}

// NewStore creates a draft store over the given slots.
func NewStore(store kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: store, logger: logger}
}

// Load returns the last saved sheet. A missing or corrupt slot reports false.
func (s *Store) Load() (*models.CharacterSheet, bool) {
	raw, err := s.kv.Get(KeyDraft)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Debug("draft: load failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var sheet models.CharacterSheet
	if err := json.Unmarshal([]byte(raw), &sheet); err != nil {
		s.logger.Debug("draft: corrupt payload ignored", slog.String("error", err.Error()))
		return nil, false
	}
	return &sheet, true
}

// Save overwrites the draft slot.
func (s *Store) Save(sheet *models.CharacterSheet) {
	if sheet == nil {
		return
	}
	data, err := json.Marshal(sheet)
	if err != nil {
		s.logger.Debug("draft: encode failed", slog.String("error", err.Error()))
		return
	}
	if err := s.kv.Set(KeyDraft, string(data)); err != nil {
		s.logger.Debug("draft: save failed", slog.String("error", err.Error()))
	}
}

// Clear removes the draft slot.
func (s *Store) Clear() {
	if err := s.kv.Delete(KeyDraft); err != nil {
		s.logger.Debug("draft: clear failed", slog.String("error", err.Error()))
	}
}
