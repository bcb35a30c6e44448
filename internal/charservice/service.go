// Package charservice implements the character-storage operations behind the
// HTTP API and the MCP tools.
package charservice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/charforge/internal/apperr"
	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/store"
)

// Event kinds passed to the Publisher.
const (
	EventSaved   = "saved"
	EventDeleted = "deleted"
	EventPurged  = "purged"
)

// Publisher receives change notifications.
type Publisher interface {
	PublishCharacterEvent(kind, id string)
}

// Precondition guards a save. The zero value accepts any state.
type Precondition struct {
	// IfMatch is the UpdatedAt the writer last saw. Zero means unset.
	IfMatch time.Time
	// IfNoneMatch requires that no record exists yet.
	IfNoneMatch bool
}

// Holds reports whether current satisfies p. A nil current is a record that
// does not exist; an IfMatch against it passes so deleted records can be
// recreated.
func (p Precondition) Holds(current *models.CharacterSheet) bool {
	if current == nil {
		return true
	}
	if p.IfNoneMatch {
		return false
	}
	if !p.IfMatch.IsZero() {
		return current.UpdatedAt.Equal(p.IfMatch)
	}
	return true
}

// Service coordinates the store and event publishing.
type Service struct {
	db     store.CharacterStore
	pub    Publisher
	logger *slog.Logger

	// mu serialises read-check-write cycles of Save.
	mu sync.Mutex
}

// NewService creates a new character service. pub may be nil.
func NewService(db store.CharacterStore, pub Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, pub: pub, logger: logger}
}

func (s *Service) publish(kind, id string) {
	if s.pub != nil {
		s.pub.PublishCharacterEvent(kind, id)
	}
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*models.CharacterSheet, error) {
	return s.db.Get(ctx, id)
}

// List returns every summary, most recent first.
func (s *Service) List(ctx context.Context) ([]models.Summary, error) {
	return s.db.List(ctx)
}

// Save validates sheet and stores it when pre holds or force is set. A failed
// precondition yields *apperr.ConflictError carrying the stored record.
func (s *Service) Save(ctx context.Context, sheet *models.CharacterSheet, pre Precondition, force bool) (*models.CharacterSheet, error) {
	sheet = sheet.Clone()
	sheet.Normalize()
	if sheet.UpdatedAt.IsZero() {
		sheet.UpdatedAt = models.Now()
	}
	if err := sheet.Validate(); err != nil {
		return nil, &apperr.ValidationError{Problems: models.Problems(err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.db.Get(ctx, sheet.ID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if !force && !pre.Holds(current) {
		s.logger.Info("character save conflict", slog.String("id", sheet.ID))
		return nil, &apperr.ConflictError{Current: current}
	}
	if current != nil {
		sheet.CreatedAt = current.CreatedAt
	}

	if err := s.db.Upsert(ctx, sheet); err != nil {
		return nil, err
	}
	s.publish(EventSaved, sheet.ID)
	return sheet, nil
}

// Delete removes one record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(EventDeleted, id)
	return nil
}

// AdminList returns every summary for the admin surface.
func (s *Service) AdminList(ctx context.Context) ([]models.Summary, error) {
	return s.db.List(ctx)
}

// Purge deletes every record and returns the number removed.
func (s *Service) Purge(ctx context.Context) (int, error) {
	n, err := s.db.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("characters purged", slog.Int("deleted", n))
	s.publish(EventPurged, "")
	return n, nil
}
