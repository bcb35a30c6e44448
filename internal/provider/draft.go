package provider

import (
	"context"

	"github.com/starford/charforge/internal/models"
)

// DraftWriter is the draft slot writer.
type DraftWriter interface {
	Save(sheet *models.CharacterSheet)
}

// Draft saves into the local draft slot. It never fails.
type Draft struct {
	store DraftWriter
}

// NewDraft creates the local draft provider.
func NewDraft(store DraftWriter) *Draft { return &Draft{store: store} }

func (d *Draft) ID() string    { return IDDraft }
func (d *Draft) Label() string { return "Local Draft" }

// Save implements Provider.
func (d *Draft) Save(_ context.Context, sheet *models.CharacterSheet) Result {
	d.store.Save(sheet)
	return ok("Draft saved")
}
