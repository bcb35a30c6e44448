package provider

import (
	"context"
	"log/slog"

	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/remote"
)

// Failure texts of the cloud provider.
const (
	MsgInvalid    = "Character is invalid."
	MsgSaveFailed = "Save failed"
)

// RemoteStore is the subset of the remote client used by Cloud.
type RemoteStore interface {
	List(ctx context.Context) ([]models.Summary, error)
	Load(ctx context.Context, id string) (*models.CharacterSheet, error)
	Save(ctx context.Context, sheet *models.CharacterSheet, opts remote.SaveOptions) (remote.SaveResult, error)
	Remove(ctx context.Context, id string) error
	Adopt(sheet *models.CharacterSheet)
}

// Cloud saves to the remote character service after validating locally.
type Cloud struct {
	remote RemoteStore
	logger *slog.Logger
}

var (
	_ Lister  = (*Cloud)(nil)
	_ Loader  = (*Cloud)(nil)
	_ Remover = (*Cloud)(nil)
	_ Forcer  = (*Cloud)(nil)
	_ Adopter = (*Cloud)(nil)
)

// NewCloud creates the remote provider.
func NewCloud(rs RemoteStore, logger *slog.Logger) *Cloud {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cloud{remote: rs, logger: logger}
}

func (c *Cloud) ID() string    { return IDCloud }
func (c *Cloud) Label() string { return "Cloud" }

// Save implements Provider. Validation failures never reach the network.
func (c *Cloud) Save(ctx context.Context, sheet *models.CharacterSheet) Result {
	return c.save(ctx, sheet, remote.SaveOptions{})
}

// ForceSave implements Forcer.
func (c *Cloud) ForceSave(ctx context.Context, sheet *models.CharacterSheet) Result {
	return c.save(ctx, sheet, remote.SaveOptions{Force: true})
}

func (c *Cloud) save(ctx context.Context, sheet *models.CharacterSheet, opts remote.SaveOptions) Result {
	if err := sheet.Validate(); err != nil {
		return Result{Status: StatusFailed, Message: MsgInvalid, Problems: models.Problems(err)}
	}

	res, err := c.remote.Save(ctx, sheet, opts)
	if err != nil {
		c.logger.Warn("provider: cloud save failed",
			slog.String("id", sheet.ID),
			slog.String("error", err.Error()),
		)
		msg := err.Error()
		if msg == "" {
			msg = MsgSaveFailed
		}
		return failed(msg)
	}
	if res.IsConflict() {
		return Result{Status: StatusConflict, Message: "conflict", Conflict: res.Conflict}
	}
	return ok("")
}

// List implements Lister.
func (c *Cloud) List(ctx context.Context) ([]models.Summary, error) {
	return c.remote.List(ctx)
}

// Load implements Loader.
func (c *Cloud) Load(ctx context.Context, id string) (*models.CharacterSheet, error) {
	return c.remote.Load(ctx, id)
}

// Remove implements Remover.
func (c *Cloud) Remove(ctx context.Context, id string) error {
	return c.remote.Remove(ctx, id)
}

// Adopt implements Adopter.
func (c *Cloud) Adopt(sheet *models.CharacterSheet) {
	c.remote.Adopt(sheet)
}
