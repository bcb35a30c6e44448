package provider

import (
	"context"
	"log/slog"

	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/transfer"
)

// Export writes the record as a JSON file into a directory.
type Export struct {
	dir    string
	logger *slog.Logger
}

// NewExport creates the export provider writing into dir.
func NewExport(dir string, logger *slog.Logger) *Export {
	if logger == nil {
		logger = slog.Default()
	}
	return &Export{dir: dir, logger: logger}
}

func (e *Export) ID() string    { return IDExport }
func (e *Export) Label() string { return "Export JSON" }

// Save implements Provider.
func (e *Export) Save(_ context.Context, sheet *models.CharacterSheet) Result {
	path, err := transfer.ExportFile(e.dir, sheet)
	if err != nil {
		e.logger.Warn("provider: export failed", slog.String("error", err.Error()))
		return failed(err.Error())
	}
	res := ok("Downloaded JSON")
	res.Path = path
	return res
}
