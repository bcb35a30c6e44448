// Package transfer converts character sheets to and from portable JSON files.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/starford/charforge/internal/models"
)

// DefaultBaseName is used when the character has no name.
const DefaultBaseName = "whisperspace-character"

// ErrUnreadable is returned for any file that does not parse as a character.
var ErrUnreadable = errors.New("could not read that file")

var (
	unsafeRunRe     = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	repeatedUnderRe = regexp.MustCompile(`_{2,}`)
)

// Write encodes sheet as indented JSON.
func Write(w io.Writer, sheet *models.CharacterSheet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sheet); err != nil {
		return fmt.Errorf("transfer: encode: %w", err)
	}
	return nil
}

// Read decodes a character file. The shape is trusted; only JSON syntax is
// checked.
func Read(r io.Reader) (*models.CharacterSheet, error) {
	var sheet models.CharacterSheet
	if err := json.NewDecoder(r).Decode(&sheet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &sheet, nil
}

// ReadFile decodes the character file at path.
func ReadFile(path string) (*models.CharacterSheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()
	return Read(f)
}

// Filename returns the export file name for sheet.
func Filename(sheet *models.CharacterSheet) string {
	name := sheet.Name
	if name == "" {
		name = DefaultBaseName
	}
	return Sanitize(name) + ".json"
}

// Sanitize folds accents to ASCII and replaces everything outside
// [A-Za-z0-9_-] with single underscores.
func Sanitize(value string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err != nil {
		folded = value
	}
	out := unsafeRunRe.ReplaceAllString(folded, "_")
	return repeatedUnderRe.ReplaceAllString(out, "_")
}

// ExportFile writes sheet into dir and returns the written path.
func ExportFile(dir string, sheet *models.CharacterSheet) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("transfer: create export dir: %w", err)
	}
	path := filepath.Join(dir, Filename(sheet))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("transfer: create file: %w", err)
	}
	if err := Write(f, sheet); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("transfer: close file: %w", err)
	}
	return path, nil
}
