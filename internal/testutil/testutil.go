// Package testutil provides shared test helpers for databases, slot stores
// and sample records.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/starford/charforge/internal/kv"
	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "charforge-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestKV creates an in-memory slot store.
func TestKV(t *testing.T) *kv.FS {
	t.Helper()
	s, err := kv.New(memfs.New())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// Sheet returns a valid record with a fixed identifier and timestamps.
func Sheet(id, name string) *models.CharacterSheet {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := models.NewBlank()
	s.ID = id
	s.Name = name
	s.CreatedAt = at
	s.UpdatedAt = at
	s.Attributes[models.AttrPhys] = 2
	s.Skills = []models.SkillEntry{{Key: "athletics", Label: "Athletics", Rank: 2}}
	s.Gear = []models.GearEntry{{ID: "g-1", Name: "Shotgun", Type: models.GearWeapon}}
	return s
}
