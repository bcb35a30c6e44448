// Package models defines the domain types for charforge.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the only character sheet version understood by this module.
const SchemaVersion = 1

// AttributeKey names one of the six core attributes.
type AttributeKey string

// Core attributes.
const (
	AttrPhys AttributeKey = "phys"
	AttrDex  AttributeKey = "dex"
	AttrInt  AttributeKey = "int"
	AttrWill AttributeKey = "will"
	AttrCha  AttributeKey = "cha"
	AttrEmp  AttributeKey = "emp"
)

// AttributeKeys lists the attributes in display order.
var AttributeKeys = []AttributeKey{AttrPhys, AttrDex, AttrInt, AttrWill, AttrCha, AttrEmp}

var attributeLabels = map[AttributeKey]string{
	AttrPhys: "Phys",
	AttrDex:  "Dex",
	AttrInt:  "Int",
	AttrWill: "Will",
	AttrCha:  "Cha",
	AttrEmp:  "Emp",
}

// Label returns the display label of the attribute.
func (k AttributeKey) Label() string {
	if l, ok := attributeLabels[k]; ok {
		return l
	}
	return string(k)
}

// Valid reports whether k is one of the core attributes.
func (k AttributeKey) Valid() bool {
	_, ok := attributeLabels[k]
	return ok
}

// GearType classifies a gear entry.
type GearType string

// Gear types.
const (
	GearWeapon     GearType = "weapon"
	GearArmour     GearType = "armour"
	GearItem       GearType = "item"
	GearCyberware  GearType = "cyberware"
	GearNarcotic   GearType = "narcotic"
	GearHackerGear GearType = "hacker_gear"
)

// GearTypes lists every known gear type.
var GearTypes = []GearType{GearWeapon, GearArmour, GearItem, GearCyberware, GearNarcotic, GearHackerGear}

// SkillEntry is one skill on the sheet.
type SkillEntry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Rank  int    `json:"rank"`
	Focus string `json:"focus,omitempty"`
}

// GearEntry is one piece of inventory.
type GearEntry struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Type  GearType `json:"type"`
	Tags  []string `json:"tags,omitempty"`
	Notes string   `json:"notes,omitempty"`
}

// CharacterSheet is the record edited by the wizard and copied to every
// storage target.
type CharacterSheet struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Concept    string               `json:"concept"`
	Background string               `json:"background"`
	Level      int                  `json:"level"`
	Attributes map[AttributeKey]int `json:"attributes"`
	Skills     []SkillEntry         `json:"skills"`
	Gear       []GearEntry          `json:"gear"`
	Notes      string               `json:"notes"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
	Version    int                  `json:"version"`
}

// Summary is the lightweight listing form of a sheet.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Now is the clock used for timestamps. Tests may replace it.
var Now = func() time.Time { return time.Now().UTC() }

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// NewBlank returns a sheet with default values and a fresh identifier.
func NewBlank() *CharacterSheet {
	now := Now()
	attrs := make(map[AttributeKey]int, len(AttributeKeys))
	for _, k := range AttributeKeys {
		attrs[k] = 0
	}
	return &CharacterSheet{
		ID:         NewID(),
		Level:      1,
		Attributes: attrs,
		Skills:     []SkillEntry{},
		Gear:       []GearEntry{},
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    SchemaVersion,
	}
}

// Clone returns a deep copy of s.
func (s *CharacterSheet) Clone() *CharacterSheet {
	if s == nil {
		return nil
	}
	out := *s
	if s.Attributes != nil {
		out.Attributes = make(map[AttributeKey]int, len(s.Attributes))
		for k, v := range s.Attributes {
			out.Attributes[k] = v
		}
	}
	if s.Skills != nil {
		out.Skills = append([]SkillEntry{}, s.Skills...)
	}
	if s.Gear != nil {
		out.Gear = make([]GearEntry, len(s.Gear))
		for i, g := range s.Gear {
			g.Tags = append([]string(nil), g.Tags...)
			out.Gear[i] = g
		}
	}
	return &out
}

// Touch returns a copy of s with a refreshed UpdatedAt. The new timestamp is
// always strictly after the previous one, even when the clock has not moved.
func (s *CharacterSheet) Touch() *CharacterSheet {
	out := s.Clone()
	now := Now()
	if !now.After(s.UpdatedAt) {
		now = s.UpdatedAt.Add(time.Millisecond)
	}
	out.UpdatedAt = now
	return out
}

// Normalize fills in zero-valued collections and the schema version so that
// imported or partial records behave like blank ones. The identifier is
// generated when missing.
func (s *CharacterSheet) Normalize() {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.Attributes == nil {
		s.Attributes = make(map[AttributeKey]int, len(AttributeKeys))
	}
	for _, k := range AttributeKeys {
		if _, ok := s.Attributes[k]; !ok {
			s.Attributes[k] = 0
		}
	}
	if s.Skills == nil {
		s.Skills = []SkillEntry{}
	}
	if s.Gear == nil {
		s.Gear = []GearEntry{}
	}
	if s.Version == 0 {
		s.Version = SchemaVersion
	}
	if s.Level == 0 {
		s.Level = 1
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = Now()
	}
}

// Summary returns the listing form of s.
func (s *CharacterSheet) Summary() Summary {
	return Summary{ID: s.ID, Name: s.Name, UpdatedAt: s.UpdatedAt}
}
