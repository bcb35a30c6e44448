package models

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate checks the sheet against the schema accepted by the remote
// character service.
func (s *CharacterSheet) Validate() error {
	attrRules := make([]*validation.KeyRules, 0, len(AttributeKeys))
	for _, k := range AttributeKeys {
		attrRules = append(attrRules, validation.Key(k, validation.Min(-5), validation.Max(10)).Optional())
	}
	return validation.ValidateStruct(s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&s.Level, validation.Required, validation.Min(1), validation.Max(20)),
		validation.Field(&s.Attributes, validation.Map(attrRules...)),
		validation.Field(&s.Skills),
		validation.Field(&s.Gear),
		validation.Field(&s.Version, validation.Required, validation.In(SchemaVersion)),
	)
}

// Validate checks a single skill entry.
func (e SkillEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Label, validation.Length(0, 80)),
		validation.Field(&e.Rank, validation.Min(0), validation.Max(10)),
	)
}

// Validate checks a single gear entry.
func (e GearEntry) Validate() error {
	types := make([]interface{}, len(GearTypes))
	for i, t := range GearTypes {
		types[i] = t
	}
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.Name, validation.Length(0, 120)),
		validation.Field(&e.Type, validation.Required, validation.In(types...)),
	)
}

// Problems flattens a validation error into sorted "field: message" lines.
// Non-validation errors yield a single line.
func Problems(err error) []string {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	var out []string
	flatten("", verrs, &out)
	sort.Strings(out)
	return out
}

func flatten(prefix string, verrs validation.Errors, out *[]string) {
	for field, err := range verrs {
		name := field
		if prefix != "" {
			name = prefix + "." + field
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			flatten(name, nested, out)
			continue
		}
		*out = append(*out, fmt.Sprintf("%s: %s", name, err.Error()))
	}
}
