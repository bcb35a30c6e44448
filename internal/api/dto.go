package api

import "github.com/starford/charforge/internal/models"

// CharacterSummary is one entry of a list response.
type CharacterSummary = models.Summary

// Character is the full record exchanged by GET and PUT.
type Character = models.CharacterSheet

// ConflictResponse is returned with 409 when a save precondition fails.
type ConflictResponse struct {
	Error   string     `json:"error" example:"conflict" validate:"required"`
	Current *Character `json:"current" validate:"required"`
}

// ValidationResponse is returned with 422 when the record is rejected.
type ValidationResponse struct {
	Error    string   `json:"error" example:"invalid character" validate:"required"`
	Problems []string `json:"problems" example:"name: cannot be blank" validate:"required"`
}

// PurgeResponse is returned by the admin purge.
type PurgeResponse struct {
	Deleted int `json:"deleted" example:"3" validate:"required"`
}
