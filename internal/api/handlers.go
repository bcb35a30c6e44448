package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/charforge/internal/apperr"
	"github.com/starford/charforge/internal/charservice"
	"github.com/starford/charforge/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *charservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *charservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListCharacters handles GET /characters.
//
//	@Summary		List stored characters, most recent first
//	@Tags			characters
//	@Produce		json
//	@Success		200	{array}	CharacterSummary
//	@Security		BearerAuth
//	@Router			/characters [get]
func (h *Handler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		slog.Error("list characters failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetCharacter handles GET /characters/{id}.
//
//	@Summary		Get one character
//	@Tags			characters
//	@Produce		json
//	@Param			id	path		string	true	"Character id"
//	@Success		200	{object}	Character
//	@Failure		404	{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/characters/{id} [get]
func (h *Handler) GetCharacter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sheet, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get character failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("ETag", models.ETag(sheet.UpdatedAt))
	writeJSON(w, http.StatusOK, sheet)
}

// PutCharacter handles PUT /characters/{id}.
//
//	@Summary		Create or replace a character with optimistic concurrency
//	@Tags			characters
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string		true	"Character id"
//	@Param			If-Match		header		string		false	"ETag of the version the writer last saw"
//	@Param			If-None-Match	header		string		false	"* to create only"
//	@Param			force			query		bool		false	"Skip the precondition"
//	@Param			body			body		Character	true	"Full record"
//	@Success		200				{object}	Character
//	@Failure		400				{object}	errorResponse
//	@Failure		409				{object}	ConflictResponse
//	@Failure		422				{object}	ValidationResponse
//	@Security		BearerAuth
//	@Router			/characters/{id} [put]
func (h *Handler) PutCharacter(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	id := chi.URLParam(r, "id")

	var sheet models.CharacterSheet
	if err := json.NewDecoder(r.Body).Decode(&sheet); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if sheet.ID == "" {
		sheet.ID = id
	}
	if sheet.ID != id {
		writeJSON(w, http.StatusBadRequest, errorBody("id does not match path"))
		return
	}

	var pre charservice.Precondition
	if tag := r.Header.Get("If-Match"); tag != "" {
		at, err := models.ParseETag(tag)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid If-Match"))
			return
		}
		pre.IfMatch = at
	}
	if strings.TrimSpace(r.Header.Get("If-None-Match")) == "*" {
		pre.IfNoneMatch = true
	}
	force := forced(r.URL.Query().Get("force"))

	saved, err := h.svc.Save(r.Context(), &sheet, pre, force)
	if err != nil {
		var conflict *apperr.ConflictError
		var invalid *apperr.ValidationError
		switch {
		case errors.As(err, &conflict):
			writeJSON(w, http.StatusConflict, ConflictResponse{Error: "conflict", Current: conflict.Current})
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Error: "invalid character", Problems: invalid.Problems})
		default:
			slog.Error("save character failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("ETag", models.ETag(saved.UpdatedAt))
	writeJSON(w, http.StatusOK, saved)
}

// DeleteCharacter handles DELETE /characters/{id}.
//
//	@Summary		Delete a character
//	@Tags			characters
//	@Param			id	path	string	true	"Character id"
//	@Success		204	"Character deleted"
//	@Failure		404	{object}	errorResponse
//	@Security		BearerAuth
//	@Router			/characters/{id} [delete]
func (h *Handler) DeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete character failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminList handles GET /admin/characters.
//
//	@Summary		List every stored character
//	@Tags			admin
//	@Produce		json
//	@Success		200	{array}	CharacterSummary
//	@Security		AdminAuth
//	@Router			/admin/characters [get]
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.AdminList(r.Context())
	if err != nil {
		slog.Error("admin list failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// AdminPurge handles DELETE /admin/characters?confirm=1.
//
//	@Summary		Delete every stored character
//	@Tags			admin
//	@Produce		json
//	@Param			confirm	query		string	true	"Must be 1"
//	@Success		200		{object}	PurgeResponse
//	@Failure		400		{object}	errorResponse
//	@Security		AdminAuth
//	@Router			/admin/characters [delete]
func (h *Handler) AdminPurge(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "1" {
		writeJSON(w, http.StatusBadRequest, errorBody("confirm=1 is required"))
		return
	}
	n, err := h.svc.Purge(r.Context())
	if err != nil {
		slog.Error("admin purge failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, PurgeResponse{Deleted: n})
}

func forced(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}
