// Package remote is the HTTP client for the character-storage service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/charforge/internal/models"
)

// Precondition headers. Entity tags are models.ETag values.
const (
	HeaderIfMatch     = "If-Match"
	HeaderIfNoneMatch = "If-None-Match"
)

// ErrRequestFailed wraps every transport error and every non-2xx response
// other than a save conflict.
var ErrRequestFailed = errors.New("remote: request failed")

// CredentialSource provides the optional bearer credential. It is consulted
// on every request so key changes take effect immediately.
type CredentialSource interface {
	APIKey() string
}

// StaticCredential is a fixed credential.
type StaticCredential string

// APIKey implements CredentialSource.
func (c StaticCredential) APIKey() string { return string(c) }

// BaselineStore remembers the last server UpdatedAt seen per character.
type BaselineStore interface {
	Baseline(id string) (time.Time, bool)
	SetBaseline(id string, at time.Time)
}

// SaveOptions controls Save.
type SaveOptions struct {
	// Force writes unconditionally, skipping the precondition.
	Force bool
}

// SaveResult is the outcome of a save that reached the server. Exactly one of
// Saved and Conflict is set.
type SaveResult struct {
	Saved    *models.CharacterSheet
	Conflict *models.CharacterSheet
}

// IsConflict reports whether the server rejected the precondition.
func (r SaveResult) IsConflict() bool { return r.Conflict != nil }

// ConflictBody is the 409 response payload.
type ConflictBody struct {
	Current *models.CharacterSheet `json:"current"`
}

// PurgeResult is the admin purge response payload.
type PurgeResult struct {
	Deleted int `json:"deleted"`
}

// Client talks to the character endpoints.
type Client struct {
	base      string
	http      *http.Client
	creds     CredentialSource
	baselines BaselineStore
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCredentials sets the bearer credential source.
func WithCredentials(src CredentialSource) Option {
	return func(c *Client) { c.creds = src }
}

// WithBaselines sets where precondition baselines are remembered.
func WithBaselines(store BaselineStore) Option {
	return func(c *Client) { c.baselines = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the service rooted at base.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:      strings.TrimRight(base, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		baselines: NewMemoryBaselines(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Base returns the service base URL.
func (c *Client) Base() string { return c.base }

// List returns summaries of every stored character.
func (c *Client) List(ctx context.Context) ([]models.Summary, error) {
	var out []models.Summary
	if _, err := c.do(ctx, http.MethodGet, "/characters", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Load fetches one character.
func (c *Client) Load(ctx context.Context, id string) (*models.CharacterSheet, error) {
	var out models.CharacterSheet
	if _, err := c.do(ctx, http.MethodGet, "/characters/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	c.baselines.SetBaseline(out.ID, out.UpdatedAt)
	return &out, nil
}

// Save writes sheet. A precondition failure is reported through
// SaveResult.Conflict, not as an error, and leaves the baseline unchanged.
func (c *Client) Save(ctx context.Context, sheet *models.CharacterSheet, opts SaveOptions) (SaveResult, error) {
	body, err := json.Marshal(sheet)
	if err != nil {
		return SaveResult{}, fmt.Errorf("remote: encode: %w", err)
	}

	path := "/characters/" + url.PathEscape(sheet.ID)
	headers := http.Header{}
	if opts.Force {
		path += "?force=1"
	} else if at, ok := c.baselines.Baseline(sheet.ID); ok {
		headers.Set(HeaderIfMatch, models.ETag(at))
	} else {
		headers.Set(HeaderIfNoneMatch, "*")
	}

	var saved models.CharacterSheet
	status, err := c.do(ctx, http.MethodPut, path, headers, body, &saved)
	if status == http.StatusConflict {
		var conflict ConflictBody
		if cerr := c.conflictBody(err, &conflict); cerr != nil {
			return SaveResult{}, cerr
		}
		c.logger.Info("remote: save conflict", slog.String("id", sheet.ID))
		return SaveResult{Conflict: conflict.Current}, nil
	}
	if err != nil {
		return SaveResult{}, err
	}
	c.baselines.SetBaseline(saved.ID, saved.UpdatedAt)
	return SaveResult{Saved: &saved}, nil
}

// Adopt records sheet's server UpdatedAt as the baseline for its ID. Call it
// when the local copy has been replaced by the server record, so that the
// next save is checked against that record.
func (c *Client) Adopt(sheet *models.CharacterSheet) {
	if sheet == nil || sheet.ID == "" {
		return
	}
	c.baselines.SetBaseline(sheet.ID, sheet.UpdatedAt)
}

// Remove deletes one character.
func (c *Client) Remove(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/characters/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return err
	}
	c.baselines.SetBaseline(id, time.Time{})
	return nil
}

// AdminList lists every character through the admin surface.
func (c *Client) AdminList(ctx context.Context) ([]models.Summary, error) {
	var out []models.Summary
	if _, err := c.do(ctx, http.MethodGet, "/admin/characters", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminPurge deletes every character through the admin surface.
func (c *Client) AdminPurge(ctx context.Context) (int, error) {
	var out PurgeResult
	if _, err := c.do(ctx, http.MethodDelete, "/admin/characters?confirm=1", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// statusError carries a non-2xx response.
type statusError struct {
	method string
	path   string
	status int
	body   []byte
}

func (e *statusError) Error() string {
	msg := strings.TrimSpace(string(e.body))
	var eb struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(e.body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.method, e.path, e.status, msg)
}

func (e *statusError) Unwrap() error { return ErrRequestFailed }

func (c *Client) conflictBody(err error, out *ConflictBody) error {
	var se *statusError
	if !errors.As(err, &se) {
		return err
	}
	if jerr := json.Unmarshal(se.body, out); jerr != nil || out.Current == nil {
		return fmt.Errorf("%w: conflict response without current record", ErrRequestFailed)
	}
	return nil
}

// do performs one request and decodes a 2xx JSON body into out. It returns
// the response status, or 0 when the request never completed.
func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.creds != nil {
		if key := c.creds.APIKey(); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &statusError{method: method, path: path, status: resp.StatusCode, body: data}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrRequestFailed, err)
		}
	}
	return resp.StatusCode, nil
}

// MemoryBaselines is an in-process BaselineStore.
type MemoryBaselines struct {
	mu sync.Mutex
	m  map[string]time.Time
}

// NewMemoryBaselines creates an empty baseline store.
func NewMemoryBaselines() *MemoryBaselines {
	return &MemoryBaselines{m: map[string]time.Time{}}
}

// Baseline implements BaselineStore.
func (b *MemoryBaselines) Baseline(id string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.m[id]
	return t, ok
}

// SetBaseline implements BaselineStore. A zero time forgets the entry.
func (b *MemoryBaselines) SetBaseline(id string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if at.IsZero() {
		delete(b.m, id)
		return
	}
	b.m[id] = at
}
