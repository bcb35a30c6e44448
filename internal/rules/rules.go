// Package rules reads the rules service metadata.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// SupportedConstraint is the range of rules versions this build understands.
const SupportedConstraint = ">= 1.0.0"

// StatusOffline is reported whenever metadata cannot be read.
const StatusOffline = "offline"

// Meta is the payload of {base}/meta.json.
type Meta struct {
	Version string `json:"version"`
}

// Client fetches rules metadata.
type Client struct {
	base       string
	http       *http.Client
	constraint *semver.Constraints
	logger     *slog.Logger
}

// NewClient creates a client for the rules service rooted at base.
func NewClient(base string, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c, err := semver.NewConstraint(SupportedConstraint)
	if err != nil {
		panic(fmt.Sprintf("rules: bad constraint: %v", err))
	}
	return &Client{
		base:       strings.TrimRight(base, "/"),
		http:       hc,
		constraint: c,
		logger:     logger,
	}
}

// Meta fetches the metadata document.
func (c *Client) Meta(ctx context.Context) (Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/meta.json", nil)
	if err != nil {
		return Meta{}, fmt.Errorf("rules: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Meta{}, fmt.Errorf("rules: fetch meta: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Meta{}, fmt.Errorf("rules: fetch meta: status %d", resp.StatusCode)
	}
	var meta Meta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return Meta{}, fmt.Errorf("rules: decode meta: %w", err)
	}
	return meta, nil
}

// Supported reports whether version parses and satisfies SupportedConstraint.
// Unparseable versions are treated as supported.
func (c *Client) Supported(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	return c.constraint.Check(v)
}

// Status returns the one-line status text: "rules v<version>", with
// " (unsupported)" appended when outside the supported range, or "offline".
func (c *Client) Status(ctx context.Context) string {
	meta, err := c.Meta(ctx)
	if err != nil {
		c.logger.Debug("rules: offline", slog.String("error", err.Error()))
		return StatusOffline
	}
	status := "rules v" + meta.Version
	if !c.Supported(meta.Version) {
		status += " (unsupported)"
	}
	return status
}
