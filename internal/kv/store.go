// Package kv is the local key/value slot store backing drafts and client
// settings. Every key is one file; writes are atomic.
package kv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const (
	slotDir   = "slots"
	tmpPrefix = ".charforge-tmp-"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

var keyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store is a flat string key/value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) (string, error)
	// Set overwrites the value stored under key.
	Set(key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys lists every stored key in lexical order.
	Keys() ([]string, error)
}

// FS implements Store on top of a billy filesystem.
type FS struct {
	fs billy.Filesystem
}

var _ Store = (*FS)(nil)

// Open returns a store rooted at dir on the local disk, creating it if needed.
func Open(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("kv: create state dir: %w", err)
	}
	return New(osfs.New(dir))
}

// New returns a store on an arbitrary billy filesystem.
func New(fs billy.Filesystem) (*FS, error) {
	if err := fs.MkdirAll(slotDir, 0o700); err != nil {
		return nil, fmt.Errorf("kv: create slot dir: %w", err)
	}
	return &FS{fs: fs}, nil
}

func (s *FS) slotPath(key string) (string, error) {
	if !keyRe.MatchString(key) || strings.Contains(key, "..") {
		return "", fmt.Errorf("kv: invalid key %q", key)
	}
	return s.fs.Join(slotDir, key), nil
}

// Get returns the value stored under key.
func (s *FS) Get(key string) (string, error) {
	p, err := s.slotPath(key)
	if err != nil {
		return "", err
	}
	data, err := util.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv: read %s: %w", key, err)
	}
	return string(data), nil
}

// Set atomically writes value: temp file, then rename over the slot.
func (s *FS) Set(key, value string) error {
	p, err := s.slotPath(key)
	if err != nil {
		return err
	}

	tmp, err := s.fs.TempFile(slotDir, tmpPrefix)
	if err != nil {
		return fmt.Errorf("kv: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := io.WriteString(tmp, value); err != nil {
		return fmt.Errorf("kv: write temp: %w", err)
	}
	if syncer, ok := tmp.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return fmt.Errorf("kv: fsync: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kv: close temp: %w", err)
	}
	if err := s.fs.Rename(tmpName, p); err != nil {
		return fmt.Errorf("kv: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the slot for key.
func (s *FS) Delete(key string) error {
	p, err := s.slotPath(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys, skipping in-flight temp files.
func (s *FS) Keys() ([]string, error) {
	infos, err := s.fs.ReadDir(slotDir)
	if err != nil {
		return nil, fmt.Errorf("kv: list: %w", err)
	}
	out := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), tmpPrefix) {
			continue
		}
		out = append(out, fi.Name())
	}
	sort.Strings(out)
	return out, nil
}
