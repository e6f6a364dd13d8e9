// Package cache keeps one analyze response per hostname on disk.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/nmollerup/sensu-check-ssllabs/internal/ssllabs"
)

var ErrInvalidHost = errors.New("invalid cache host name")

// Store is a directory of cached responses, one file per hostname.
type Store struct {
	dir    string
	maxAge time.Duration
}

// New returns a store rooted at dir. Entries older than maxAge are stale.
func New(dir string, maxAge time.Duration) *Store {
	return &Store{dir: dir, maxAge: maxAge}
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the cache file for host.
func (s *Store) Path(host string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(host))
	if puny, err := idna.Lookup.ToASCII(name); err == nil {
		name = puny
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return filepath.Join(s.dir, name), nil
}

// Fresh reports whether a cache file exists for host and is younger than the
// store's max age at now.
func (s *Store) Fresh(host string, now time.Time) bool {
	p, err := s.Path(host)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return false
	}
	return now.Sub(fi.ModTime()) < s.maxAge
}

// Read loads the cached record for host and marks it as coming from the cache.
func (s *Store) Read(host string) (ssllabs.Record, error) {
	p, err := s.Path(host)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	rec, err := ssllabs.DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", p, err)
	}
	rec[ssllabs.FromAgentCacheKey] = true
	return rec, nil
}

// Write stores the raw response text for host.
func (s *Store) Write(host string, raw []byte) error {
	p, err := s.Path(host)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(p, raw, 0644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
