// Package assets keeps the files sent or received during a session.
//
// Ids are not deduplicated: adding an asset whose id is already present
// appends a new, distinct entry. Get returns the most recently added match.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const defaultMIMEType = "application/octet-stream"

// Asset is the materialized payload of a file envelope.
type Asset struct {
	ID       string
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

// IsImage reports whether the asset can be previewed as an image.
func (a Asset) IsImage() bool {
	return strings.HasPrefix(a.MIMEType, "image/")
}

// Store is an ordered, append-only asset collection, safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	assets []Asset
}

func NewStore() *Store {
	return &Store{}
}

// Add appends a and returns the stored asset. An asset without an id is
// stored as "unnamed-<n>", n being the collection size after the insert; a
// missing name defaults to the id and a missing MIME type to
// application/octet-stream.
func (s *Store) Add(a Asset) Asset {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = fmt.Sprintf("unnamed-%d", len(s.assets)+1)
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.MIMEType == "" {
		a.MIMEType = defaultMIMEType
	}
	s.assets = append(s.assets, a)
	return a
}

// Get returns the most recently added asset with the given id.
func (s *Store) Get(id string) (Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.assets) - 1; i >= 0; i-- {
		if s.assets[i].ID == id {
			return s.assets[i], true
		}
	}
	return Asset{}, false
}

// List returns a copy of all assets in insertion order.
func (s *Store) List() []Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Asset, len(s.assets))
	copy(out, s.assets)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}

// Save writes the asset with the given id into dir and returns the written
// path. The file name is reduced to its base name so a peer cannot choose
// where it lands; an existing file is never overwritten.
func (s *Store) Save(id, dir string) (string, error) {
	a, ok := s.Get(id)
	if !ok {
		return "", fmt.Errorf("asset %q not found", id)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	name := safeName(a.Name, a.ID)
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		_, werr := f.Write(a.Data)
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("write %s: %w", path, werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("close %s: %w", path, cerr)
		}
		return path, nil
	}
}

func safeName(name, fallback string) string {
	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if name == "/" || name == "." || name == "" {
		return fallback
	}
	return name
}
