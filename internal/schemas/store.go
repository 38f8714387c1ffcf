// Package schemas serves the static schema documents written next to the
// ETL tool, one file per source id.
package schemas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"etl-backend/internal/shared/util"
)

const (
	fileSuffix       = "_schema.json"
	defaultCacheSize = 128
)

var (
	ErrNotFound = errors.New("schema not found")
	ErrInvalid  = errors.New("schema is not valid JSON")
)

type entry struct {
	size    int64
	modTime time.Time
	doc     json.RawMessage
}

// Store reads <dir>/<id>_schema.json and caches parsed documents until the
// file's size or mtime changes.
type Store struct {
	dir   string
	cache *lru.Cache[string, entry]
}

func NewStore(dir string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, entry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("schema cache: %w", err)
	}
	return &Store{dir: dir, cache: cache}, nil
}

// Path returns the file that holds the schema for id. Ids that would leave
// the schema directory are ErrNotFound.
func (s *Store) Path(id string) (string, error) {
	if !util.IsSafeSegment(id) || !util.IsSafeSegment(id+fileSuffix) {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, id+fileSuffix), nil
}

// Lookup returns the compacted JSON document for id.
func (s *Store) Lookup(_ context.Context, id string) (json.RawMessage, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cache.Remove(id)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat schema %s: %w", id, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	if cached, ok := s.cache.Get(id); ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.doc, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", id, err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		s.cache.Remove(id)
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, id, err)
	}
	doc := json.RawMessage(buf.Bytes())
	s.cache.Add(id, entry{size: info.Size(), modTime: info.ModTime(), doc: doc})
	return doc, nil
}
