package schemas

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir, 4)
	require.NoError(t, err)
	return s, dir
}

func TestLookupReturnsDocument(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoices_schema.json"), []byte("{\n  \"fields\": [\"a\", \"b\"]\n}\n"), 0o644))

	doc, err := s.Lookup(context.Background(), "invoices")

	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":["a","b"]}`, string(doc))
}

func TestLookupMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupRejectsTraversal(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "escape_schema.json"), []byte(`{}`), 0o644))

	for _, id := range []string{"", "..", "../escape", "a/b", `a\b`} {
		_, err := s.Lookup(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
}

func TestLookupInvalidJSON(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken_schema.json"), []byte("{not json"), 0o644))

	_, err := s.Lookup(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLookupPicksUpRewrittenFile(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, "src_schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"v":1}`), 0o644))

	doc, err := s.Lookup(context.Background(), "src")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(doc))

	require.NoError(t, os.WriteFile(path, []byte(`{"v":22}`), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	doc, err = s.Lookup(context.Background(), "src")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":22}`, string(doc))
}

func TestLookupForgetsDeletedFile(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, "gone_schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	_, err := s.Lookup(context.Background(), "gone")
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = s.Lookup(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.cache.Contains("gone"))
}
