package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appalti/internal/registry"
)

func testEntity(name, pointer string) *registry.Entity {
	return &registry.Entity{
		Name:       name,
		FolderGlob: "*-" + name + "_json",
		Pointer:    pointer,
		Key:        "k",
		Columns:    []registry.Column{{Name: "k", Path: "k"}},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSource(t *testing.T, root, folder, file, content string) string {
	t.Helper()
	dir := filepath.Join(root, folder)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolvePointer(t *testing.T) {
	t.Run("root sentinel on a list", func(t *testing.T) {
		items := resolvePointer([]any{map[string]any{"a": 1.0}}, PointerRoot)
		assert.Len(t, items, 1)
	})

	t.Run("root sentinel on an object falls back to key lookup", func(t *testing.T) {
		doc := map[string]any{"item": []any{"x", "y"}}
		assert.Len(t, resolvePointer(doc, PointerRoot), 2)
	})

	t.Run("dotted pointer", func(t *testing.T) {
		doc := map[string]any{"records": map[string]any{"item": []any{"a", "b", "c"}}}
		assert.Len(t, resolvePointer(doc, "records.item"), 3)
	})

	t.Run("non-list value is wrapped", func(t *testing.T) {
		doc := map[string]any{"record": map[string]any{"k": "1"}}
		items := resolvePointer(doc, "record")
		require.Len(t, items, 1)
	})

	t.Run("missing path is empty", func(t *testing.T) {
		assert.Empty(t, resolvePointer(map[string]any{}, "nope.nothing"))
	})
}

func TestConvertFile(t *testing.T) {
	jsonRoot := t.TempDir()
	ndjsonRoot := t.TempDir()
	c := NewConverter(jsonRoot, ndjsonRoot, 2, quietLogger())
	e := testEntity("cig", PointerRoot)

	t.Run("mirrors the source tree as ndjson", func(t *testing.T) {
		path := writeSource(t, jsonRoot, "20240101-cig_json", "part1.json",
			`[{"k":"a"},{"k":"b"}]`)
		n, err := c.ConvertFile(path, e)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		out := filepath.Join(ndjsonRoot, "20240101-cig_json", "part1.ndjson")
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, 2)
		assert.JSONEq(t, `{"k":"a"}`, lines[0])
	})

	t.Run("malformed file is a file-scoped error", func(t *testing.T) {
		path := writeSource(t, jsonRoot, "20240101-cig_json", "broken.json", `{not json`)
		_, err := c.ConvertFile(path, e)
		require.Error(t, err)
	})
}

func TestConvertEntityCountsErrorsWithoutAborting(t *testing.T) {
	jsonRoot := t.TempDir()
	ndjsonRoot := t.TempDir()
	e := testEntity("cig", PointerRoot)

	writeSource(t, jsonRoot, "20240101-cig_json", "a.json", `[{"k":"1"}]`)
	writeSource(t, jsonRoot, "20240101-cig_json", "b.json", `not json at all`)
	writeSource(t, jsonRoot, "20240102-cig_json", "c.json", `[{"k":"2"},{"k":"3"}]`)

	c := NewConverter(jsonRoot, ndjsonRoot, 4, quietLogger())
	stats, err := c.ConvertEntity(context.Background(), e, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Files)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestConvertEntitySinceFilter(t *testing.T) {
	jsonRoot := t.TempDir()
	ndjsonRoot := t.TempDir()
	e := testEntity("cig", PointerRoot)

	writeSource(t, jsonRoot, "20230101-cig_json", "old.json", `[{"k":"old"}]`)
	writeSource(t, jsonRoot, "20240601-cig_json", "new.json", `[{"k":"new"}]`)

	c := NewConverter(jsonRoot, ndjsonRoot, 1, quietLogger())
	stats, err := c.ConvertEntity(context.Background(), e, "20240101")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Files)

	_, err = os.Stat(filepath.Join(ndjsonRoot, "20230101-cig_json", "old.ndjson"))
	assert.True(t, os.IsNotExist(err), "filtered folder must not be converted")
}

func TestDiscover(t *testing.T) {
	jsonRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(jsonRoot, "20240101-cig_json"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(jsonRoot, "20240101-mystery_json"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(jsonRoot, "not-a-dated-folder"), 0o755))

	reg, err := registry.Load("")
	require.NoError(t, err)

	d, err := Discover(jsonRoot, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"cig"}, d.Known)
	assert.Equal(t, []string{"mystery"}, d.Unknown)
}
