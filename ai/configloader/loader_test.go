package configloader

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string            `yaml:"name"`
	Limit int               `yaml:"limit"`
	Tags  map[string]string `yaml:"tags"`
}

var embedded = fstest.MapFS{
	"sample.yaml": {Data: []byte("name: base\nlimit: 3\ntags:\n  a: one\n  b: two\n")},
}

func TestOverlayWithoutOverrideFile(t *testing.T) {
	l := NewLoader(t.TempDir(), embedded)

	var s sample
	require.NoError(t, l.Overlay("sample.yaml", &s))
	assert.Equal(t, "base", s.Name)
	assert.Equal(t, 3, s.Limit)
}

func TestOverlay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.yaml"), []byte("limit: 5\ntags:\n  b: zwei\n"), 0o644))
	l := NewLoader(dir, embedded)

	var s sample
	require.NoError(t, l.Overlay("sample.yaml", &s))
	assert.Equal(t, "base", s.Name)
	assert.Equal(t, 5, s.Limit)
	assert.Equal(t, map[string]string{"a": "one", "b": "zwei"}, s.Tags)
}

func TestOverlayErrors(t *testing.T) {
	var s sample
	assert.Error(t, NewLoader("", fstest.MapFS{}).Overlay("sample.yaml", &s), "embedded file missing")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.yaml"), []byte("limit: [oops\n"), 0o644))
	assert.Error(t, NewLoader(dir, embedded).Overlay("sample.yaml", &s), "malformed override")
}

func TestOverlayDirOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.yaml"), []byte("name: custom\n"), 0o644))

	var s sample
	require.NoError(t, NewLoader(dir, nil).Overlay("sample.yaml", &s))
	assert.Equal(t, "custom", s.Name)
}
