// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package props

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/kframe/core"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	log, _ := test.NewNullLogger()
	return NewStore(core.PropsConfiguration{BaseDir: dir}, log), dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStoreLazyLoad(t *testing.T) {
	s, dir := newStore(t)
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")

	s.Add("a", "a.txt")
	assert.True(t, s.Exists("a"))
	assert.False(t, s.Loaded("a"))

	data, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	assert.True(t, s.Loaded("a"))

	// loaded data stays until unloaded
	writeFile(t, filepath.Join(dir, "a.txt"), "beta")
	data, err = s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	s.Unload("a")
	assert.False(t, s.Loaded("a"))
	data, err = s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))

	s.Remove("a")
	assert.False(t, s.Exists("a"))
	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrUnknownProp)
}

func TestStoreInstall(t *testing.T) {
	s, dir := newStore(t)
	writeFile(t, filepath.Join(dir, "b.txt"), "bravo")

	require.NoError(t, s.Install("b", "b.txt"))
	assert.True(t, s.Loaded("b"))
	assert.Error(t, s.Install("missing", "nope.txt"))
	assert.True(t, s.Exists("missing"))
}

func TestStoreCheckAndLoadAll(t *testing.T) {
	s, dir := newStore(t)
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	s.Add("a", "a.txt")
	s.Add("builtin", "clear.frag")
	assert.True(t, s.Check())
	require.NoError(t, s.LoadAll())

	s.Add("gone", "gone.txt")
	assert.False(t, s.Check())
	assert.Error(t, s.LoadAll())
}

func TestStoreBuiltinFallback(t *testing.T) {
	s, _ := newStore(t)
	s.Add("fullscreen", "fullscreen.vert")

	data, err := s.Get("fullscreen")
	require.NoError(t, err)
	assert.Contains(t, string(data), "gl_VertexIndex")
}

func TestStoreParseFlags(t *testing.T) {
	s, _ := newStore(t)
	s.Add("shader", "default.vert")
	s.Add("texture", "default.png")
	s.Add("font", "default.ttf")

	err := s.ParseFlags([]string{"-shader=custom.vert", "--texture", "custom.png", "-fps", "30", "font"})
	require.NoError(t, err)

	shader, _ := s.Filename("shader")
	texture, _ := s.Filename("texture")
	font, _ := s.Filename("font")
	assert.Equal(t, "custom.vert", shader)
	assert.Equal(t, "custom.png", texture)
	assert.Equal(t, "default.ttf", font)
}

func TestStoreTOML(t *testing.T) {
	s, _ := newStore(t)
	s.Add("shader", "default.vert")
	s.Add("texture", "default.png")

	require.NoError(t, s.SetTOML([]byte("shader = \"custom.vert\"\nunknown = \"x\"\n")))
	shader, _ := s.Filename("shader")
	assert.Equal(t, "custom.vert", shader)
	assert.False(t, s.Exists("unknown"))

	data, err := s.TOML()
	require.NoError(t, err)

	other, _ := newStore(t)
	other.Add("shader", "")
	other.Add("texture", "")
	require.NoError(t, other.SetTOML(data))
	texture, _ := other.Filename("texture")
	assert.Equal(t, "default.png", texture)

	assert.Error(t, s.SetTOML([]byte("not toml = = =")))
}

func TestStorePath(t *testing.T) {
	s, dir := newStore(t)
	assert.Equal(t, filepath.Join(dir, "x"), s.Path("x"))

	abs := filepath.Join(t.TempDir(), "y")
	assert.Equal(t, abs, s.Path(abs))
}
