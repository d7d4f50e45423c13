// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package props

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/devblok/kframe/core"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCompiler struct {
	calls    int
	includes []string
	fail     error
}

func (c *countingCompiler) Compile(name, filename string, source []byte, include IncludeFunc) ([]byte, error) {
	c.calls++
	if c.fail != nil {
		return nil, c.fail
	}
	module := append([]byte("SPV:"), source...)
	for _, inc := range c.includes {
		data, err := include(inc)
		if err != nil {
			return nil, err
		}
		module = append(module, data...)
	}
	return module, nil
}

type shaderFixture struct {
	dir      string
	cfg      core.PropsConfiguration
	store    *Store
	compiler *countingCompiler
}

func newShaderFixture(t *testing.T) *shaderFixture {
	t.Helper()
	dir := t.TempDir()
	cfg := core.PropsConfiguration{BaseDir: dir, CacheDir: filepath.Join(dir, "cache")}
	log, _ := test.NewNullLogger()

	store := NewStore(cfg, log)
	writeFile(t, filepath.Join(dir, "shaders", "tri.vert"), "void main() {}")
	writeFile(t, filepath.Join(dir, "shaders", "common.glsl"), "// common")
	store.Add("tri", filepath.Join("shaders", "tri.vert"))

	return &shaderFixture{dir: dir, cfg: cfg, store: store, compiler: &countingCompiler{}}
}

func (f *shaderFixture) cache() *ShaderCache {
	log, _ := test.NewNullLogger()
	return NewShaderCache(f.store, f.compiler, f.cfg, log)
}

func TestShaderCacheCompilesOnce(t *testing.T) {
	f := newShaderFixture(t)
	c := f.cache()

	module, err := c.Get("tri", false)
	require.NoError(t, err)
	assert.Equal(t, "SPV:void main() {}", string(module))
	assert.Equal(t, 1, f.compiler.calls)
	assert.False(t, f.store.Loaded("tri"), "source is unloaded after compiling")

	_, err = c.Get("tri", false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.compiler.calls)

	assert.FileExists(t, filepath.Join(f.cfg.CacheDir, shaderDir, "tri"+shaderSuffix))
	assert.FileExists(t, filepath.Join(f.cfg.CacheDir, shaderDir, hashFileName))

	// a fresh cache reads the module from disk
	fresh := f.cache()
	cached, err := fresh.Get("tri", false)
	require.NoError(t, err)
	assert.Equal(t, module, cached)
	assert.Equal(t, 1, f.compiler.calls)
}

func TestShaderCacheReload(t *testing.T) {
	f := newShaderFixture(t)
	c := f.cache()

	_, err := c.Get("tri", false)
	require.NoError(t, err)
	_, err = c.Get("tri", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.compiler.calls)
}

func TestShaderCacheSourceChanged(t *testing.T) {
	f := newShaderFixture(t)
	_, err := f.cache().Get("tri", false)
	require.NoError(t, err)

	writeFile(t, filepath.Join(f.dir, "shaders", "tri.vert"), "void main() { return; }")
	module, err := f.cache().Get("tri", false)
	require.NoError(t, err)
	assert.Equal(t, "SPV:void main() { return; }", string(module))
	assert.Equal(t, 2, f.compiler.calls)
}

func TestShaderCacheIncludeChanged(t *testing.T) {
	f := newShaderFixture(t)
	f.compiler.includes = []string{"common.glsl"}

	_, err := f.cache().Get("tri", false)
	require.NoError(t, err)
	_, err = f.cache().Get("tri", false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.compiler.calls)

	writeFile(t, filepath.Join(f.dir, "shaders", "common.glsl"), "// changed")
	module, err := f.cache().Get("tri", false)
	require.NoError(t, err)
	assert.Contains(t, string(module), "// changed")
	assert.Equal(t, 2, f.compiler.calls)
}

func TestShaderCacheMissingHashFile(t *testing.T) {
	f := newShaderFixture(t)
	_, err := f.cache().Get("tri", false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.cfg.CacheDir, shaderDir, hashFileName)))
	_, err = f.cache().Get("tri", false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.compiler.calls)
}

func TestShaderCacheErrors(t *testing.T) {
	f := newShaderFixture(t)
	c := f.cache()

	_, err := c.Get("unknown", false)
	assert.ErrorIs(t, err, ErrUnknownProp)

	failure := errors.New("syntax error")
	f.compiler.fail = failure
	_, err = c.Get("tri", false)
	assert.ErrorIs(t, err, failure)
}

func TestShaderCacheClear(t *testing.T) {
	f := newShaderFixture(t)
	c := f.cache()
	_, err := c.Get("tri", false)
	require.NoError(t, err)

	require.NoError(t, c.Clear())
	assert.NoDirExists(t, filepath.Join(f.cfg.CacheDir, shaderDir))
	_, err = c.Get("tri", false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.compiler.calls)
}

func TestShaderCacheCompilerFunc(t *testing.T) {
	f := newShaderFixture(t)
	log, _ := test.NewNullLogger()
	c := NewShaderCache(f.store, CompilerFunc(func(name, _ string, source []byte, _ IncludeFunc) ([]byte, error) {
		return []byte(name), nil
	}), f.cfg, log)

	module, err := c.Get("tri", false)
	require.NoError(t, err)
	assert.Equal(t, "tri", string(module))
}
