// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package props

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/devblok/kframe/core"
	"github.com/pelletier/go-toml/v2"
	"github.com/pierrec/lz4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

const (
	shaderDir    = "shader"
	shaderSuffix = ".spirv.lz4"
	hashFileName = "hash.toml"
)

// IncludeFunc returns the source of an included file.
type IncludeFunc func(name string) ([]byte, error)

// Compiler turns shader source into SPIR-V. Includes must be read through include.
type Compiler interface {
	Compile(name, filename string, source []byte, include IncludeFunc) ([]byte, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(name, filename string, source []byte, include IncludeFunc) ([]byte, error)

// Compile implements Compiler
func (f CompilerFunc) Compile(name, filename string, source []byte, include IncludeFunc) ([]byte, error) {
	return f(name, filename, source, include)
}

// ShaderCache compiles shader props and caches the modules on disk.
// A cached module is used while the hashes of every source file it was
// built from still match, a missing hash file invalidates the whole cache.
type ShaderCache struct {
	store    *Store
	compiler Compiler
	dir      string
	log      logrus.FieldLogger

	mu      sync.Mutex
	shaders map[string][]byte
}

// NewShaderCache creates a cache under cfg.CacheDir.
func NewShaderCache(store *Store, compiler Compiler, cfg core.PropsConfiguration, log logrus.FieldLogger) *ShaderCache {
	return &ShaderCache{
		store:    store,
		compiler: compiler,
		dir:      filepath.Join(cfg.CacheDir, shaderDir),
		log:      core.Logger(log).WithField("component", "shaders"),
		shaders:  make(map[string][]byte),
	}
}

// Get returns the module of shader prop name. With reload set the
// source is compiled again regardless of the cache.
func (c *ShaderCache) Get(name string, reload bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if module, ok := c.shaders[name]; ok {
		if !reload {
			return module, nil
		}
		delete(c.shaders, name)
	}

	log := c.log.WithField("shader", name)
	cacheFile := filepath.Join(c.dir, name+shaderSuffix)

	if !reload {
		if c.valid(name) {
			module, err := readCompressed(cacheFile)
			if err == nil {
				c.shaders[name] = module
				log.WithField("bytes", len(module)).Info("shader cache hit")
				return module, nil
			}
			log.WithError(err).Warn("shader cache unreadable")
		}
		log.Info("shader cache invalid")
		reload = true
	}

	if reload && c.store.Exists(name) {
		c.store.Unload(name)
	}
	source, err := c.store.Get(name)
	if err != nil {
		return nil, err
	}
	filename, _ := c.store.Filename(name)

	hashes := make(map[string]string)
	include := func(inc string) ([]byte, error) {
		path := filepath.Join(filepath.Dir(filename), inc)
		data, err := c.store.ReadFile(path)
		if err != nil {
			return nil, err
		}
		hashes[path] = hash(data)
		return data, nil
	}

	log.Debugf("compiling shader: %s", filename)
	module, err := c.compiler.Compile(name, filename, source, include)
	if err != nil {
		return nil, fmt.Errorf("compile shader %s: %w", name, err)
	}
	hashes[filename] = hash(source)
	c.store.Unload(name)

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, err
	}
	if err := c.updateHash(name, hashes); err != nil {
		log.WithError(err).Warn("shader hash not saved")
	}
	if err := writeCompressed(cacheFile, module); err != nil {
		log.WithError(err).Warnf("shader not cached: %s", cacheFile)
	}

	c.shaders[name] = module
	return module, nil
}

// Forget drops the in-memory module of name, the disk cache stays.
func (c *ShaderCache) Forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shaders, name)
}

// Clear drops every in-memory module and the disk cache.
func (c *ShaderCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shaders = make(map[string][]byte)
	return os.RemoveAll(c.dir)
}

type hashTable map[string]map[string]string

func (c *ShaderCache) hashFile() string {
	return filepath.Join(c.dir, hashFileName)
}

func (c *ShaderCache) loadHashes() (hashTable, error) {
	data, err := os.ReadFile(c.hashFile())
	if err != nil {
		return nil, err
	}
	table := hashTable{}
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	return table, nil
}

func (c *ShaderCache) updateHash(name string, hashes map[string]string) error {
	table, err := c.loadHashes()
	if err != nil {
		table = hashTable{}
	}
	table[name] = hashes

	data, err := toml.Marshal(table)
	if err != nil {
		return err
	}
	return os.WriteFile(c.hashFile(), data, 0o644)
}

func (c *ShaderCache) valid(name string) bool {
	table, err := c.loadHashes()
	if err != nil {
		return false
	}
	files, ok := table[name]
	if !ok || len(files) == 0 {
		return false
	}
	for file, want := range files {
		data, err := c.store.ReadFile(file)
		if err != nil || hash(data) != want {
			return false
		}
	}
	return true
}

func hash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeCompressed(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := lz4.NewWriter(f)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lz4.NewReader(f)); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, errors.New("empty shader module")
	}
	return buf.Bytes(), nil
}
