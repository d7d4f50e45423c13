// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package props keeps named data files ("props") that are loaded on
// demand, and the shader cache built on top of them.
package props

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/devblok/kframe/core"
	"github.com/gobuffalo/packr"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

// ErrUnknownProp is returned for names that were never added.
var ErrUnknownProp = errors.New("props: unknown prop")

// Builtin holds the props compiled into the binary, used when a file is
// not found on disk.
var Builtin packr.Box

func init() {
	Builtin = packr.NewBox("./assets")
}

type prop struct {
	filename string
	data     []byte
}

// Store maps prop names to files. Data is read on first use and kept until unloaded.
type Store struct {
	base string
	log  logrus.FieldLogger

	mu    sync.RWMutex
	props map[string]*prop
}

// NewStore creates a store resolving relative filenames against cfg.BaseDir.
func NewStore(cfg core.PropsConfiguration, log logrus.FieldLogger) *Store {
	return &Store{
		base:  cfg.BaseDir,
		log:   core.Logger(log).WithField("component", "props"),
		props: make(map[string]*prop),
	}
}

// Add registers name for filename, replacing an earlier registration.
func (s *Store) Add(name, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[name] = &prop{filename: filename}
	s.log.WithField("prop", name).Tracef("prop added: %s", filename)
}

// Remove drops name.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.props, name)
}

// Install adds name and loads it right away.
func (s *Store) Install(name, filename string) error {
	s.Add(name, filename)
	return s.Load(name)
}

// Exists reports whether name is registered.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.props[name]
	return ok
}

// Loaded reports whether the data of name is in memory.
func (s *Store) Loaded(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.props[name]
	return ok && p.data != nil
}

// Filename returns the file registered for name.
func (s *Store) Filename(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.props[name]
	if !ok {
		return "", false
	}
	return p.filename, true
}

// Names returns every registered name in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.props))
	for name := range s.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the data of name, loading it when needed.
func (s *Store) Get(name string) ([]byte, error) {
	s.mu.RLock()
	p, ok := s.props[name]
	if ok && p.data != nil {
		data := p.data
		s.mu.RUnlock()
		return data, nil
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProp, name)
	}
	if err := s.Load(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.props[name]; ok {
		return p.data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProp, name)
}

// Load (re)reads the data of name.
func (s *Store) Load(name string) error {
	filename, ok := s.Filename(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProp, name)
	}

	data, err := s.ReadFile(filename)
	if err != nil {
		s.log.WithError(err).WithField("prop", name).Error("prop load failed")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.props[name]; ok && p.filename == filename {
		p.data = data
	}
	return nil
}

// LoadAll loads every prop, stopping at the first failure.
func (s *Store) LoadAll() error {
	for _, name := range s.Names() {
		if err := s.Load(name); err != nil {
			return err
		}
	}
	return nil
}

// Unload drops the data of name, the registration stays.
func (s *Store) Unload(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.props[name]; ok {
		p.data = nil
	}
}

// Check reports whether every prop file can be found.
func (s *Store) Check() bool {
	result := true
	for _, name := range s.Names() {
		filename, _ := s.Filename(name)
		if !s.exists(filename) {
			s.log.WithField("prop", name).Warnf("prop missing: %s", filename)
			result = false
		}
	}
	return result
}

// Path resolves filename against the base directory.
func (s *Store) Path(filename string) string {
	if filepath.IsAbs(filename) || s.base == "" {
		return filename
	}
	return filepath.Join(s.base, filename)
}

// ReadFile reads filename from disk, falling back to the builtin props.
func (s *Store) ReadFile(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(filename))
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if builtin, berr := Builtin.Find(filepath.ToSlash(filename)); berr == nil {
		return builtin, nil
	}
	return nil, err
}

func (s *Store) exists(filename string) bool {
	if _, err := os.Stat(s.Path(filename)); err == nil {
		return true
	}
	_, err := Builtin.Find(filepath.ToSlash(filename))
	return err == nil
}

// ParseFlags overrides prop files from command line arguments of
// the form -name=file or --name file. Unknown flags are ignored.
func (s *Store) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("props", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	values := make(map[string]*string)
	for _, name := range s.Names() {
		values[name] = fs.String(name, "", "file of prop "+name)
	}

	var known []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := flagName(arg)
		if _, ok := values[name]; !ok {
			continue
		}
		known = append(known, arg)
		if !hasValue(arg) && i+1 < len(args) {
			i++
			known = append(known, args[i])
		}
	}
	if err := fs.Parse(known); err != nil {
		return err
	}

	for name, value := range values {
		if *value == "" {
			continue
		}
		s.setFilename(name, *value)
		s.log.WithField("prop", name).Debugf("prop parse: %s", *value)
	}
	return nil
}

func flagName(arg string) string {
	name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
	return name
}

func hasValue(arg string) bool {
	return strings.Contains(arg, "=")
}

func (s *Store) setFilename(name, filename string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.props[name]
	if !ok || p.filename == filename {
		return false
	}
	p.filename = filename
	p.data = nil
	return true
}

// SetTOML overrides prop files from a TOML table of name = "file".
// Names that are not registered are ignored.
func (s *Store) SetTOML(data []byte) error {
	var files map[string]string
	if err := toml.Unmarshal(data, &files); err != nil {
		return fmt.Errorf("props.SetTOML(): %w", err)
	}
	for name, filename := range files {
		if s.setFilename(name, filename) {
			s.log.WithField("prop", name).Debugf("prop config: %s", filename)
		}
	}
	return nil
}

// TOML returns every registration as a TOML table of name = "file".
func (s *Store) TOML() ([]byte, error) {
	s.mu.RLock()
	files := make(map[string]string, len(s.props))
	for name, p := range s.props {
		files[name] = p.filename
	}
	s.mu.RUnlock()
	return toml.Marshal(files)
}
