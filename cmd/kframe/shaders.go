// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/props"
	"github.com/devblok/kframe/utility/pool"
	"github.com/devblok/kframe/utility/telegraph"
	"github.com/sirupsen/logrus"
)

// Shader props, resolved from the props base directory or the built-in box.
const (
	vertexShader   = "fullscreen.vert"
	fragmentShader = "clear.frag"
)

const (
	msgPropChanged uint32 = iota + 1
)

// Editors write in bursts, recompile once they settled.
const reloadDelay = 100 * time.Millisecond

const maxIncludeDepth = 8

var includePrefix = []byte("#include ")

// glslang compiles through the glslangValidator tool, with includes
// inlined beforehand.
func glslang(name, filename string, source []byte, include props.IncludeFunc) ([]byte, error) {
	source, err := inline(source, include, 0)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", name, err)
	}

	dir, err := os.MkdirTemp("", "kframe-shader")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(src, source, 0o644); err != nil {
		return nil, err
	}
	out := filepath.Join(dir, "module.spv")

	cmd := exec.Command("glslangValidator", "-V", src, "-o", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("glslangValidator(%s): %w: %s", name, err, bytes.TrimSpace(output))
	}
	return os.ReadFile(out)
}

func inline(source []byte, include props.IncludeFunc, depth int) ([]byte, error) {
	if depth > maxIncludeDepth {
		return nil, fmt.Errorf("includes nested deeper than %d", maxIncludeDepth)
	}
	lines := bytes.Split(source, []byte("\n"))
	for i, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if !bytes.HasPrefix(trimmed, includePrefix) {
			continue
		}
		file := string(bytes.Trim(bytes.TrimPrefix(trimmed, includePrefix), `"<> `))
		data, err := include(file)
		if err != nil {
			return nil, fmt.Errorf("include %s: %w", file, err)
		}
		if lines[i], err = inline(data, include, depth+1); err != nil {
			return nil, err
		}
	}
	return bytes.Join(lines, []byte("\n")), nil
}

// setupShaders registers the shader props, warms the cache in the
// background and, when enabled, recompiles props as their files change.
func setupShaders(ids *core.IDs, store *props.Store, workers *pool.Pool, dispatcher *telegraph.Dispatcher, cfg core.PropsConfiguration, log logrus.FieldLogger) (func(), error) {
	store.Add(vertexShader, "fullscreen.vert")
	store.Add(fragmentShader, "clear.frag")
	if err := store.ParseFlags(flag.Args()); err != nil {
		return nil, err
	}
	if !store.Check() {
		return nil, fmt.Errorf("props: missing prop files")
	}

	shaders := props.NewShaderCache(store, props.CompilerFunc(glslang), cfg, log)
	compile := func(name string, reload bool) {
		module, err := shaders.Get(name, reload)
		if err != nil {
			log.WithError(err).WithField("shader", name).Warn("shader not compiled")
			return
		}
		log.WithFields(logrus.Fields{
			"shader": name,
			"size":   len(module),
		}).Debug("shader ready")
	}

	for _, name := range []string{vertexShader, fragmentShader} {
		name := name
		if err := workers.Enqueue(func(core.ID) { compile(name, false) }); err != nil {
			return nil, err
		}
	}

	if !cfg.Watch {
		return func() {}, nil
	}

	receiver := ids.Next()
	dispatcher.AddDispatch(receiver, func(msg telegraph.Message, _ core.ID) {
		if name, ok := msg.Info.(string); ok {
			shaders.Forget(name)
			compile(name, true)
		}
	})

	watcher, err := props.NewWatcher(store, func(name string) {
		if err := dispatcher.SendMessage(receiver, receiver, msgPropChanged, reloadDelay, name); err != nil {
			log.WithError(err).WithField("prop", name).Warn("reload not scheduled")
		}
	}, log)
	if err != nil {
		dispatcher.RemoveDispatch(receiver)
		return nil, err
	}

	return func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("watcher close")
		}
		dispatcher.RemoveDispatch(receiver)
	}, nil
}
