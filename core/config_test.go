// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigurationDefaults(t *testing.T) {
	cfg, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfiguration(), cfg)
}

func TestLoadConfigurationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kframe.toml")
	data := `
[swapchain]
width = 1280
height = 720
vsync = true

[renderer]
fence_poll_timeout = "250us"

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(1280), cfg.Swapchain.Width)
	assert.Equal(t, uint32(720), cfg.Swapchain.Height)
	assert.True(t, cfg.Swapchain.VSync)
	assert.Equal(t, 250*time.Microsecond, cfg.Renderer.FencePollTimeout.D())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 60, cfg.Time.FramesPerSecond)
}

func TestLoadConfigurationEnvironment(t *testing.T) {
	t.Setenv(EnvWidth, "320")
	t.Setenv(EnvVSync, "true")
	t.Setenv(EnvLogFormat, "json")

	cfg, err := LoadConfiguration("")
	require.NoError(t, err)
	assert.Equal(t, uint32(320), cfg.Swapchain.Width)
	assert.True(t, cfg.Swapchain.VSync)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigurationEnvironmentInvalid(t *testing.T) {
	t.Setenv(EnvFps, "fast")

	_, err := LoadConfiguration("")
	assert.Error(t, err)
}

func TestWriteConfigurationRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kframe.toml")
	want := DefaultConfiguration()
	want.Swapchain.TripleBuffer = false
	want.Renderer.AcquireTimeout = Duration(time.Second)
	require.NoError(t, WriteConfiguration(path, want))

	got, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.False(t, got.Swapchain.TripleBuffer)
	assert.Equal(t, time.Second, got.Renderer.AcquireTimeout.D())
	assert.Equal(t, want.Renderer.FencePollTimeout, got.Renderer.FencePollTimeout)
	assert.Equal(t, want.Instance.DeviceExtensions, got.Instance.DeviceExtensions)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(LogConfiguration{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, "warning", log.GetLevel().String())

	_, err = NewLogger(LogConfiguration{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LogConfiguration{Format: "xml"})
	assert.Error(t, err)
}
