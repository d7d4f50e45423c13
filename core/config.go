// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override file configuration.
const (
	EnvWidth     = "KFRAME_WIDTH"
	EnvHeight    = "KFRAME_HEIGHT"
	EnvVSync     = "KFRAME_VSYNC"
	EnvFps       = "KFRAME_FPS"
	EnvDebug     = "KFRAME_DEBUG"
	EnvLogLevel  = "KFRAME_LOG_LEVEL"
	EnvLogFormat = "KFRAME_LOG_FORMAT"
	EnvWorkers   = "KFRAME_WORKERS"
	EnvCacheDir  = "KFRAME_CACHE_DIR"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time      TimeConfiguration      `toml:"time"`
	Instance  InstanceConfiguration  `toml:"instance"`
	Renderer  RendererConfiguration  `toml:"renderer"`
	Swapchain SwapchainConfiguration `toml:"swapchain"`
	Log       LogConfiguration       `toml:"log"`
	Pool      PoolConfiguration      `toml:"pool"`
	Props     PropsConfiguration     `toml:"props"`
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int `toml:"fps"`

	// EventPollDelay is the delay between window event polls in milliseconds
	EventPollDelay int `toml:"event_poll_delay"`
}

// InstanceConfiguration configures the graphics API instance
type InstanceConfiguration struct {
	DebugMode        bool     `toml:"debug"`
	Extensions       []string `toml:"extensions"`
	Layers           []string `toml:"layers"`
	DeviceExtensions []string `toml:"device_extensions"`
}

// RendererConfiguration is used to configure the frame renderer
type RendererConfiguration struct {
	// FencePollTimeout bounds a single fence wait, waits are
	// retried until the fence signals so the loop stays responsive.
	FencePollTimeout Duration `toml:"fence_poll_timeout"`

	// AcquireTimeout bounds image acquisition, zero waits forever.
	AcquireTimeout Duration `toml:"acquire_timeout"`
}

// SwapchainConfiguration is used to configure the presentable image chain
type SwapchainConfiguration struct {
	Width        uint32 `toml:"width"`
	Height       uint32 `toml:"height"`
	VSync        bool   `toml:"vsync"`
	TripleBuffer bool   `toml:"triple_buffer"`
}

// LogConfiguration configures the logger
type LogConfiguration struct {
	// Level is a logrus level name: trace, debug, info, warn, error
	Level string `toml:"level"`

	// Format is either "text" or "json"
	Format string `toml:"format"`

	// File, when set, receives the log output instead of stderr
	File string `toml:"file"`
}

// PoolConfiguration configures the background worker pool
type PoolConfiguration struct {
	Workers int `toml:"workers"`
}

// PropsConfiguration configures the prop store and shader cache
type PropsConfiguration struct {
	BaseDir  string `toml:"base_dir"`
	CacheDir string `toml:"cache_dir"`
	Watch    bool   `toml:"watch"`
}

// Duration is a time.Duration that reads and writes as text, "250us", "2ms".
type Duration time.Duration

// D returns the standard library duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfiguration returns the built-in configuration.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  10,
		},
		Instance: InstanceConfiguration{
			DeviceExtensions: []string{"VK_KHR_swapchain"},
		},
		Renderer: RendererConfiguration{
			FencePollTimeout: Duration(time.Millisecond),
		},
		Swapchain: SwapchainConfiguration{
			Width:        800,
			Height:       600,
			TripleBuffer: true,
		},
		Log: LogConfiguration{
			Level:  "info",
			Format: "text",
		},
		Pool: PoolConfiguration{
			Workers: 2,
		},
		Props: PropsConfiguration{
			BaseDir:  ".",
			CacheDir: "cache",
		},
	}
}

// LoadConfiguration builds the configuration from defaults, the TOML file at path
// (skipped when empty or missing), the given .env files and finally KFRAME_*
// environment variables.
func LoadConfiguration(path string, envFiles ...string) (Configuration, error) {
	cfg := DefaultConfiguration()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("core.LoadConfiguration(): %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("core.LoadConfiguration(%s): %w", path, err)
			}
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("godotenv.Load(%s): %w", f, err)
		}
	}
	envy.Reload()

	if err := applyEnvironment(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteConfiguration stores cfg as TOML at path.
func WriteConfiguration(path string, cfg Configuration) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnvironment(cfg *Configuration) error {
	var err error
	if cfg.Swapchain.Width, err = envUint32(EnvWidth, cfg.Swapchain.Width); err != nil {
		return err
	}
	if cfg.Swapchain.Height, err = envUint32(EnvHeight, cfg.Swapchain.Height); err != nil {
		return err
	}
	if cfg.Swapchain.VSync, err = envBool(EnvVSync, cfg.Swapchain.VSync); err != nil {
		return err
	}
	if cfg.Instance.DebugMode, err = envBool(EnvDebug, cfg.Instance.DebugMode); err != nil {
		return err
	}
	if cfg.Time.FramesPerSecond, err = envInt(EnvFps, cfg.Time.FramesPerSecond); err != nil {
		return err
	}
	if cfg.Pool.Workers, err = envInt(EnvWorkers, cfg.Pool.Workers); err != nil {
		return err
	}
	cfg.Log.Level = envy.Get(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = envy.Get(EnvLogFormat, cfg.Log.Format)
	cfg.Props.CacheDir = envy.Get(EnvCacheDir, cfg.Props.CacheDir)
	return nil
}

func envInt(key string, def int) (int, error) {
	raw := envy.Get(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envUint32(key string, def uint32) (uint32, error) {
	raw := envy.Get(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return uint32(v), nil
}

func envBool(key string, def bool) (bool, error) {
	raw := envy.Get(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
