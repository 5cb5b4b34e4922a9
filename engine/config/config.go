package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-frame/engine/core"
)

// Duration reads Go duration strings such as "10ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Application struct {
	Name   string `toml:"name"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// Stop after this many frames. 0 runs until the window closes.
	MaxFrames uint64 `toml:"max_frames"`
}

type Logging struct {
	Level string `toml:"level"`
}

type Renderer struct {
	FramesInFlight uint32 `toml:"frames_in_flight"`
	Validation     bool   `toml:"validation"`
	// Interval between extent polls while the window is minimized.
	PollInterval Duration `toml:"poll_interval"`
	// Polls after which a minimized window is reported as stalled.
	StallThreshold int `toml:"stall_threshold"`
	// Upper bound on waiting for a usable extent. 0 waits forever.
	RecreateTimeout Duration `toml:"recreate_timeout"`
}

type Cache struct {
	MaxSamplers   uint32  `toml:"max_samplers"`
	MaxAnisotropy float32 `toml:"max_anisotropy"`
	// Turns leaks and ceiling overflow into panics.
	Checked bool `toml:"checked"`
}

type Jobs struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// Config is the whole engine configuration as read from a TOML file.
type Config struct {
	Application Application `toml:"application"`
	Logging     Logging     `toml:"logging"`
	Renderer    Renderer    `toml:"renderer"`
	Cache       Cache       `toml:"cache"`
	Jobs        Jobs        `toml:"jobs"`
}

func Default() *Config {
	return &Config{
		Application: Application{
			Name:   "Anima Frame",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Logging: Logging{
			Level: "info",
		},
		Renderer: Renderer{
			FramesInFlight: 2,
			PollInterval:   Duration(10 * time.Millisecond),
			StallThreshold: 100,
		},
		Cache: Cache{
			MaxSamplers: 256,
		},
		Jobs: Jobs{
			Workers:   4,
			QueueSize: 64,
		},
	}
}

// Load reads path over the defaults. Keys that are not part of Config are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %s", core.ErrInvalidConfig, row, col, decodeErr.Error())
		}
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("%w: application size %dx%d", core.ErrInvalidConfig, c.Application.Width, c.Application.Height)
	}
	if _, err := core.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging level %q", core.ErrInvalidConfig, c.Logging.Level)
	}
	if c.Renderer.FramesInFlight == 0 {
		return fmt.Errorf("%w: renderer.frames_in_flight must be > 0", core.ErrInvalidConfig)
	}
	if c.Renderer.PollInterval < 0 || c.Renderer.RecreateTimeout < 0 {
		return fmt.Errorf("%w: renderer durations must not be negative", core.ErrInvalidConfig)
	}
	if c.Renderer.StallThreshold < 0 {
		return fmt.Errorf("%w: renderer.stall_threshold must not be negative", core.ErrInvalidConfig)
	}
	if c.Cache.MaxSamplers == 0 {
		return fmt.Errorf("%w: cache.max_samplers must be > 0", core.ErrInvalidConfig)
	}
	if c.Cache.MaxAnisotropy < 0 {
		return fmt.Errorf("%w: cache.max_anisotropy must not be negative", core.ErrInvalidConfig)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("%w: jobs.workers must be > 0", core.ErrInvalidConfig)
	}
	if c.Jobs.QueueSize < 0 {
		return fmt.Errorf("%w: jobs.queue_size must not be negative", core.ErrInvalidConfig)
	}
	return nil
}

// LogLevel returns the parsed logging level. Validate has already checked it.
func (c *Config) LogLevel() core.LogLevel {
	level, err := core.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return core.InfoLevel
	}
	return level
}
