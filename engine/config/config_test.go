package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-frame/engine/core"
)

const sample = `
[application]
name = "testbed"
width = 800
height = 600
max_frames = 120

[logging]
level = "debug"

[renderer]
frames_in_flight = 3
validation = true
poll_interval = "5ms"
stall_threshold = 20
recreate_timeout = "2s"

[cache]
max_samplers = 16
max_anisotropy = 8.0
checked = true

[jobs]
workers = 2
queue_size = 8
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "testbed", cfg.Application.Name)
	assert.Equal(t, uint32(800), cfg.Application.Width)
	assert.Equal(t, uint64(120), cfg.Application.MaxFrames)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, uint32(100), cfg.Application.X)

	assert.Equal(t, core.DebugLevel, cfg.LogLevel())

	assert.Equal(t, uint32(3), cfg.Renderer.FramesInFlight)
	assert.True(t, cfg.Renderer.Validation)
	assert.Equal(t, 5*time.Millisecond, time.Duration(cfg.Renderer.PollInterval))
	assert.Equal(t, 20, cfg.Renderer.StallThreshold)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Renderer.RecreateTimeout))

	assert.Equal(t, uint32(16), cfg.Cache.MaxSamplers)
	assert.Equal(t, float32(8), cfg.Cache.MaxAnisotropy)
	assert.True(t, cfg.Cache.Checked)

	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, 8, cfg.Jobs.QueueSize)
}

func TestParseEmptyGivesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, Default().Validate())
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "[renderer]\nframes = 2\n",
		"syntax":            "[renderer\n",
		"zero frames":       "[renderer]\nframes_in_flight = 0\n",
		"bad level":         "[logging]\nlevel = \"loud\"\n",
		"bad duration":      "[renderer]\npoll_interval = \"soon\"\n",
		"negative duration": "[renderer]\nrecreate_timeout = \"-1s\"\n",
		"zero samplers":     "[cache]\nmax_samplers = 0\n",
		"no workers":        "[jobs]\nworkers = 0\n",
		"zero height":       "[application]\nheight = 0\n",
		"negative stall":    "[renderer]\nstall_threshold = -1\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "testbed", cfg.Application.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o644))

	initial, err := Load(path)
	require.NoError(t, err)

	var last atomic.Pointer[Config]
	w, err := NewWatcher(path, initial, func(cfg *Config) { last.Store(cfg) })
	require.NoError(t, err)
	defer w.Close()

	// Invalid content is skipped.
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"warn\"\n"), 0o644))

	require.Eventually(t, func() bool {
		cfg := last.Load()
		return cfg != nil && cfg.Logging.Level == "warn"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "warn", w.Current().Logging.Level)
}

func TestWatcherClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := NewWatcher(path, Default(), ApplyLogLevel)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.Close())

	assert.Panics(t, func() { NewWatcher(path, Default(), nil) })
}
