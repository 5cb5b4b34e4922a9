/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-frame/engine"
	"github.com/spaghettifunk/anima-frame/engine/config"
	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/platform"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-frame/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-frame/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the engine configuration")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		core.LogFatal("failed to load configuration: %s", err)
	}
	core.SetLogLevel(cfg.LogLevel())

	if err := run(cfg, *configPath); err != nil {
		core.LogFatal("%s", err)
	}
}

// loadConfig falls back to the defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		core.LogWarn("no configuration at %s, using defaults", path)
		return config.Default(), nil
	}
	return cfg, err
}

func run(cfg *config.Config, configPath string) (err error) {
	p, err := platform.New()
	if err != nil {
		return err
	}
	app := cfg.Application
	if err := p.Startup(app.Name, app.X, app.Y, app.Width, app.Height); err != nil {
		return err
	}
	defer p.Shutdown()

	backend := vulkan.New(p, cfg.Renderer.FramesInFlight, cfg.Renderer.Validation)
	if err := backend.Initialize(app.Name); err != nil {
		backend.Shutdown()
		return err
	}
	defer func() {
		err = errors.Join(err, backend.Shutdown())
	}()

	if limit := backend.MaxSamplerAnisotropy(); cfg.Cache.MaxAnisotropy > limit {
		core.LogWarn("cache.max_anisotropy %.1f exceeds the device limit %.1f", cfg.Cache.MaxAnisotropy, limit)
		cfg.Cache.MaxAnisotropy = limit
	}

	tb, err := testbed.NewTestGame()
	if err != nil {
		return err
	}

	e, err := engine.New(cfg, tb.Game, backend, p, backend.SamplerFactory(), &metadata.LogLabeler{})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, e.Shutdown())
	}()

	if _, statErr := os.Stat(configPath); statErr == nil {
		watcher, err := config.NewWatcher(configPath, cfg, config.ApplyLogLevel)
		if err != nil {
			core.LogWarn("configuration changes will not be picked up: %s", err)
		} else {
			defer watcher.Close()
		}
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	// stop the main loop on sigterm; the deferred shutdowns do the rest
	go func() {
		if _, ok := <-sigCh; ok {
			core.LogInfo("signal received, stopping")
			e.Stop()
		}
	}()

	if err := e.Initialize(); err != nil {
		return err
	}
	return e.Run()
}
