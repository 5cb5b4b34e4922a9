package engine

import (
	"time"

	"github.com/spaghettifunk/anima-frame/engine/config"
	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/command"
	"github.com/spaghettifunk/anima-frame/engine/renderer/frame"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-frame/engine/systems"
)

// Context holds every service of one engine instance. It is passed
// explicitly to the game; nothing in it is global.
type Context struct {
	Config *config.Config

	Device metadata.Device
	Window metadata.Window

	Jobs     *systems.JobSystem
	Samplers *systems.SamplerSystem
	Commands *command.Aggregator
	Frame    *frame.Orchestrator
	Metrics  *core.Metrics
}

func frameConfig(cfg *config.Config) frame.Config {
	return frame.Config{
		FramesInFlight:  cfg.Renderer.FramesInFlight,
		PollInterval:    time.Duration(cfg.Renderer.PollInterval),
		StallThreshold:  cfg.Renderer.StallThreshold,
		RecreateTimeout: time.Duration(cfg.Renderer.RecreateTimeout),
	}
}

func systemsConfig(cfg *config.Config, samplers systems.SamplerFactory) systems.SystemManagerConfig {
	return systems.SystemManagerConfig{
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
		Sampler: systems.SamplerSystemConfig{
			MaxSamplerCount: cfg.Cache.MaxSamplers,
			MaxAnisotropy:   cfg.Cache.MaxAnisotropy,
			Checked:         cfg.Cache.Checked,
		},
		SamplerSource: samplers,
	}
}
