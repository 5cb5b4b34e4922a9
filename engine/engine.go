package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-frame/engine/config"
	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/command"
	"github.com/spaghettifunk/anima-frame/engine/renderer/frame"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-frame/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource it owns
	EngineStageShutdown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	context       *Context
	systemManager *systems.SystemManager
	clock         *core.Clock
	lastTime      float64
	lastExtent    metadata.Extent

	isRunning atomic.Bool
}

// New assembles the engine services on top of an already initialized device
// and window. The caller keeps ownership of both.
func New(cfg *config.Config, g *Game, device metadata.Device, window metadata.Window, samplers systems.SamplerFactory, labeler metadata.Labeler) (*Engine, error) {
	if g == nil || g.FnRender == nil {
		return nil, fmt.Errorf("%w: a game with a render function is required", core.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sm, err := systems.NewSystemManager(systemsConfig(cfg, samplers))
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	metrics := core.NewMetrics()
	aggregator := command.NewAggregator(command.Options{Checked: cfg.Renderer.Validation})
	orchestrator, err := frame.NewOrchestrator(frameConfig(cfg), device, window, aggregator, labeler, metrics)
	if err != nil {
		sm.Shutdown()
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		systemManager: sm,
		clock:         core.NewClock(),
		context: &Context{
			Config:   cfg,
			Device:   device,
			Window:   window,
			Jobs:     sm.JobSystem,
			Samplers: sm.SamplerSystem,
			Commands: aggregator,
			Frame:    orchestrator,
			Metrics:  metrics,
		},
	}, nil
}

// Context returns the services owned by the engine.
func (e *Engine) Context() *Context {
	return e.context
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		panic("engine initialized twice")
	}
	e.currentStage = EngineStageInitializing

	// Build the first swapchain up front so the game sees a real extent.
	if err := e.context.Frame.RecreateSwapSurface(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.context); err != nil {
			return err
		}
	}
	if err := e.notifyResize(); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames until the window closes, Stop is called, the configured
// frame budget is spent or a fatal error occurs. A closed window is not an
// error.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		panic("engine must be initialized before Run")
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	maxFrames := e.context.Config.Application.MaxFrames
	var frames uint64

	for e.isRunning.Load() {
		if !e.context.Window.PumpEvents() {
			core.LogInfo("window closed, stopping.")
			break
		}
		if maxFrames > 0 && frames >= maxFrames {
			core.LogInfo("rendered %d frames, stopping.", frames)
			break
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		rendered, err := e.frame(delta)
		if errors.Is(err, core.ErrWindowClosed) {
			core.LogInfo("window closed while waiting for a surface, stopping.")
			break
		}
		if err != nil {
			e.isRunning.Store(false)
			return err
		}
		if rendered {
			frames++
			e.clock.Update()
			e.context.Metrics.Update(e.clock.Elapsed() - currentTime)
		}

		e.lastTime = currentTime
	}

	e.isRunning.Store(false)
	return nil
}

// frame runs one update/render pass. It reports whether a frame was ended.
func (e *Engine) frame(delta float64) (bool, error) {
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(e.context, delta); err != nil {
			return false, fmt.Errorf("game update failed: %w", err)
		}
	}

	orchestrator := e.context.Frame
	started, err := orchestrator.BeginFrame()
	if err != nil {
		return false, err
	}
	if !started {
		// The surface was rebuilt instead; try again next iteration.
		return false, e.notifyResize()
	}

	if err := e.notifyResize(); err != nil {
		return false, err
	}

	orchestrator.PreRenderPass()
	renderErr := e.gameInstance.FnRender(e.context, orchestrator.CommandBuffer(), delta)
	orchestrator.PostRenderPass()
	if renderErr != nil {
		// The frame is still ended so the slot and the fence stay consistent.
		if _, err := orchestrator.EndFrame(); err != nil {
			return false, errors.Join(fmt.Errorf("game render failed: %w", renderErr), err)
		}
		return true, fmt.Errorf("game render failed: %w", renderErr)
	}

	recreated, err := orchestrator.EndFrame()
	if err != nil {
		return true, err
	}
	if recreated {
		return true, e.notifyResize()
	}
	return true, nil
}

// notifyResize tells the game about a new swapchain extent.
func (e *Engine) notifyResize() error {
	sc := e.context.Frame.Swapchain()
	if sc == nil {
		return nil
	}
	extent := sc.Extent()
	if extent == e.lastExtent {
		return nil
	}
	core.LogDebug("swapchain extent %s -> %s", e.lastExtent, extent)
	e.lastExtent = extent
	if e.gameInstance.FnOnResize != nil {
		return e.gameInstance.FnOnResize(e.context, extent)
	}
	return nil
}

// Stop asks Run to return after the current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Shutdown releases everything the engine owns in dependency order:
// producers first, then the game, then GPU work and cached resources.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown || e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	// No more contributions once the workers are gone.
	if err := e.context.Jobs.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	// The game may destroy GPU objects, nothing may still be executing.
	if err := e.context.Device.WaitIdle(); err != nil {
		errs = append(errs, err)
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(e.context); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.context.Frame.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if n := e.context.Commands.Len(); n > 0 {
		core.LogWarn("discarding %d command buffers that were never submitted", n)
		batch := e.context.Commands.PrepareSubmit()
		e.context.Commands.Retire(batch)
		batch.Release()
	}
	if err := e.systemManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}

	m := e.context.Metrics
	core.LogInfo("engine stopped after %d frames (%d reset, %d swapchain recreations)", m.TotalFrames(), m.ResetFrames(), m.Recreations())

	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}
