package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-frame/engine/config"
	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/cache"
	"github.com/spaghettifunk/anima-frame/engine/renderer/command"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata/metadatatest"
)

type fakeSampler struct {
	desc metadata.SamplerDescriptor
}

type harness struct {
	device    *metadatatest.Device
	window    *metadatatest.Window
	destroyed []*fakeSampler
	renders   int
	resizes   []metadata.Extent
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Renderer.PollInterval = config.Duration(time.Millisecond)
	cfg.Renderer.Validation = true
	cfg.Cache.Checked = true
	cfg.Cache.MaxSamplers = 8
	cfg.Jobs.Workers = 2
	cfg.Jobs.QueueSize = 4
	return cfg
}

// newEngine builds an engine over in-memory collaborators. g may leave
// FnRender and FnOnResize unset, the harness fills them in.
func newEngine(t *testing.T, cfg *config.Config, g *Game, window *metadatatest.Window) (*Engine, *harness) {
	t.Helper()
	h := &harness{
		device: metadatatest.NewDevice(int(cfg.Renderer.FramesInFlight)),
		window: window,
	}
	factory := cache.FactoryFuncs[metadata.SamplerDescriptor, metadata.Sampler]{
		CreateFn: func(desc metadata.SamplerDescriptor) (metadata.Sampler, error) {
			return &fakeSampler{desc: desc}, nil
		},
		DestroyFn: func(s metadata.Sampler) {
			h.destroyed = append(h.destroyed, s.(*fakeSampler))
		},
	}
	if g.FnRender == nil {
		g.FnRender = func(ctx *Context, cb metadata.CommandBuffer, delta float64) error {
			h.renders++
			return nil
		}
	}
	if g.FnOnResize == nil {
		g.FnOnResize = func(ctx *Context, extent metadata.Extent) error {
			h.resizes = append(h.resizes, extent)
			return nil
		}
	}

	e, err := New(cfg, g, h.device, window, factory, metadata.NopLabeler{})
	require.NoError(t, err)
	return e, h
}

func TestNewValidates(t *testing.T) {
	device := metadatatest.NewDevice(2)
	window := metadatatest.NewWindow()

	_, err := New(config.Default(), &Game{Name: "no render"}, device, window, nil, metadata.NopLabeler{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	cfg := config.Default()
	cfg.Jobs.Workers = 0
	g := &Game{FnRender: func(*Context, metadata.CommandBuffer, float64) error { return nil }}
	_, err = New(cfg, g, device, window, nil, metadata.NopLabeler{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	cfg := testConfig()
	cfg.Application.MaxFrames = 5
	e, h := newEngine(t, cfg, &Game{Name: "frames"}, metadatatest.NewWindow())

	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	assert.Equal(t, []metadata.Extent{{Width: 1280, Height: 720}}, h.resizes)

	require.NoError(t, e.Run())
	assert.Equal(t, 5, h.renders)
	assert.Len(t, h.device.Submissions(), 5)
	assert.Len(t, h.device.Presents(), 5)
	assert.Equal(t, uint64(5), e.Context().Metrics.TotalFrames())

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
	swapchains := h.device.Swapchains()
	require.Len(t, swapchains, 1)
	assert.True(t, swapchains[0].Destroyed())
}

func TestRunStopsWhenWindowCloses(t *testing.T) {
	window := metadatatest.NewWindow()
	e, h := newEngine(t, testConfig(), &Game{Name: "close"}, window)
	require.NoError(t, e.Initialize())

	window.Close()
	require.NoError(t, e.Run())
	assert.Zero(t, h.renders)
	require.NoError(t, e.Shutdown())
}

func TestInitializeReportsClosedWindow(t *testing.T) {
	window := metadatatest.NewWindow(metadata.Extent{})
	window.Close()
	e, _ := newEngine(t, testConfig(), &Game{Name: "minimized"}, window)

	err := e.Initialize()
	assert.ErrorIs(t, err, core.ErrWindowClosed)
	require.NoError(t, e.Shutdown())
}

func TestInitializeTwicePanics(t *testing.T) {
	e, _ := newEngine(t, testConfig(), &Game{Name: "twice"}, metadatatest.NewWindow())
	require.NoError(t, e.Initialize())
	assert.Panics(t, func() { e.Initialize() })
	require.NoError(t, e.Shutdown())
}

func TestStopFromUpdate(t *testing.T) {
	var e *Engine
	updates := 0
	g := &Game{
		Name: "stop",
		FnUpdate: func(ctx *Context, delta float64) error {
			updates++
			if updates == 3 {
				e.Stop()
			}
			return nil
		},
	}
	e, h := newEngine(t, testConfig(), g, metadatatest.NewWindow())
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())

	// The frame that asked to stop still completes.
	assert.Equal(t, 3, h.renders)
	require.NoError(t, e.Shutdown())
}

func TestResizeNotifiesGame(t *testing.T) {
	cfg := testConfig()
	cfg.Application.MaxFrames = 4

	var window *metadatatest.Window
	updates := 0
	g := &Game{
		Name: "resize",
		FnUpdate: func(ctx *Context, delta float64) error {
			updates++
			if updates == 2 {
				window.Resize(metadata.Extent{Width: 800, Height: 600})
			}
			return nil
		},
	}
	window = metadatatest.NewWindow()
	e, h := newEngine(t, cfg, g, window)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())

	assert.Equal(t, []metadata.Extent{
		{Width: 1280, Height: 720},
		{Width: 800, Height: 600},
	}, h.resizes)
	assert.Equal(t, uint64(1), e.Context().Metrics.Recreations())
	assert.Len(t, h.device.Swapchains(), 2)
	require.NoError(t, e.Shutdown())
}

func TestProducerBuffersAreSubmittedFirst(t *testing.T) {
	cfg := testConfig()
	cfg.Application.MaxFrames = 1

	var staging metadata.Buffer
	g := &Game{
		Name: "upload",
		FnInitialize: func(ctx *Context) error {
			return ctx.Jobs.Submit(metadata.JobTask{
				Name: "upload",
				OnStart: func(interface{}) (interface{}, error) {
					data := []byte{1, 2, 3, 4}
					cb, err := ctx.Device.AllocateCommandBuffer()
					if err != nil {
						return nil, err
					}
					src, err := ctx.Device.CreateStagingBuffer(data)
					if err != nil {
						return nil, err
					}
					dst, err := ctx.Device.CreateDeviceBuffer(uint64(len(data)))
					if err != nil {
						return nil, err
					}
					if err := cb.Begin(); err != nil {
						return nil, err
					}
					cb.CopyBuffer(src, dst)
					if err := cb.End(); err != nil {
						return nil, err
					}
					staging = src
					ctx.Commands.Add(cb, command.Dependencies{StagingBuffers: []metadata.Buffer{src}})
					return dst, nil
				},
			})
		},
		FnUpdate: func(ctx *Context, delta float64) error {
			ctx.Jobs.Wait()
			return nil
		},
	}
	e, h := newEngine(t, cfg, g, metadatatest.NewWindow())
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())

	allocated := h.device.Allocated()
	require.Len(t, allocated, 1)
	submissions := h.device.Submissions()
	require.Len(t, submissions, 1)
	require.Len(t, submissions[0].Buffers, 2)
	assert.Same(t, allocated[0], submissions[0].Buffers[0])
	assert.Same(t, h.device.FrameCommandBuffer(0), submissions[0].Buffers[1])
	assert.True(t, e.Context().Commands.Empty())

	require.NoError(t, e.Shutdown())
	assert.Equal(t, 1, staging.(*metadatatest.Buffer).Destroyed())
	assert.True(t, allocated[0].Freed())
}

func TestSubmitFailureStopsRun(t *testing.T) {
	e, h := newEngine(t, testConfig(), &Game{Name: "submit"}, metadatatest.NewWindow())
	require.NoError(t, e.Initialize())

	h.device.QueueSubmitResults(metadata.ResultSuccess, metadata.ResultFailed)
	err := e.Run()
	assert.ErrorIs(t, err, core.ErrSubmitFailed)
	assert.Equal(t, 2, h.renders)
	require.NoError(t, e.Shutdown())
}

func TestRenderErrorStillEndsFrame(t *testing.T) {
	want := errors.New("no scene")
	g := &Game{
		Name: "render",
		FnRender: func(ctx *Context, cb metadata.CommandBuffer, delta float64) error {
			return want
		},
	}
	e, h := newEngine(t, testConfig(), g, metadatatest.NewWindow())
	require.NoError(t, e.Initialize())

	err := e.Run()
	assert.ErrorIs(t, err, want)
	assert.Len(t, h.device.Submissions(), 1)
	assert.False(t, e.Context().Frame.IsFrameStarted())
	require.NoError(t, e.Shutdown())
}

func TestShutdownReleasesEverything(t *testing.T) {
	var sampler metadata.Sampler
	g := &Game{
		Name: "samplers",
		FnInitialize: func(ctx *Context) error {
			var err error
			sampler, err = ctx.Samplers.Acquire(metadata.TextureMapConfig{
				FilterMinify:  metadata.TextureFilterModeLinear,
				FilterMagnify: metadata.TextureFilterModeLinear,
			})
			return err
		},
		FnShutdown: func(ctx *Context) error {
			ctx.Samplers.Release(sampler)
			return nil
		},
	}
	e, h := newEngine(t, testConfig(), g, metadatatest.NewWindow())
	require.NoError(t, e.Initialize())
	assert.Equal(t, 1, e.Context().Samplers.Count())

	// A contribution that never reaches a frame is still released.
	leftover := metadatatest.NewBuffer("leftover", 16)
	cb := metadatatest.NewClosedCommandBuffer("late")
	e.Context().Commands.Add(cb, command.Dependencies{StagingBuffers: []metadata.Buffer{leftover}})

	require.NoError(t, e.Shutdown())
	assert.Len(t, h.destroyed, 1)
	assert.Equal(t, 1, leftover.Destroyed())
	assert.True(t, cb.Freed())
	assert.True(t, e.Context().Commands.Empty())

	// Idempotent.
	require.NoError(t, e.Shutdown())
	assert.Len(t, h.destroyed, 1)
	assert.Equal(t, 1, leftover.Destroyed())
}
