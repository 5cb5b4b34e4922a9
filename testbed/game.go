package testbed

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/spaghettifunk/anima-frame/engine"
	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/command"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	// Two maps with the same sampling parameters share a sampler.
	diffuseSampler  metadata.Sampler
	specularSampler metadata.Sampler
	skyboxSampler   metadata.Sampler

	mutex    sync.Mutex
	buffers  []metadata.Buffer
	uploaded int
	failed   int

	// viewport constants, re-uploaded from Update after a resize
	viewport        metadata.Buffer
	viewportDirty   bool
	viewportPending bool

	frames uint64
}

// quad is a textured quad: position xyz and uv per vertex.
var quad = []float32{
	-0.5, -0.5, 0.0, 0.0, 0.0,
	0.5, -0.5, 0.0, 1.0, 0.0,
	0.5, 0.5, 0.0, 1.0, 1.0,
	-0.5, 0.5, 0.0, 0.0, 1.0,
}

var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

func NewTestGame() (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			Name:  "testbed",
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize(ctx *engine.Context) error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.State.(*gameState)

	linear := metadata.TextureMapConfig{
		FilterMinify:  metadata.TextureFilterModeLinear,
		FilterMagnify: metadata.TextureFilterModeLinear,
		RepeatU:       metadata.TextureRepeatRepeat,
		RepeatV:       metadata.TextureRepeatRepeat,
		RepeatW:       metadata.TextureRepeatRepeat,
		MipLevels:     4,
	}
	var err error
	if state.diffuseSampler, err = ctx.Samplers.Acquire(linear); err != nil {
		return err
	}
	if state.specularSampler, err = ctx.Samplers.Acquire(linear); err != nil {
		return err
	}
	state.skyboxSampler, err = ctx.Samplers.Acquire(metadata.TextureMapConfig{
		FilterMinify:  metadata.TextureFilterModeLinear,
		FilterMagnify: metadata.TextureFilterModeLinear,
		RepeatU:       metadata.TextureRepeatClampToEdge,
		RepeatV:       metadata.TextureRepeatClampToEdge,
		RepeatW:       metadata.TextureRepeatClampToEdge,
	})
	if err != nil {
		return err
	}
	core.LogInfo("%d samplers in use (diffuse refs: %d)", ctx.Samplers.Count(), ctx.Samplers.RefCount(state.diffuseSampler))

	vertices := make([]byte, 0, len(quad)*4)
	for _, v := range quad {
		vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(v))
	}
	indices := make([]byte, 0, len(quadIndices)*4)
	for _, i := range quadIndices {
		indices = binary.LittleEndian.AppendUint32(indices, i)
	}

	if err := ctx.Jobs.Submit(g.geometryJob(ctx, "quad vertices", vertices, false)); err != nil {
		return err
	}
	return ctx.Jobs.Submit(g.geometryJob(ctx, "quad indices", indices, true))
}

func (g *TestGame) geometryJob(ctx *engine.Context, name string, data []byte, scoped bool) metadata.JobTask {
	state := g.State.(*gameState)
	job := g.uploadJob(ctx, name, data, scoped, nil)
	job.OnComplete = func(result interface{}) {
		state.mutex.Lock()
		defer state.mutex.Unlock()
		state.buffers = append(state.buffers, result.(metadata.Buffer))
		state.uploaded++
	}
	return job
}

// uploadJob copies data into a new device buffer on a worker. The copy joins
// the next frame's submission. The staging buffer, and retired when not nil,
// live until that submission's fence.
func (g *TestGame) uploadJob(ctx *engine.Context, name string, data []byte, scoped bool, retired metadata.Buffer) metadata.JobTask {
	state := g.State.(*gameState)
	return metadata.JobTask{
		Name:        name,
		InputParams: data,
		OnStart: func(params interface{}) (interface{}, error) {
			data := params.([]byte)
			var (
				cb        metadata.CommandBuffer
				src, dst  metadata.Buffer
				handedOff bool
			)
			defer func() {
				if handedOff {
					return
				}
				if dst != nil {
					dst.Destroy()
				}
				if src != nil {
					src.Destroy()
				}
				if f, ok := cb.(metadata.Freeable); ok {
					f.Free()
				}
			}()

			var err error
			if cb, err = ctx.Device.AllocateCommandBuffer(); err != nil {
				return nil, err
			}
			if src, err = ctx.Device.CreateStagingBuffer(data); err != nil {
				return nil, err
			}
			if dst, err = ctx.Device.CreateDeviceBuffer(uint64(len(data))); err != nil {
				return nil, err
			}
			if err := cb.Begin(); err != nil {
				return nil, err
			}
			cb.CopyBuffer(src, dst)
			if err := cb.End(); err != nil {
				return nil, err
			}

			staging := []metadata.Buffer{src}
			if retired != nil {
				staging = append(staging, retired)
			}
			if scoped {
				ctx.Commands.Record(cb, func(c *command.Contribution) {
					for _, b := range staging {
						c.AddDependentResource(b)
					}
				})
			} else {
				ctx.Commands.Add(cb, command.Dependencies{StagingBuffers: staging})
			}
			handedOff = true
			return dst, nil
		},
		OnFailure: func(err error) {
			core.LogError("upload %q failed: %s", name, err)
			state.mutex.Lock()
			defer state.mutex.Unlock()
			state.failed++
		},
	}
}

// viewportConstants packs the extent as two little endian float32.
func viewportConstants(width, height uint32) []byte {
	data := make([]byte, 0, 8)
	data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(width)))
	return binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(height)))
}

func (g *TestGame) Update(ctx *engine.Context, deltaTime float64) error {
	state := g.State.(*gameState)
	state.frames++

	if state.frames%600 == 0 {
		fps, frameMS := ctx.Metrics.Frame()
		core.LogDebug("frame %d: %.1f fps, %.3f ms", state.frames, fps, frameMS)
	}

	state.mutex.Lock()
	defer state.mutex.Unlock()
	if !state.viewportDirty || state.viewportPending {
		return nil
	}
	state.viewportDirty = false
	state.viewportPending = true

	// one upload at a time, so the buffer it retires is stable
	job := g.uploadJob(ctx, "viewport constants", viewportConstants(state.width, state.height), true, state.viewport)
	failed := job.OnFailure
	job.OnComplete = func(result interface{}) {
		state.mutex.Lock()
		defer state.mutex.Unlock()
		state.viewport = result.(metadata.Buffer)
		state.viewportPending = false
		state.uploaded++
	}
	job.OnFailure = func(err error) {
		failed(err)
		state.mutex.Lock()
		defer state.mutex.Unlock()
		state.viewportPending = false
	}
	// never block the frame thread on a full job queue
	ctx.Jobs.AddWorkNonBlocking(job)
	return nil
}

func (g *TestGame) Render(ctx *engine.Context, cb metadata.CommandBuffer, deltaTime float64) error {
	state := g.State.(*gameState)
	state.mutex.Lock()
	defer state.mutex.Unlock()
	if len(state.buffers) < 2 {
		// Geometry is still streaming in.
		return nil
	}
	cb.SetViewport(ctx.Frame.Viewport())
	cb.SetScissor(ctx.Frame.Scissor())
	return nil
}

func (g *TestGame) OnResize(ctx *engine.Context, extent metadata.Extent) error {
	state := g.State.(*gameState)
	state.width = extent.Width
	state.height = extent.Height
	state.mutex.Lock()
	state.viewportDirty = true
	state.mutex.Unlock()
	core.LogInfo("testbed resized to %dx%d", state.width, state.height)
	return nil
}

func (g *TestGame) Shutdown(ctx *engine.Context) error {
	state := g.State.(*gameState)

	for _, s := range []metadata.Sampler{state.diffuseSampler, state.specularSampler, state.skyboxSampler} {
		if s != nil {
			ctx.Samplers.Release(s)
		}
	}

	state.mutex.Lock()
	defer state.mutex.Unlock()
	for _, b := range state.buffers {
		b.Destroy()
	}
	state.buffers = nil
	if state.viewport != nil {
		state.viewport.Destroy()
		state.viewport = nil
	}

	core.LogInfo("testbed uploaded %d buffers over %d frames", state.uploaded, state.frames)
	return nil
}
