// Package frame drives the per-frame lifecycle of the swapchain: acquire,
// record, submit, present, and rebuild when the surface goes stale.
package frame

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/command"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateSubmitted
	StateRecreating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StateRecreating:
		return "recreating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

/**
 * @brief Owns the swapchain and the frame state. Every method must be called
 * from the same goroutine; producers talk to the command aggregator instead.
 */
type Orchestrator struct {
	config     Config
	device     metadata.Device
	window     metadata.Window
	aggregator *command.Aggregator
	labeler    metadata.Labeler
	metrics    *core.Metrics

	swapchain metadata.Swapchain
	viewport  metadata.Viewport
	scissor   metadata.Rect

	state           State
	frameSlot       uint32
	imageIndex      uint32
	isFrameStarted  bool
	needsRecreation bool
	inRenderPass    bool
	frameNumber     uint64
	recreations     uint64

	// batches submitted from each slot, released once the slot's fence signals
	inFlight []command.Batch

	sleep func(time.Duration)
	now   func() time.Time
}

func NewOrchestrator(config Config, device metadata.Device, window metadata.Window, aggregator *command.Aggregator, labeler metadata.Labeler, metrics *core.Metrics) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if device == nil || window == nil || aggregator == nil {
		return nil, fmt.Errorf("%w: frame orchestrator needs a device, a window and an aggregator", core.ErrInvalidConfig)
	}
	if labeler == nil {
		labeler = metadata.NopLabeler{}
	}
	return &Orchestrator{
		config:          config,
		device:          device,
		window:          window,
		aggregator:      aggregator,
		labeler:         labeler,
		metrics:         metrics,
		needsRecreation: true,
		inFlight:        make([]command.Batch, config.FramesInFlight),
		sleep:           time.Sleep,
		now:             time.Now,
	}, nil
}

/**
 * @brief Rebuilds the swapchain. Blocks while the window reports a zero
 * extent (minimized), then waits for the device to go idle. A format change
 * between generations is fatal.
 */
func (o *Orchestrator) RecreateSwapSurface() error {
	if o.isFrameStarted {
		panic("frame orchestrator: RecreateSwapSurface called while a frame is recording")
	}
	previousState := o.state
	o.state = StateRecreating
	defer func() {
		if o.state == StateRecreating {
			o.state = previousState
		}
	}()

	extent, err := o.waitForExtent()
	if err != nil {
		return err
	}

	if err := o.device.WaitIdle(); err != nil {
		return fmt.Errorf("failed to wait for device idle before recreation: %w", err)
	}
	o.releaseAll()

	previous := o.swapchain
	next, err := o.device.CreateSwapchain(extent, previous)
	if err != nil {
		return fmt.Errorf("failed to create swapchain %s: %w", extent, err)
	}
	if previous != nil {
		if next.Format() != previous.Format() {
			next.Destroy()
			return fmt.Errorf("%w: %d -> %d", core.ErrSurfaceFormatChanged, previous.Format(), next.Format())
		}
		previous.Destroy()
		o.recreations++
		if o.metrics != nil {
			o.metrics.SetRecreations(o.recreations)
		}
	}
	o.swapchain = next
	o.labeler.SetObjectName(next, fmt.Sprintf("swapchain %s", next.Extent()))

	o.viewport, o.scissor = metadata.ViewportFor(next.Extent())
	o.needsRecreation = false
	o.window.ResetResizedFlag()
	o.state = StateIdle

	core.LogInfo("swapchain ready: %s, %d images", next.Extent(), next.ImageCount())
	return nil
}

func (o *Orchestrator) waitForExtent() (metadata.Extent, error) {
	start := o.now()
	// a threshold of 0 reports the stall on the first degenerate poll
	stallAt := max(o.config.StallThreshold, 1)
	polls := 0
	for {
		extent := o.window.CurrentExtent()
		if !extent.IsZero() {
			return extent, nil
		}
		polls++
		if polls == stallAt {
			core.LogWarn("window still reports a zero extent after %d polls, waiting", polls)
		}
		if waited := o.now().Sub(start); o.config.RecreateTimeout > 0 && waited >= o.config.RecreateTimeout {
			return metadata.Extent{}, fmt.Errorf("%w after %s", core.ErrRecreateTimeout, waited)
		}
		if !o.window.PumpEvents() {
			return metadata.Extent{}, core.ErrWindowClosed
		}
		o.sleep(o.config.PollInterval)
	}
}

/**
 * @brief Starts recording a frame on the current slot.
 * @return false when the swapchain went out of date and was rebuilt; the
 * caller should skip this frame.
 */
func (o *Orchestrator) BeginFrame() (bool, error) {
	if o.isFrameStarted {
		panic("frame orchestrator: BeginFrame called while a frame is already recording")
	}

	if o.swapchain == nil || o.needsRecreation {
		if err := o.RecreateSwapSurface(); err != nil {
			return false, err
		}
	}

	// Wait for the GPU to finish with the work last submitted from this slot.
	if err := o.device.WaitFence(o.frameSlot); err != nil {
		return false, fmt.Errorf("in-flight fence wait for slot %d failed: %w", o.frameSlot, err)
	}
	o.releaseSlot(o.frameSlot)

	imageIndex, res := o.swapchain.AcquireNextImage(o.frameSlot)
	switch res {
	case metadata.ResultSuccess, metadata.ResultSuboptimal:
	case metadata.ResultOutOfDate:
		core.LogDebug("swapchain out of date on acquire, recreating")
		if err := o.RecreateSwapSurface(); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, resultError(core.ErrAcquireFailed, res)
	}
	o.imageIndex = imageIndex

	cb := o.device.CommandBuffer(o.frameSlot)
	if err := cb.Reset(); err != nil {
		return false, fmt.Errorf("failed to reset command buffer of slot %d: %w", o.frameSlot, err)
	}
	if err := cb.Begin(); err != nil {
		return false, fmt.Errorf("failed to begin command buffer of slot %d: %w", o.frameSlot, err)
	}
	cb.SetViewport(o.viewport)
	cb.SetScissor(o.scissor)

	o.isFrameStarted = true
	o.state = StateRecording
	o.labeler.BeginLabel(cb, fmt.Sprintf("frame %d", o.frameNumber))
	return true, nil
}

/**
 * @brief Submits the frame together with the aggregated command buffers and
 * presents it. The slot advances whatever the outcome.
 * @return true when the swapchain was rebuilt after presenting.
 */
func (o *Orchestrator) EndFrame() (bool, error) {
	reset, _, err := o.endFrame()
	return reset, err
}

// EndFrameAndWaitForFence is EndFrame followed by a wait for the frame's GPU
// work. The frame's batch is released before returning.
func (o *Orchestrator) EndFrameAndWaitForFence() (bool, error) {
	reset, slot, err := o.endFrame()
	if err != nil {
		return reset, err
	}
	if err := o.device.WaitFence(slot); err != nil {
		return reset, fmt.Errorf("in-flight fence wait for slot %d failed: %w", slot, err)
	}
	o.releaseSlot(slot)
	return reset, nil
}

func (o *Orchestrator) endFrame() (bool, uint32, error) {
	if !o.isFrameStarted {
		panic("frame orchestrator: EndFrame called without a started frame")
	}
	if o.inRenderPass {
		panic("frame orchestrator: EndFrame called inside a render pass; call PostRenderPass first")
	}

	slot := o.frameSlot
	defer func() {
		o.frameSlot = (o.frameSlot + 1) % o.config.FramesInFlight
		o.frameNumber++
		o.isFrameStarted = false
		if o.state != StateRecreating {
			o.state = StateIdle
		}
	}()

	cb := o.device.CommandBuffer(slot)
	o.labeler.EndLabel(cb)
	if err := cb.End(); err != nil {
		return false, slot, fmt.Errorf("failed to end command buffer of slot %d: %w", slot, err)
	}

	batch := o.aggregator.PrepareSubmit()
	buffers := make([]metadata.CommandBuffer, 0, batch.Len()+1)
	buffers = append(buffers, batch.CommandBuffers()...)
	buffers = append(buffers, cb)

	if res := o.device.Submit(metadata.QueueGraphics, slot, buffers); res != metadata.ResultSuccess {
		return false, slot, resultError(core.ErrSubmitFailed, res)
	}
	o.state = StateSubmitted
	o.aggregator.Retire(batch)
	o.inFlight[slot] = batch

	res := o.device.Present(o.swapchain, o.imageIndex, slot)
	switch res {
	case metadata.ResultSuccess:
		if !o.window.WasResized() {
			return false, slot, nil
		}
	case metadata.ResultOutOfDate, metadata.ResultSuboptimal:
	default:
		return false, slot, resultError(core.ErrPresentFailed, res)
	}

	core.LogDebug("present reported %s (resized: %t), recreating swapchain", res, o.window.WasResized())
	if o.metrics != nil {
		o.metrics.FrameReset()
	}
	o.needsRecreation = true
	o.isFrameStarted = false
	if err := o.RecreateSwapSurface(); err != nil {
		return true, slot, err
	}
	return true, slot, nil
}

/**
 * @brief Moves the acquired image from the present queue to the graphics
 * queue and into color-attachment layout. Must be paired with
 * PostRenderPass.
 */
func (o *Orchestrator) PreRenderPass() {
	if !o.isFrameStarted {
		panic("frame orchestrator: PreRenderPass called without a started frame")
	}
	if o.inRenderPass {
		panic("frame orchestrator: PreRenderPass called twice without PostRenderPass")
	}
	cb := o.device.CommandBuffer(o.frameSlot)
	cb.PipelineBarrier(metadata.OwnershipTransfer(
		o.swapchain.Image(o.imageIndex),
		metadata.ImageLayoutUndefined,
		metadata.ImageLayoutColorAttachmentOptimal,
		o.device.QueueFamily(metadata.QueuePresent),
		o.device.QueueFamily(metadata.QueueGraphics),
	))
	o.labeler.BeginLabel(cb, "render pass")
	o.inRenderPass = true
}

// PostRenderPass hands the image back to the present queue in present layout.
func (o *Orchestrator) PostRenderPass() {
	if !o.isFrameStarted || !o.inRenderPass {
		panic("frame orchestrator: PostRenderPass called without a matching PreRenderPass")
	}
	cb := o.device.CommandBuffer(o.frameSlot)
	o.labeler.EndLabel(cb)
	cb.PipelineBarrier(metadata.OwnershipTransfer(
		o.swapchain.Image(o.imageIndex),
		metadata.ImageLayoutColorAttachmentOptimal,
		metadata.ImageLayoutPresentSrc,
		o.device.QueueFamily(metadata.QueueGraphics),
		o.device.QueueFamily(metadata.QueuePresent),
	))
	o.inRenderPass = false
}

// Shutdown waits for the GPU, releases every in-flight batch and destroys
// the swapchain.
func (o *Orchestrator) Shutdown() error {
	if o.isFrameStarted {
		core.LogWarn("frame orchestrator shut down while frame %d was recording", o.frameNumber)
		o.isFrameStarted = false
		o.inRenderPass = false
	}
	if err := o.device.WaitIdle(); err != nil {
		return fmt.Errorf("failed to wait for device idle on shutdown: %w", err)
	}
	o.releaseAll()
	if o.swapchain != nil {
		o.swapchain.Destroy()
		o.swapchain = nil
	}
	o.state = StateIdle
	return nil
}

func (o *Orchestrator) releaseSlot(slot uint32) {
	if b := o.inFlight[slot]; !b.IsEmpty() {
		b.Release()
		o.inFlight[slot] = command.Batch{}
	}
}

func (o *Orchestrator) releaseAll() {
	for slot := range o.inFlight {
		o.releaseSlot(uint32(slot))
	}
}

func resultError(sentinel error, res metadata.Result) error {
	if res == metadata.ResultDeviceLost {
		return fmt.Errorf("%w: %w", sentinel, core.ErrDeviceLost)
	}
	return fmt.Errorf("%w: %s", sentinel, res)
}

func (o *Orchestrator) FrameSlot() uint32 {
	return o.frameSlot
}

// ImageIndex is valid between BeginFrame and EndFrame.
func (o *Orchestrator) ImageIndex() uint32 {
	return o.imageIndex
}

func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) IsFrameStarted() bool {
	return o.isFrameStarted
}

func (o *Orchestrator) Viewport() metadata.Viewport {
	return o.viewport
}

func (o *Orchestrator) Scissor() metadata.Rect {
	return o.scissor
}

// CommandBuffer returns the recording buffer of the current slot.
func (o *Orchestrator) CommandBuffer() metadata.CommandBuffer {
	return o.device.CommandBuffer(o.frameSlot)
}

func (o *Orchestrator) Swapchain() metadata.Swapchain {
	return o.swapchain
}

func (o *Orchestrator) FramesInFlight() uint32 {
	return o.config.FramesInFlight
}

// Recreations counts rebuilds after the first swapchain was created.
func (o *Orchestrator) Recreations() uint64 {
	return o.recreations
}
