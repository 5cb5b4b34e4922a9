// Package metadatatest provides in-memory implementations of the device,
// swapchain and window contracts for tests.
package metadatatest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

type commandBufferState int

const (
	stateReady commandBufferState = iota
	stateRecording
	stateEnded
)

// CommandBuffer records calls made on it.
type CommandBuffer struct {
	Name string

	mutex    sync.Mutex
	state    commandBufferState
	barriers []metadata.ImageBarrier
	copies   []Copy
	viewport metadata.Viewport
	scissor  metadata.Rect
	resets   int
	freed    bool
}

func NewCommandBuffer(name string) *CommandBuffer {
	return &CommandBuffer{Name: name}
}

// NewClosedCommandBuffer returns a buffer that already finished recording.
func NewClosedCommandBuffer(name string) *CommandBuffer {
	return &CommandBuffer{Name: name, state: stateEnded}
}

func (cb *CommandBuffer) Reset() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.state = stateReady
	cb.barriers = nil
	cb.copies = nil
	cb.resets++
	return nil
}

func (cb *CommandBuffer) Begin() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if cb.state == stateRecording {
		return fmt.Errorf("command buffer %s already recording", cb.Name)
	}
	cb.state = stateRecording
	return nil
}

func (cb *CommandBuffer) End() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if cb.state != stateRecording {
		return fmt.Errorf("command buffer %s is not recording", cb.Name)
	}
	cb.state = stateEnded
	return nil
}

func (cb *CommandBuffer) IsClosed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state == stateEnded
}

func (cb *CommandBuffer) IsRecording() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state == stateRecording
}

func (cb *CommandBuffer) PipelineBarrier(barriers ...metadata.ImageBarrier) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.barriers = append(cb.barriers, barriers...)
}

// Copy is one recorded CopyBuffer call.
type Copy struct {
	Src metadata.Buffer
	Dst metadata.Buffer
}

func (cb *CommandBuffer) CopyBuffer(src, dst metadata.Buffer) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.copies = append(cb.copies, Copy{Src: src, Dst: dst})
}

func (cb *CommandBuffer) Copies() []Copy {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return append([]Copy(nil), cb.copies...)
}

func (cb *CommandBuffer) SetViewport(viewport metadata.Viewport) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.viewport = viewport
}

func (cb *CommandBuffer) SetScissor(scissor metadata.Rect) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.scissor = scissor
}

func (cb *CommandBuffer) Free() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.freed = true
}

func (cb *CommandBuffer) Barriers() []metadata.ImageBarrier {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return append([]metadata.ImageBarrier(nil), cb.barriers...)
}

func (cb *CommandBuffer) Viewport() metadata.Viewport {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.viewport
}

func (cb *CommandBuffer) Scissor() metadata.Rect {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.scissor
}

func (cb *CommandBuffer) Freed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.freed
}

func (cb *CommandBuffer) String() string {
	return cb.Name
}

// Buffer is a staging buffer that remembers whether it was destroyed.
type Buffer struct {
	Name      string
	size      uint64
	destroyed atomic.Int32
}

func NewBuffer(name string, size uint64) *Buffer {
	return &Buffer{Name: name, size: size}
}

func (b *Buffer) Size() uint64 {
	return b.size
}

func (b *Buffer) Destroy() {
	b.destroyed.Add(1)
}

// Destroyed returns how many times Destroy was called.
func (b *Buffer) Destroyed() int {
	return int(b.destroyed.Load())
}

// Swapchain serves scripted acquire results; once the script runs out every
// acquire succeeds and rotates through the images.
type Swapchain struct {
	Generation int

	format     metadata.Format
	extent     metadata.Extent
	imageCount uint32
	next       uint32

	acquireResults []metadata.Result
	destroyed      bool
}

func NewSwapchain(generation int, format metadata.Format, extent metadata.Extent, imageCount uint32) *Swapchain {
	return &Swapchain{
		Generation: generation,
		format:     format,
		extent:     extent,
		imageCount: imageCount,
	}
}

// QueueAcquireResults scripts the results of the next acquires.
func (s *Swapchain) QueueAcquireResults(results ...metadata.Result) {
	s.acquireResults = append(s.acquireResults, results...)
}

func (s *Swapchain) AcquireNextImage(slot uint32) (uint32, metadata.Result) {
	if len(s.acquireResults) > 0 {
		res := s.acquireResults[0]
		s.acquireResults = s.acquireResults[1:]
		if res != metadata.ResultSuccess && res != metadata.ResultSuboptimal {
			return 0, res
		}
		idx := s.next
		s.next = (s.next + 1) % s.imageCount
		return idx, res
	}
	idx := s.next
	s.next = (s.next + 1) % s.imageCount
	return idx, metadata.ResultSuccess
}

func (s *Swapchain) Format() metadata.Format {
	return s.format
}

func (s *Swapchain) Extent() metadata.Extent {
	return s.extent
}

func (s *Swapchain) ImageCount() uint32 {
	return s.imageCount
}

func (s *Swapchain) Image(index uint32) metadata.Image {
	return fmt.Sprintf("swapchain-%d/image-%d", s.Generation, index)
}

func (s *Swapchain) Destroy() {
	s.destroyed = true
}

func (s *Swapchain) Destroyed() bool {
	return s.destroyed
}

// Submission is one recorded call to Device.Submit.
type Submission struct {
	Queue   metadata.QueueType
	Slot    uint32
	Buffers []metadata.CommandBuffer
}

// Device is a scripted device/queue provider.
type Device struct {
	GraphicsFamily uint32
	PresentFamily  uint32
	TransferFamily uint32
	ImageCount     uint32
	// Formats returned by successive CreateSwapchain calls. The last entry
	// repeats once the list is exhausted.
	Formats []metadata.Format

	mutex          sync.Mutex
	commandBuffers []*CommandBuffer
	allocated      []*CommandBuffer
	swapchains     []*Swapchain
	submissions    []Submission
	presents       []uint32
	submitResults  []metadata.Result
	presentResults []metadata.Result
	fenceWaits     []uint32
	waitIdles      int
	nextAcquire    []metadata.Result
	createErr      error
	buffers        []*Buffer
	stagingErr     error
	deviceErr      error
}

func NewDevice(framesInFlight int) *Device {
	d := &Device{
		ImageCount: 3,
		Formats:    []metadata.Format{44},
	}
	d.commandBuffers = make([]*CommandBuffer, framesInFlight)
	for i := range d.commandBuffers {
		d.commandBuffers[i] = NewCommandBuffer(fmt.Sprintf("frame-%d", i))
	}
	return d
}

func (d *Device) QueueFamily(queue metadata.QueueType) uint32 {
	switch queue {
	case metadata.QueuePresent:
		return d.PresentFamily
	case metadata.QueueTransfer:
		return d.TransferFamily
	default:
		return d.GraphicsFamily
	}
}

func (d *Device) CommandBuffer(slot uint32) metadata.CommandBuffer {
	return d.commandBuffers[slot]
}

// FrameCommandBuffer returns the concrete per-slot buffer.
func (d *Device) FrameCommandBuffer(slot uint32) *CommandBuffer {
	return d.commandBuffers[slot]
}

func (d *Device) AllocateCommandBuffer() (metadata.CommandBuffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	cb := NewCommandBuffer(fmt.Sprintf("allocated-%d", len(d.allocated)))
	d.allocated = append(d.allocated, cb)
	return cb, nil
}

func (d *Device) CreateStagingBuffer(data []byte) (metadata.Buffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.stagingErr != nil {
		return nil, d.stagingErr
	}
	b := NewBuffer("staging", uint64(len(data)))
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *Device) CreateDeviceBuffer(size uint64) (metadata.Buffer, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.deviceErr != nil {
		return nil, d.deviceErr
	}
	b := NewBuffer("device", size)
	d.buffers = append(d.buffers, b)
	return b, nil
}

// FailStagingBuffers makes every following CreateStagingBuffer return err.
func (d *Device) FailStagingBuffers(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stagingErr = err
}

// FailDeviceBuffers makes every following CreateDeviceBuffer return err.
func (d *Device) FailDeviceBuffers(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.deviceErr = err
}

// Buffers returns every staging and device buffer created so far.
func (d *Device) Buffers() []*Buffer {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]*Buffer(nil), d.buffers...)
}

// Allocated returns the command buffers handed out by AllocateCommandBuffer.
func (d *Device) Allocated() []*CommandBuffer {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]*CommandBuffer(nil), d.allocated...)
}

// QueueSubmitResults scripts the results of the next submissions.
func (d *Device) QueueSubmitResults(results ...metadata.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.submitResults = append(d.submitResults, results...)
}

// QueuePresentResults scripts the results of the next presents.
func (d *Device) QueuePresentResults(results ...metadata.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.presentResults = append(d.presentResults, results...)
}

// QueueAcquireResults scripts acquire results on the next swapchain created.
func (d *Device) QueueAcquireResults(results ...metadata.Result) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.nextAcquire = append(d.nextAcquire, results...)
}

// FailCreateSwapchain makes every following CreateSwapchain return err.
func (d *Device) FailCreateSwapchain(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.createErr = err
}

func (d *Device) Submit(queue metadata.QueueType, slot uint32, buffers []metadata.CommandBuffer) metadata.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.submissions = append(d.submissions, Submission{
		Queue:   queue,
		Slot:    slot,
		Buffers: append([]metadata.CommandBuffer(nil), buffers...),
	})
	if len(d.submitResults) > 0 {
		res := d.submitResults[0]
		d.submitResults = d.submitResults[1:]
		return res
	}
	return metadata.ResultSuccess
}

func (d *Device) Present(swapchain metadata.Swapchain, imageIndex uint32, slot uint32) metadata.Result {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.presents = append(d.presents, imageIndex)
	if len(d.presentResults) > 0 {
		res := d.presentResults[0]
		d.presentResults = d.presentResults[1:]
		return res
	}
	return metadata.ResultSuccess
}

func (d *Device) WaitFence(slot uint32) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fenceWaits = append(d.fenceWaits, slot)
	return nil
}

func (d *Device) WaitIdle() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.waitIdles++
	return nil
}

func (d *Device) CreateSwapchain(extent metadata.Extent, previous metadata.Swapchain) (metadata.Swapchain, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.createErr != nil {
		return nil, d.createErr
	}
	gen := len(d.swapchains)
	format := d.Formats[len(d.Formats)-1]
	if gen < len(d.Formats) {
		format = d.Formats[gen]
	}
	sc := NewSwapchain(gen, format, extent, d.ImageCount)
	sc.QueueAcquireResults(d.nextAcquire...)
	d.nextAcquire = nil
	d.swapchains = append(d.swapchains, sc)
	return sc, nil
}

func (d *Device) Swapchains() []*Swapchain {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]*Swapchain(nil), d.swapchains...)
}

func (d *Device) Submissions() []Submission {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Submission(nil), d.submissions...)
}

func (d *Device) Presents() []uint32 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]uint32(nil), d.presents...)
}

func (d *Device) FenceWaits() []uint32 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]uint32(nil), d.fenceWaits...)
}

func (d *Device) WaitIdles() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.waitIdles
}

// Window reports a scripted sequence of extents, one per CurrentExtent call,
// then keeps returning the last one.
type Window struct {
	mutex   sync.Mutex
	extents []metadata.Extent
	polls   int
	pumps   int
	resized bool
	closed  bool
}

func NewWindow(extents ...metadata.Extent) *Window {
	if len(extents) == 0 {
		extents = []metadata.Extent{{Width: 1280, Height: 720}}
	}
	return &Window{extents: extents}
}

func (w *Window) CurrentExtent() metadata.Extent {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.polls++
	e := w.extents[0]
	if len(w.extents) > 1 {
		w.extents = w.extents[1:]
	}
	return e
}

// Resize scripts the following extents and raises the resized flag.
func (w *Window) Resize(extents ...metadata.Extent) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.extents = extents
	w.resized = true
}

func (w *Window) WasResized() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.resized
}

func (w *Window) ResetResizedFlag() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.resized = false
}

func (w *Window) PumpEvents() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.pumps++
	return !w.closed
}

// Close makes the next PumpEvents report that the window should close.
func (w *Window) Close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.closed = true
}

func (w *Window) Polls() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.polls
}

func (w *Window) Pumps() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.pumps
}
