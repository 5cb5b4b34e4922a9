package metadata

import "fmt"

// QueueType selects one of the logical queues exposed by a Device.
type QueueType int

const (
	QueueGraphics QueueType = iota
	QueuePresent
	QueueTransfer
)

func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueuePresent:
		return "present"
	case QueueTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("queue(%d)", int(q))
	}
}

// QueueFamilyIgnored marks a barrier that does not transfer queue-family ownership.
const QueueFamilyIgnored uint32 = ^uint32(0)

// Result is the outcome of a device operation, reduced to the cases the
// frame pipeline distinguishes.
type Result int

const (
	ResultSuccess Result = iota
	// The swapchain still works but no longer matches the surface exactly.
	ResultSuboptimal
	// The swapchain must be rebuilt before it can be used again.
	ResultOutOfDate
	ResultTimeout
	ResultDeviceLost
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultSuboptimal:
		return "suboptimal"
	case ResultOutOfDate:
		return "out of date"
	case ResultTimeout:
		return "timeout"
	case ResultDeviceLost:
		return "device lost"
	case ResultFailed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Image is an opaque image handle owned by the device provider.
type Image interface{}

// Buffer is a GPU buffer whose lifetime is tied to the submission using it,
// typically a staging buffer.
type Buffer interface {
	Size() uint64
	Destroy()
}

// Freeable is implemented by command buffers that return themselves to a
// pool once the GPU is done with them.
type Freeable interface {
	Free()
}

// CommandBuffer is a recording handle. A buffer handed to the command
// aggregator must already be closed.
type CommandBuffer interface {
	Reset() error
	Begin() error
	End() error
	// IsClosed reports whether recording has finished and the buffer can be submitted.
	IsClosed() bool
	PipelineBarrier(barriers ...ImageBarrier)
	// CopyBuffer copies the whole of src into the start of dst.
	CopyBuffer(src, dst Buffer)
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect)
}

// Swapchain is one generation of the presentable image set.
type Swapchain interface {
	// AcquireNextImage returns the index of the next presentable image. The
	// frame slot selects the semaphore that is signaled on availability.
	AcquireNextImage(slot uint32) (uint32, Result)
	Format() Format
	Extent() Extent
	ImageCount() uint32
	Image(index uint32) Image
	Destroy()
}

// Device is the device/queue provider consumed by the frame pipeline.
type Device interface {
	// QueueFamily returns the family index backing the queue.
	QueueFamily(queue QueueType) uint32
	// CommandBuffer returns the primary recording handle for a frame slot.
	CommandBuffer(slot uint32) CommandBuffer
	// AllocateCommandBuffer returns a fresh primary buffer for producers.
	AllocateCommandBuffer() (CommandBuffer, error)
	// CreateStagingBuffer returns a host-visible buffer holding a copy of data.
	CreateStagingBuffer(data []byte) (Buffer, error)
	// CreateDeviceBuffer returns a device-local buffer usable as a copy destination.
	CreateDeviceBuffer(size uint64) (Buffer, error)
	// Submit executes buffers in order and signals the slot's fence.
	Submit(queue QueueType, slot uint32, buffers []CommandBuffer) Result
	Present(swapchain Swapchain, imageIndex uint32, slot uint32) Result
	// WaitFence blocks until the work last submitted from slot has completed.
	WaitFence(slot uint32) error
	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error
	// CreateSwapchain builds a new generation. previous may be nil and is
	// not destroyed by the device.
	CreateSwapchain(extent Extent, previous Swapchain) (Swapchain, error)
}
