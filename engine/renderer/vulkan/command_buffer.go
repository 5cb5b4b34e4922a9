package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer implements metadata.CommandBuffer. A buffer created
// with a private pool destroys that pool when freed, which lets producers
// record on any goroutine.
type VulkanCommandBuffer struct {
	context *VulkanContext
	pool    vk.CommandPool
	ownPool bool

	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		context: context,
		pool:    pool,
		State:   COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
		err := resultError("vkAllocateCommandBuffers", res)
		core.LogError(err.Error())
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY

	return vCommandBuffer, nil
}

// NewTransientCommandBuffer allocates a primary buffer from a pool of its own
// on the graphics family.
func NewTransientCommandBuffer(context *VulkanContext) (*VulkanCommandBuffer, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(context.Device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool); res != vk.Success {
		err := resultError("vkCreateCommandPool", res)
		core.LogError(err.Error())
		return nil, err
	}

	cb, err := NewVulkanCommandBuffer(context, pool)
	if err != nil {
		vk.DestroyCommandPool(context.Device.LogicalDevice, pool, context.Allocator)
		return nil, err
	}
	cb.ownPool = true
	return cb, nil
}

// Free returns the buffer to its pool, destroying the pool when the buffer owns it.
func (v *VulkanCommandBuffer) Free() {
	if v.Handle == nil {
		return
	}
	device := v.context.Device.LogicalDevice
	if v.ownPool {
		// Destroying the pool frees every buffer allocated from it.
		vk.DestroyCommandPool(device, v.pool, v.context.Allocator)
	} else {
		v.context.Locks.SafeCall(CommandPoolManagement, func() error {
			vk.FreeCommandBuffers(device, v.pool, 1, []vk.CommandBuffer{v.Handle})
			return nil
		})
	}
	v.Handle = nil
	v.pool = vk.NullCommandPool
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Reset() error {
	if v.State == COMMAND_BUFFER_STATE_NOT_ALLOCATED {
		panic("reset of a freed command buffer")
	}
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		return resultError("vkResetCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) Begin() error {
	if v.State != COMMAND_BUFFER_STATE_READY {
		return fmt.Errorf("begin of command buffer in state %d", v.State)
	}
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		err := resultError("vkBeginCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State != COMMAND_BUFFER_STATE_RECORDING {
		return fmt.Errorf("end of command buffer that is not recording (state %d)", v.State)
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := resultError("vkEndCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) IsClosed() bool {
	return v.State == COMMAND_BUFFER_STATE_RECORDING_ENDED || v.State == COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) PipelineBarrier(barriers ...metadata.ImageBarrier) {
	for _, b := range barriers {
		srcStage, dstStage, srcAccess, dstAccess := barrierMasks(b.OldLayout, b.NewLayout)
		image, ok := b.Image.(vk.Image)
		if !ok {
			panic(fmt.Sprintf("barrier image %T is not a vulkan image", b.Image))
		}
		vk.CmdPipelineBarrier(v.Handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           imageLayout(b.OldLayout),
			NewLayout:           imageLayout(b.NewLayout),
			SrcQueueFamilyIndex: b.SrcQueueFamily,
			DstQueueFamilyIndex: b.DstQueueFamily,
			Image:               image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}})
	}
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst metadata.Buffer) {
	from, ok := src.(*VulkanBuffer)
	if !ok {
		panic(fmt.Sprintf("copy source %T is not a vulkan buffer", src))
	}
	to, ok := dst.(*VulkanBuffer)
	if !ok {
		panic(fmt.Sprintf("copy destination %T is not a vulkan buffer", dst))
	}
	size := from.Size()
	if to.Size() < size {
		panic(fmt.Sprintf("copy of %d bytes into a %d byte buffer", size, to.Size()))
	}
	vk.CmdCopyBuffer(v.Handle, from.Handle, to.Handle, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
}

func (v *VulkanCommandBuffer) SetViewport(viewport metadata.Viewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(scissor metadata.Rect) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.X, Y: scissor.Y},
		Extent: vk.Extent2D{Width: scissor.Width, Height: scissor.Height},
	}})
}

func imageLayout(l metadata.ImageLayout) vk.ImageLayout {
	switch l {
	case metadata.ImageLayoutUndefined:
		return vk.ImageLayoutUndefined
	case metadata.ImageLayoutColorAttachmentOptimal:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	case metadata.ImageLayoutTransferDstOptimal:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.ImageLayoutShaderReadOnlyOptimal:
		return vk.ImageLayoutShaderReadOnlyOptimal
	default:
		panic(fmt.Sprintf("unsupported image layout %s", l))
	}
}

// barrierMasks derives the stage and access masks for a layout transition.
func barrierMasks(oldLayout, newLayout metadata.ImageLayout) (srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	switch {
	case oldLayout == metadata.ImageLayoutUndefined && newLayout == metadata.ImageLayoutColorAttachmentOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			0,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	case oldLayout == metadata.ImageLayoutColorAttachmentOptimal && newLayout == metadata.ImageLayoutPresentSrc:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			0
	case oldLayout == metadata.ImageLayoutUndefined && newLayout == metadata.ImageLayoutTransferDstOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0,
			vk.AccessFlags(vk.AccessTransferWriteBit)
	case oldLayout == metadata.ImageLayoutTransferDstOptimal && newLayout == metadata.ImageLayoutShaderReadOnlyOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.AccessFlags(vk.AccessShaderReadBit)
	default:
		// Unknown pairs fall back to a full barrier.
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			vk.AccessFlags(vk.AccessMemoryWriteBit),
			vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
	}
}
