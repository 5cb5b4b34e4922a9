package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-frame/engine/core"
)

// VulkanBuffer is a buffer with its own memory allocation. It implements
// metadata.Buffer.
type VulkanBuffer struct {
	context *VulkanContext

	Handle vk.Buffer
	Memory vk.DeviceMemory
	Usage  vk.BufferUsageFlags

	size    uint64
	destroy sync.Once
}

func BufferCreate(context *VulkanContext, size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	if size == 0 {
		panic("buffer of zero size")
	}
	buffer := &VulkanBuffer{
		context: context,
		Usage:   usage,
		size:    size,
	}
	device := context.Device.LogicalDevice

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(device, &bufferInfo, context.Allocator, &buffer.Handle); res != vk.Success {
		err := resultError("vkCreateBuffer", res)
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer.Handle, &requirements)
	requirements.Deref()

	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(properties))
	if memoryIndex < 0 {
		vk.DestroyBuffer(device, buffer.Handle, context.Allocator)
		return nil, fmt.Errorf("no memory type for buffer of %d bytes with properties %#x", size, uint32(properties))
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	if res := vk.AllocateMemory(device, &allocInfo, context.Allocator, &buffer.Memory); res != vk.Success {
		vk.DestroyBuffer(device, buffer.Handle, context.Allocator)
		err := resultError("vkAllocateMemory", res)
		core.LogError(err.Error())
		return nil, err
	}

	if res := vk.BindBufferMemory(device, buffer.Handle, buffer.Memory, 0); res != vk.Success {
		buffer.Destroy()
		return nil, resultError("vkBindBufferMemory", res)
	}
	return buffer, nil
}

// StagingBufferCreate returns a host-visible transfer source holding data.
func StagingBufferCreate(context *VulkanContext, data []byte) (*VulkanBuffer, error) {
	buffer, err := BufferCreate(
		context,
		uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return nil, err
	}
	if err := buffer.Load(data); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

// Load copies data to the start of a host-visible buffer.
func (b *VulkanBuffer) Load(data []byte) error {
	if uint64(len(data)) > b.size {
		panic(fmt.Sprintf("load of %d bytes into a %d byte buffer", len(data), b.size))
	}
	device := b.context.Device.LogicalDevice
	var pData unsafe.Pointer
	if res := vk.MapMemory(device, b.Memory, 0, vk.DeviceSize(len(data)), 0, &pData); res != vk.Success {
		return resultError("vkMapMemory", res)
	}
	defer vk.UnmapMemory(device, b.Memory)

	if n := vk.Memcopy(pData, data); n != len(data) {
		return fmt.Errorf("copied %d of %d bytes into buffer", n, len(data))
	}
	return nil
}

func (b *VulkanBuffer) Size() uint64 {
	return b.size
}

// Destroy releases the buffer and its memory. Calling it more than once is a no-op.
func (b *VulkanBuffer) Destroy() {
	b.destroy.Do(func() {
		device := b.context.Device.LogicalDevice
		if b.Handle != vk.NullBuffer {
			vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
			b.Handle = vk.NullBuffer
		}
		if b.Memory != vk.NullDeviceMemory {
			vk.FreeMemory(device, b.Memory, b.context.Allocator)
			b.Memory = vk.NullDeviceMemory
		}
	})
}
