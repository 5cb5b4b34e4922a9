package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-frame/engine/core"
)

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	// Number of frame slots. Every per-frame array below has this length.
	FramesInFlight uint32

	// Primary command buffer recorded by the frame loop for each slot.
	FrameCommandBuffers []*VulkanCommandBuffer

	// Signaled when the image acquired for a slot is available.
	ImageAvailableSemaphores []vk.Semaphore

	// Signaled when the slot's submission has completed on the graphics queue.
	QueueCompleteSemaphores []vk.Semaphore

	InFlightFences []*VulkanFence

	Locks *VulkanLockPool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
