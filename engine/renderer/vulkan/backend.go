package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

// SurfaceSource is the window the backend presents to.
type SurfaceSource interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance interface{}) (uintptr, error)
}

// VulkanBackend implements metadata.Device on top of a Vulkan instance,
// device and window surface.
type VulkanBackend struct {
	surface SurfaceSource
	context *VulkanContext

	debug bool
}

func New(surface SurfaceSource, framesInFlight uint32, debug bool) *VulkanBackend {
	if framesInFlight == 0 {
		panic("vulkan backend needs at least one frame in flight")
	}
	return &VulkanBackend{
		surface: surface,
		context: &VulkanContext{
			Allocator:      nil,
			Device:         &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1, TransferQueueIndex: -1},
			FramesInFlight: framesInFlight,
			Locks:          NewVulkanLockPool(),
		},
		debug: debug,
	}
}

func (vr *VulkanBackend) Initialize(appName string) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if err := vr.createInstance(appName); err != nil {
		return err
	}

	// Debugger
	if vr.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}

		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vr.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.surface.CreateSurface(vr.context.Instance)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(vr.context); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	// Create sync objects.
	n := vr.context.FramesInFlight
	vr.context.ImageAvailableSemaphores = make([]vk.Semaphore, n)
	vr.context.QueueCompleteSemaphores = make([]vk.Semaphore, n)
	vr.context.InFlightFences = make([]*VulkanFence, n)
	vr.context.FrameCommandBuffers = make([]*VulkanCommandBuffer, n)

	for i := uint32(0); i < n; i++ {
		semaphoreCreateInfo := vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}
		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &vr.context.ImageAvailableSemaphores[i]); res != vk.Success {
			return resultError("vkCreateSemaphore", res)
		}
		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &vr.context.QueueCompleteSemaphores[i]); res != vk.Success {
			return resultError("vkCreateSemaphore", res)
		}

		// Create the fence in a signaled state, indicating that the first frame has already been "rendered".
		// This will prevent the application from waiting indefinitely for the first frame to render since it
		// cannot be rendered until a frame is "rendered" before it.
		f, err := NewFence(vr.context, true)
		if err != nil {
			return err
		}
		vr.context.InFlightFences[i] = f

		cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool)
		if err != nil {
			return err
		}
		vr.context.FrameCommandBuffers[i] = cb
	}

	core.LogInfo("Vulkan backend initialized successfully.")
	return nil
}

func (vr *VulkanBackend) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anima Frame"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{vk.KhrSurfaceExtensionName}
	requiredExtensions = append(requiredExtensions, vr.surface.RequiredInstanceExtensions()...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	if vr.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogDebug("Required extensions: %v", requiredExtensions)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on non-release builds.
	var requiredLayers []string
	if vr.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}

		var availableCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableCount, nil); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}
		availableLayers := make([]vk.LayerProperties, availableCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableCount, availableLayers); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}

		// Verify all required layers are available.
		for _, name := range requiredLayers {
			found := false
			for j := range availableLayers {
				availableLayers[j].Deref()
				if cString(availableLayers[j].LayerName[:]) == name {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("required validation layer is missing: %s", name)
			}
		}
		core.LogInfo("All required validation layers are present.")
	}

	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		err := resultError("vkCreateInstance", res)
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}

	core.LogInfo("Vulkan Instance created.")
	return nil
}

func (vr *VulkanBackend) Shutdown() error {
	if vr.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

		// Destroy in the opposite order of creation.
		for i := range vr.context.FrameCommandBuffers {
			if cb := vr.context.FrameCommandBuffers[i]; cb != nil {
				cb.Free()
			}
		}
		for i := range vr.context.InFlightFences {
			if vr.context.ImageAvailableSemaphores[i] != vk.NullSemaphore {
				vk.DestroySemaphore(vr.context.Device.LogicalDevice, vr.context.ImageAvailableSemaphores[i], vr.context.Allocator)
			}
			if vr.context.QueueCompleteSemaphores[i] != vk.NullSemaphore {
				vk.DestroySemaphore(vr.context.Device.LogicalDevice, vr.context.QueueCompleteSemaphores[i], vr.context.Allocator)
			}
			if f := vr.context.InFlightFences[i]; f != nil {
				f.FenceDestroy(vr.context)
			}
		}
		vr.context.FrameCommandBuffers = nil
		vr.context.ImageAvailableSemaphores = nil
		vr.context.QueueCompleteSemaphores = nil
		vr.context.InFlightFences = nil

		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(vr.context)
	}

	core.LogDebug("Destroying Vulkan surface...")
	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}

	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	}

	if vr.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
		vr.context.Instance = nil
	}
	return nil
}

// SamplerFactory returns the factory backing the sampler cache.
func (vr *VulkanBackend) SamplerFactory() *SamplerFactory {
	return NewSamplerFactory(vr.context)
}

// MaxSamplerAnisotropy reports the device limit, or 0 when anisotropic
// filtering is unsupported.
func (vr *VulkanBackend) MaxSamplerAnisotropy() float32 {
	if vr.context.Device.Features.SamplerAnisotropy != vk.True {
		return 0
	}
	return vr.context.Device.Properties.Limits.MaxSamplerAnisotropy
}

func (vr *VulkanBackend) QueueFamily(queue metadata.QueueType) uint32 {
	switch queue {
	case metadata.QueueGraphics:
		return uint32(vr.context.Device.GraphicsQueueIndex)
	case metadata.QueuePresent:
		return uint32(vr.context.Device.PresentQueueIndex)
	case metadata.QueueTransfer:
		return uint32(vr.context.Device.TransferQueueIndex)
	default:
		panic(fmt.Sprintf("unknown queue %s", queue))
	}
}

func (vr *VulkanBackend) queue(queue metadata.QueueType) vk.Queue {
	switch queue {
	case metadata.QueueGraphics:
		return vr.context.Device.GraphicsQueue
	case metadata.QueuePresent:
		return vr.context.Device.PresentQueue
	case metadata.QueueTransfer:
		return vr.context.Device.TransferQueue
	default:
		panic(fmt.Sprintf("unknown queue %s", queue))
	}
}

func (vr *VulkanBackend) CommandBuffer(slot uint32) metadata.CommandBuffer {
	return vr.context.FrameCommandBuffers[slot]
}

func (vr *VulkanBackend) AllocateCommandBuffer() (metadata.CommandBuffer, error) {
	cb, err := NewTransientCommandBuffer(vr.context)
	if err != nil {
		return nil, err
	}
	return cb, nil
}

func (vr *VulkanBackend) CreateStagingBuffer(data []byte) (metadata.Buffer, error) {
	var buffer *VulkanBuffer
	err := vr.context.Locks.SafeCall(BufferManagement, func() error {
		var err error
		buffer, err = StagingBufferCreate(vr.context, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

func (vr *VulkanBackend) CreateDeviceBuffer(size uint64) (metadata.Buffer, error) {
	var buffer *VulkanBuffer
	err := vr.context.Locks.SafeCall(BufferManagement, func() error {
		var err error
		buffer, err = BufferCreate(
			vr.context,
			size,
			vk.BufferUsageFlags(vk.BufferUsageTransferDstBit|vk.BufferUsageVertexBufferBit|vk.BufferUsageIndexBufferBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

// Submit executes buffers in order on queue. Graphics submissions wait for
// the slot's acquired image and signal the slot's queue-complete semaphore.
// Every submission signals the slot's in-flight fence.
func (vr *VulkanBackend) Submit(queue metadata.QueueType, slot uint32, buffers []metadata.CommandBuffer) metadata.Result {
	handles := make([]vk.CommandBuffer, len(buffers))
	vbuffers := make([]*VulkanCommandBuffer, len(buffers))
	for i, b := range buffers {
		cb, ok := b.(*VulkanCommandBuffer)
		if !ok {
			panic(fmt.Sprintf("command buffer %T is not a vulkan command buffer", b))
		}
		handles[i] = cb.Handle
		vbuffers[i] = cb
	}

	fence := vr.context.InFlightFences[slot]
	if err := fence.FenceReset(vr.context); err != nil {
		return metadata.ResultFailed
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}
	if queue == metadata.QueueGraphics {
		// The wait stage prevents colour attachment writes until the image is available.
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{vr.context.ImageAvailableSemaphores[slot]}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{vr.context.QueueCompleteSemaphores[slot]}
	}

	var result vk.Result
	vr.context.Locks.SafeQueueCall(vr.QueueFamily(queue), func() error {
		result = vk.QueueSubmit(vr.queue(queue), 1, []vk.SubmitInfo{submitInfo}, fence.Handle)
		return nil
	})
	if result != vk.Success {
		core.LogError("vkQueueSubmit failed with result: %s", VulkanResultString(result))
		return toResult(result)
	}
	for _, cb := range vbuffers {
		cb.UpdateSubmitted()
	}
	return metadata.ResultSuccess
}

func (vr *VulkanBackend) Present(swapchain metadata.Swapchain, imageIndex uint32, slot uint32) metadata.Result {
	sc, ok := swapchain.(*VulkanSwapchain)
	if !ok {
		panic(fmt.Sprintf("swapchain %T is not a vulkan swapchain", swapchain))
	}

	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vr.context.QueueCompleteSemaphores[slot]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	var result vk.Result
	vr.context.Locks.SafeQueueCall(vr.QueueFamily(metadata.QueuePresent), func() error {
		result = vk.QueuePresent(vr.context.Device.PresentQueue, &presentInfo)
		return nil
	})
	return toResult(result)
}

func (vr *VulkanBackend) WaitFence(slot uint32) error {
	return vr.context.InFlightFences[slot].FenceWait(vr.context, math.MaxUint64)
}

func (vr *VulkanBackend) WaitIdle() error {
	if res := vk.DeviceWaitIdle(vr.context.Device.LogicalDevice); res != vk.Success {
		return resultError("vkDeviceWaitIdle", res)
	}
	return nil
}

func (vr *VulkanBackend) CreateSwapchain(extent metadata.Extent, previous metadata.Swapchain) (metadata.Swapchain, error) {
	var old *VulkanSwapchain
	if previous != nil {
		var ok bool
		if old, ok = previous.(*VulkanSwapchain); !ok {
			panic(fmt.Sprintf("swapchain %T is not a vulkan swapchain", previous))
		}
	}

	var swapchain *VulkanSwapchain
	err := vr.context.Locks.SafeCall(SwapchainManagement, func() error {
		// Requery support, the surface may have changed since the last generation.
		if err := DeviceQuerySwapchainSupport(vr.context.Device.PhysicalDevice, vr.context.Surface, &vr.context.Device.SwapchainSupport); err != nil {
			return err
		}
		if len(vr.context.Device.SwapchainSupport.Formats) == 0 {
			return fmt.Errorf("surface reports no formats")
		}
		var err error
		swapchain, err = SwapchainCreate(vr.context, extent.Width, extent.Height, old)
		return err
	})
	if err != nil {
		return nil, err
	}
	return swapchain, nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
