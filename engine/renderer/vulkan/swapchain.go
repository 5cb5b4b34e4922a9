package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-frame/engine/core"
	emath "github.com/spaghettifunk/anima-frame/engine/math"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

// VulkanSwapchain is one swapchain generation. It implements metadata.Swapchain.
type VulkanSwapchain struct {
	context *VulkanContext

	ImageFormat vk.SurfaceFormat
	ImageExtent vk.Extent2D
	Handle      vk.Swapchain
	imageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// SwapchainCreate builds a swapchain for the surface. When previous is not
// nil it is passed as the old swapchain so in-flight presents can retire;
// it is not destroyed here.
func SwapchainCreate(context *VulkanContext, width, height uint32, previous *VulkanSwapchain) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{context: context}
	support := &context.Device.SwapchainSupport

	// Choose a swap surface format.
	swapchain.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	// Swapchain extent
	swapchainExtent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = support.Capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	lo := support.Capabilities.MinImageExtent
	hi := support.Capabilities.MaxImageExtent
	swapchainExtent.Width = emath.Clamp(swapchainExtent.Width, lo.Width, hi.Width)
	swapchainExtent.Height = emath.Clamp(swapchainExtent.Height, lo.Height, hi.Height)
	swapchain.ImageExtent = swapchainExtent

	imageCount := emath.ClampMax(support.Capabilities.MinImageCount+1, support.Capabilities.MaxImageCount)

	// Swapchain create info
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if previous != nil {
		swapchainCreateInfo.OldSwapchain = previous.Handle
	}

	exclusiveSharing(&swapchainCreateInfo)

	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		err := resultError("vkCreateSwapchainKHR", res)
		core.LogError(err.Error())
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	// Images
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.imageCount, nil); res != vk.Success {
		swapchain.Destroy()
		return nil, resultError("vkGetSwapchainImagesKHR", res)
	}
	swapchain.Images = make([]vk.Image, swapchain.imageCount)
	swapchain.Views = make([]vk.ImageView, swapchain.imageCount)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.imageCount, swapchain.Images); res != vk.Success {
		swapchain.Destroy()
		return nil, resultError("vkGetSwapchainImagesKHR", res)
	}

	// Views
	for i := 0; i < int(swapchain.imageCount); i++ {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}

		if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &swapchain.Views[i]); res != vk.Success {
			swapchain.Destroy()
			return nil, resultError("vkCreateImageView", res)
		}
	}

	core.LogInfo("Swapchain created: %dx%d, %d images.", swapchainExtent.Width, swapchainExtent.Height, swapchain.imageCount)

	return swapchain, nil
}

// exclusiveSharing keeps each swapchain image owned by one queue family at a
// time. With separate graphics and present families the frame loop hands
// images over with ownership transfer barriers, which concurrent sharing
// does not allow.
func exclusiveSharing(info *vk.SwapchainCreateInfo) {
	info.ImageSharingMode = vk.SharingModeExclusive
	info.QueueFamilyIndexCount = 0
	info.PQueueFamilyIndices = nil
}

// AcquireNextImage signals the slot's image-available semaphore once the
// returned image can be written.
func (vs *VulkanSwapchain) AcquireNextImage(slot uint32) (uint32, metadata.Result) {
	var imageIndex uint32
	result := vk.AcquireNextImage(
		vs.context.Device.LogicalDevice,
		vs.Handle,
		math.MaxUint64,
		vs.context.ImageAvailableSemaphores[slot],
		vk.NullFence,
		&imageIndex,
	)
	if !VulkanResultIsSuccess(result) {
		core.LogDebug("vkAcquireNextImageKHR returned %s", VulkanResultString(result))
	}
	return imageIndex, toResult(result)
}

func (vs *VulkanSwapchain) Format() metadata.Format {
	return metadata.Format(vs.ImageFormat.Format)
}

func (vs *VulkanSwapchain) Extent() metadata.Extent {
	return metadata.Extent{Width: vs.ImageExtent.Width, Height: vs.ImageExtent.Height}
}

func (vs *VulkanSwapchain) ImageCount() uint32 {
	return vs.imageCount
}

func (vs *VulkanSwapchain) Image(index uint32) metadata.Image {
	if index >= uint32(len(vs.Images)) {
		panic(fmt.Sprintf("swapchain image %d out of range (%d images)", index, len(vs.Images)))
	}
	return vs.Images[index]
}

// Destroy releases the views and the swapchain. The caller guarantees the
// device no longer uses any of its images.
func (vs *VulkanSwapchain) Destroy() {
	if vs.Handle == vk.NullSwapchain {
		return
	}
	device := vs.context.Device.LogicalDevice

	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	for i := range vs.Views {
		if vs.Views[i] != vk.NullImageView {
			vk.DestroyImageView(device, vs.Views[i], vs.context.Allocator)
		}
	}
	vs.Views = nil
	vs.Images = nil

	vk.DestroySwapchain(device, vs.Handle, vs.context.Allocator)
	vs.Handle = vk.NullSwapchain
}
