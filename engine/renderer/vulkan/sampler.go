package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-frame/engine/core"
	emath "github.com/spaghettifunk/anima-frame/engine/math"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

// SamplerFactory creates and destroys VkSampler objects for the sampler
// cache. The returned metadata.Sampler holds a vk.Sampler.
type SamplerFactory struct {
	context *VulkanContext
}

func NewSamplerFactory(context *VulkanContext) *SamplerFactory {
	return &SamplerFactory{context: context}
}

func (f *SamplerFactory) Create(desc metadata.SamplerDescriptor) (metadata.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter(desc.FilterMagnify),
		MinFilter:               filter(desc.FilterMinify),
		MipmapMode:              mipmapMode(desc.MipmapMode),
		AddressModeU:            addressMode(desc.RepeatU),
		AddressModeV:            addressMode(desc.RepeatV),
		AddressModeW:            addressMode(desc.RepeatW),
		MipLodBias:              desc.MipLodBias,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		CompareEnable:           vk.False,
		CompareOp:               compareOp(desc.CompareOp),
		MinLod:                  desc.MinLod,
		MaxLod:                  desc.MaxLod,
		BorderColor:             borderColor(desc.BorderColor),
		UnnormalizedCoordinates: vk.False,
	}

	if desc.AnisotropyEnable {
		if f.context.Device.Features.SamplerAnisotropy == vk.True {
			limit := f.context.Device.Properties.Limits.MaxSamplerAnisotropy
			info.AnisotropyEnable = vk.True
			info.MaxAnisotropy = emath.Clamp(desc.MaxAnisotropy, 1.0, limit)
		} else {
			core.LogWarn("sampler anisotropy requested but not supported by the device")
		}
	}
	if desc.CompareEnable {
		info.CompareEnable = vk.True
	}
	if desc.UnnormalizedCoordinates {
		info.UnnormalizedCoordinates = vk.True
	}

	var sampler vk.Sampler
	err := f.context.Locks.SafeCall(SamplerManagement, func() error {
		if res := vk.CreateSampler(f.context.Device.LogicalDevice, &info, f.context.Allocator, &sampler); res != vk.Success {
			return resultError("vkCreateSampler", res)
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return sampler, nil
}

func (f *SamplerFactory) Destroy(s metadata.Sampler) {
	sampler, ok := s.(vk.Sampler)
	if !ok {
		panic(fmt.Sprintf("sampler %T is not a vulkan sampler", s))
	}
	f.context.Locks.SafeCall(SamplerManagement, func() error {
		vk.DestroySampler(f.context.Device.LogicalDevice, sampler, f.context.Allocator)
		return nil
	})
}

func filter(f metadata.TextureFilter) vk.Filter {
	if f == metadata.TextureFilterModeNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func mipmapMode(m metadata.MipmapMode) vk.SamplerMipmapMode {
	if m == metadata.MipmapModeNearest {
		return vk.SamplerMipmapModeNearest
	}
	return vk.SamplerMipmapModeLinear
}

func addressMode(r metadata.TextureRepeat) vk.SamplerAddressMode {
	switch r {
	case metadata.TextureRepeatMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case metadata.TextureRepeatClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case metadata.TextureRepeatClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	default:
		return vk.SamplerAddressModeRepeat
	}
}

func compareOp(op metadata.CompareOp) vk.CompareOp {
	switch op {
	case metadata.CompareOpLess:
		return vk.CompareOpLess
	case metadata.CompareOpEqual:
		return vk.CompareOpEqual
	case metadata.CompareOpLessOrEqual:
		return vk.CompareOpLessOrEqual
	case metadata.CompareOpGreater:
		return vk.CompareOpGreater
	case metadata.CompareOpNotEqual:
		return vk.CompareOpNotEqual
	case metadata.CompareOpGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	case metadata.CompareOpAlways:
		return vk.CompareOpAlways
	default:
		return vk.CompareOpNever
	}
}

func borderColor(c metadata.BorderColor) vk.BorderColor {
	switch c {
	case metadata.BorderColorTransparentBlack:
		return vk.BorderColorFloatTransparentBlack
	case metadata.BorderColorOpaqueWhite:
		return vk.BorderColorFloatOpaqueWhite
	default:
		return vk.BorderColorFloatOpaqueBlack
	}
}
