package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/cache"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

type SamplerSystemConfig struct {
	/** @brief The number of distinct samplers expected at most. Exceeding it is reported. */
	MaxSamplerCount uint32
	/** @brief Anisotropy applied to every sampler. 0 disables anisotropic filtering. */
	MaxAnisotropy float32
	/** @brief Turns cache misuse (ceiling overflow, leaks at shutdown) into panics. */
	Checked bool
}

// SamplerFactory creates backend sampler objects.
type SamplerFactory = cache.Factory[metadata.SamplerDescriptor, metadata.Sampler]

// SamplerSystem hands out deduplicated samplers to materials. Identical
// texture map settings share one backend sampler.
type SamplerSystem struct {
	Config *SamplerSystemConfig
	cache  *cache.Cache[metadata.SamplerDescriptor, metadata.Sampler]
}

func NewSamplerSystem(config *SamplerSystemConfig, factory SamplerFactory) (*SamplerSystem, error) {
	if config.MaxSamplerCount == 0 {
		err := fmt.Errorf("func NewSamplerSystem - config.MaxSamplerCount must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("func NewSamplerSystem - a sampler factory is required")
	}
	return &SamplerSystem{
		Config: config,
		cache: cache.New[metadata.SamplerDescriptor, metadata.Sampler](factory, cache.Options{
			Name:    "sampler cache",
			Ceiling: int(config.MaxSamplerCount),
			Checked: config.Checked,
		}),
	}, nil
}

/**
 * @brief Builds the sampler descriptor matching a texture map.
 */
func (ss *SamplerSystem) DescriptorFor(tm metadata.TextureMapConfig) metadata.SamplerDescriptor {
	desc := metadata.DefaultSamplerDescriptor()
	desc.FilterMinify = tm.FilterMinify
	desc.FilterMagnify = tm.FilterMagnify
	desc.RepeatU = tm.RepeatU
	desc.RepeatV = tm.RepeatV
	desc.RepeatW = tm.RepeatW
	if desc.RepeatU == 0 {
		desc.RepeatU = metadata.TextureRepeatRepeat
	}
	if desc.RepeatV == 0 {
		desc.RepeatV = metadata.TextureRepeatRepeat
	}
	if desc.RepeatW == 0 {
		desc.RepeatW = metadata.TextureRepeatRepeat
	}

	levels := tm.MipLevels
	if levels == 0 {
		levels = 1
	}
	desc.MaxLod = float32(levels)
	if levels == 1 {
		desc.MipmapMode = metadata.MipmapModeNearest
	}

	if ss.Config.MaxAnisotropy > 0 {
		desc.AnisotropyEnable = true
		desc.MaxAnisotropy = ss.Config.MaxAnisotropy
	}
	return desc
}

// Acquire returns the shared sampler for a texture map, creating it on first use.
func (ss *SamplerSystem) Acquire(tm metadata.TextureMapConfig) (metadata.Sampler, error) {
	return ss.AcquireDescriptor(ss.DescriptorFor(tm))
}

func (ss *SamplerSystem) AcquireDescriptor(desc metadata.SamplerDescriptor) (metadata.Sampler, error) {
	s, err := ss.cache.Acquire(desc)
	if err != nil {
		core.LogError("failed to acquire sampler: %s", err)
		return nil, err
	}
	return s, nil
}

/**
 * @brief Releases a sampler obtained with Acquire. The backend object is
 * destroyed when the last material using it lets go.
 */
func (ss *SamplerSystem) Release(s metadata.Sampler) {
	ss.cache.Release(s)
}

func (ss *SamplerSystem) Count() int {
	return ss.cache.Len()
}

func (ss *SamplerSystem) RefCount(s metadata.Sampler) int {
	return ss.cache.RefCount(s)
}

/**
 * @brief Destroys every sampler. Job workers must be stopped first.
 */
func (ss *SamplerSystem) Shutdown() error {
	if leaked := ss.cache.Shutdown(); leaked > 0 {
		core.LogWarn("sampler system shut down with %d samplers still referenced", leaked)
	}
	return nil
}
