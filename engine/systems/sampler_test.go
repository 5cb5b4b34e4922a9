package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-frame/engine/renderer/cache"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

type fakeSampler struct {
	id   int
	desc metadata.SamplerDescriptor
}

func newSamplerSystem(t *testing.T, config *SamplerSystemConfig) (*SamplerSystem, *[]*fakeSampler) {
	t.Helper()
	destroyed := &[]*fakeSampler{}
	next := 0
	factory := cache.FactoryFuncs[metadata.SamplerDescriptor, metadata.Sampler]{
		CreateFn: func(desc metadata.SamplerDescriptor) (metadata.Sampler, error) {
			next++
			return &fakeSampler{id: next, desc: desc}, nil
		},
		DestroyFn: func(s metadata.Sampler) {
			*destroyed = append(*destroyed, s.(*fakeSampler))
		},
	}
	ss, err := NewSamplerSystem(config, factory)
	require.NoError(t, err)
	return ss, destroyed
}

func TestNewSamplerSystemValidates(t *testing.T) {
	_, err := NewSamplerSystem(&SamplerSystemConfig{}, nil)
	assert.Error(t, err)
	_, err = NewSamplerSystem(&SamplerSystemConfig{MaxSamplerCount: 4}, nil)
	assert.Error(t, err)
}

func TestSamplerSharedBetweenMaps(t *testing.T) {
	ss, destroyed := newSamplerSystem(t, &SamplerSystemConfig{MaxSamplerCount: 16})
	tm := metadata.TextureMapConfig{
		FilterMinify:  metadata.TextureFilterModeLinear,
		FilterMagnify: metadata.TextureFilterModeLinear,
		RepeatU:       metadata.TextureRepeatRepeat,
		RepeatV:       metadata.TextureRepeatRepeat,
		RepeatW:       metadata.TextureRepeatRepeat,
	}

	a, err := ss.Acquire(tm)
	require.NoError(t, err)
	b, err := ss.Acquire(tm)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, ss.Count())
	assert.Equal(t, 2, ss.RefCount(a))

	ss.Release(a)
	assert.Empty(t, *destroyed)
	ss.Release(b)
	assert.Len(t, *destroyed, 1)
	assert.Equal(t, 0, ss.Count())
}

func TestSamplerDistinctFilters(t *testing.T) {
	ss, _ := newSamplerSystem(t, &SamplerSystemConfig{MaxSamplerCount: 16})
	linear := metadata.TextureMapConfig{FilterMinify: metadata.TextureFilterModeLinear, FilterMagnify: metadata.TextureFilterModeLinear}
	nearest := linear
	nearest.FilterMagnify = metadata.TextureFilterModeNearest

	a, err := ss.Acquire(linear)
	require.NoError(t, err)
	b, err := ss.Acquire(nearest)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, ss.Count())
}

func TestDescriptorFor(t *testing.T) {
	ss, _ := newSamplerSystem(t, &SamplerSystemConfig{MaxSamplerCount: 4, MaxAnisotropy: 8})

	desc := ss.DescriptorFor(metadata.TextureMapConfig{
		FilterMinify:  metadata.TextureFilterModeNearest,
		FilterMagnify: metadata.TextureFilterModeLinear,
		RepeatU:       metadata.TextureRepeatClampToEdge,
		MipLevels:     6,
	})
	assert.Equal(t, metadata.TextureFilterModeNearest, desc.FilterMinify)
	assert.Equal(t, metadata.TextureFilterModeLinear, desc.FilterMagnify)
	assert.Equal(t, metadata.TextureRepeatClampToEdge, desc.RepeatU)
	assert.Equal(t, metadata.TextureRepeatRepeat, desc.RepeatV, "unset repeat falls back to repeat")
	assert.Equal(t, float32(6), desc.MaxLod)
	assert.Equal(t, metadata.MipmapModeLinear, desc.MipmapMode)
	assert.True(t, desc.AnisotropyEnable)
	assert.Equal(t, float32(8), desc.MaxAnisotropy)

	single := ss.DescriptorFor(metadata.TextureMapConfig{})
	assert.Equal(t, float32(1), single.MaxLod)
	assert.Equal(t, metadata.MipmapModeNearest, single.MipmapMode)
}

func TestSamplerShutdownDestroysLeaked(t *testing.T) {
	ss, destroyed := newSamplerSystem(t, &SamplerSystemConfig{MaxSamplerCount: 4})
	_, err := ss.Acquire(metadata.TextureMapConfig{})
	require.NoError(t, err)

	require.NoError(t, ss.Shutdown())
	assert.Len(t, *destroyed, 1)
}
