package vulkan

import (
	"errors"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

func TestToResult(t *testing.T) {
	cases := map[vk.Result]metadata.Result{
		vk.Success:                metadata.ResultSuccess,
		vk.Suboptimal:             metadata.ResultSuboptimal,
		vk.ErrorOutOfDate:         metadata.ResultOutOfDate,
		vk.Timeout:                metadata.ResultTimeout,
		vk.NotReady:               metadata.ResultTimeout,
		vk.ErrorDeviceLost:        metadata.ResultDeviceLost,
		vk.ErrorOutOfDeviceMemory: metadata.ResultFailed,
		vk.ErrorSurfaceLost:       metadata.ResultFailed,
	}
	for in, want := range cases {
		assert.Equal(t, want, toResult(in), VulkanResultString(in))
	}
}

func TestResultError(t *testing.T) {
	err := resultError("vkQueueSubmit", vk.ErrorDeviceLost)
	assert.True(t, errors.Is(err, core.ErrDeviceLost))

	err = resultError("vkQueueSubmit", vk.ErrorOutOfHostMemory)
	assert.False(t, errors.Is(err, core.ErrDeviceLost))
	assert.Contains(t, err.Error(), "VK_ERROR_OUT_OF_HOST_MEMORY")

	assert.Equal(t, "VkResult(-12345)", VulkanResultString(vk.Result(-12345)))
	assert.True(t, VulkanResultIsSuccess(vk.Suboptimal))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfDate))
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "VK_KHR_surface\x00", VulkanSafeString("VK_KHR_surface"))
	assert.Equal(t, "done\x00", VulkanSafeString("done\x00"))

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0], "input must not be modified")

	var name [16]byte
	copy(name[:], "llvmpipe")
	assert.Equal(t, "llvmpipe", cString(name[:]))
	assert.Equal(t, "abc", cString([]byte("abc")))
}

func TestBarrierMasks(t *testing.T) {
	src, dst, srcAccess, dstAccess := barrierMasks(metadata.ImageLayoutUndefined, metadata.ImageLayoutTransferDstOptimal)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), dst)
	assert.Zero(t, srcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), dstAccess)

	src, dst, srcAccess, dstAccess = barrierMasks(metadata.ImageLayoutTransferDstOptimal, metadata.ImageLayoutShaderReadOnlyOptimal)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), dst)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), srcAccess)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), dstAccess)

	src, dst, _, _ = barrierMasks(metadata.ImageLayoutColorAttachmentOptimal, metadata.ImageLayoutPresentSrc)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), dst)

	src, dst, _, _ = barrierMasks(metadata.ImageLayoutPresentSrc, metadata.ImageLayoutTransferDstOptimal)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), dst)

	assert.Equal(t, vk.ImageLayoutPresentSrc, imageLayout(metadata.ImageLayoutPresentSrc))
	assert.Panics(t, func() { imageLayout(metadata.ImageLayout(99)) })
}

func TestSamplerConversions(t *testing.T) {
	assert.Equal(t, vk.FilterNearest, filter(metadata.TextureFilterModeNearest))
	assert.Equal(t, vk.FilterLinear, filter(metadata.TextureFilterModeLinear))
	assert.Equal(t, vk.SamplerMipmapModeNearest, mipmapMode(metadata.MipmapModeNearest))
	assert.Equal(t, vk.SamplerAddressModeRepeat, addressMode(metadata.TextureRepeatRepeat))
	assert.Equal(t, vk.SamplerAddressModeMirroredRepeat, addressMode(metadata.TextureRepeatMirroredRepeat))
	assert.Equal(t, vk.SamplerAddressModeClampToEdge, addressMode(metadata.TextureRepeatClampToEdge))
	assert.Equal(t, vk.SamplerAddressModeClampToBorder, addressMode(metadata.TextureRepeatClampToBorder))
	assert.Equal(t, vk.CompareOpLessOrEqual, compareOp(metadata.CompareOpLessOrEqual))
	assert.Equal(t, vk.CompareOpNever, compareOp(metadata.CompareOpNever))
	assert.Equal(t, vk.BorderColorFloatOpaqueWhite, borderColor(metadata.BorderColorOpaqueWhite))
}

func TestSwapchainImagesAreExclusive(t *testing.T) {
	info := vk.SwapchainCreateInfo{
		ImageSharingMode:      vk.SharingModeConcurrent,
		QueueFamilyIndexCount: 2,
		PQueueFamilyIndices:   []uint32{0, 1},
	}
	exclusiveSharing(&info)
	assert.Equal(t, vk.SharingModeExclusive, info.ImageSharingMode)
	assert.Zero(t, info.QueueFamilyIndexCount)
	assert.Nil(t, info.PQueueFamilyIndices)

	// distinct families keep both indices, which is only valid on exclusive images
	b := metadata.OwnershipTransfer(nil, metadata.ImageLayoutUndefined, metadata.ImageLayoutColorAttachmentOptimal, 1, 0)
	assert.Equal(t, uint32(1), b.SrcQueueFamily)
	assert.Equal(t, uint32(0), b.DstQueueFamily)
}

func TestLockPoolSerializesQueueCalls(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.SafeQueueCall(0, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)

	want := errors.New("boom")
	require.ErrorIs(t, pool.SafeCall(SamplerManagement, func() error { return want }), want)
}
