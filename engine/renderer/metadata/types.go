package metadata

import "fmt"

// Format identifies a surface pixel format. Values are backend specific.
type Format int32

type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is degenerate.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

type Rect struct {
	X      int32
	Y      int32
	Width  uint32
	Height uint32
}

type Viewport struct {
	X        float32
	Y        float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

// ViewportFor returns a full-surface viewport and scissor for extent.
func ViewportFor(extent Extent) (Viewport, Rect) {
	viewport := Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := Rect{
		X:      0,
		Y:      0,
		Width:  extent.Width,
		Height: extent.Height,
	}
	return viewport, scissor
}

type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutColorAttachmentOptimal
	ImageLayoutPresentSrc
	ImageLayoutTransferDstOptimal
	ImageLayoutShaderReadOnlyOptimal
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "undefined"
	case ImageLayoutColorAttachmentOptimal:
		return "color-attachment-optimal"
	case ImageLayoutPresentSrc:
		return "present-src"
	case ImageLayoutTransferDstOptimal:
		return "transfer-dst-optimal"
	case ImageLayoutShaderReadOnlyOptimal:
		return "shader-read-only-optimal"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ImageBarrier describes a layout transition and, when the two families
// differ, a queue-family ownership transfer.
type ImageBarrier struct {
	Image          Image
	OldLayout      ImageLayout
	NewLayout      ImageLayout
	SrcQueueFamily uint32
	DstQueueFamily uint32
}

// OwnershipTransfer builds a barrier moving image from family src to dst.
// Equal families collapse to QueueFamilyIgnored on both sides.
func OwnershipTransfer(image Image, oldLayout, newLayout ImageLayout, src, dst uint32) ImageBarrier {
	if src == dst {
		src, dst = QueueFamilyIgnored, QueueFamilyIgnored
	}
	return ImageBarrier{
		Image:          image,
		OldLayout:      oldLayout,
		NewLayout:      newLayout,
		SrcQueueFamily: src,
		DstQueueFamily: dst,
	}
}
