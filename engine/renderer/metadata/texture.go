package metadata

/** @brief Represents supported texture filtering modes. */
type TextureFilter int

const (
	/** @brief Nearest-neighbor filtering. */
	TextureFilterModeNearest TextureFilter = 0x0
	/** @brief Linear (i.e. bilinear) filtering.*/
	TextureFilterModeLinear TextureFilter = 0x1
)

type TextureRepeat int

const (
	TextureRepeatRepeat         TextureRepeat = 0x1
	TextureRepeatMirroredRepeat TextureRepeat = 0x2
	TextureRepeatClampToEdge    TextureRepeat = 0x3
	TextureRepeatClampToBorder  TextureRepeat = 0x4
)

/** @brief How mip levels are blended when sampling. */
type MipmapMode int

const (
	MipmapModeNearest MipmapMode = 0x0
	MipmapModeLinear  MipmapMode = 0x1
)

type CompareOp int

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpNotEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)

type BorderColor int

const (
	BorderColorTransparentBlack BorderColor = iota
	BorderColorOpaqueBlack
	BorderColorOpaqueWhite
)

/**
 * @brief Immutable description of a sampler. Two descriptors describe the
 * same GPU object only if every field is equal; see Equal.
 */
type SamplerDescriptor struct {
	/** @brief Texture filtering mode for minification. */
	FilterMinify TextureFilter
	/** @brief Texture filtering mode for magnification. */
	FilterMagnify TextureFilter
	MipmapMode    MipmapMode
	/** @brief The repeat mode on the U axis (or X, or S) */
	RepeatU TextureRepeat
	/** @brief The repeat mode on the V axis (or Y, or T) */
	RepeatV TextureRepeat
	/** @brief The repeat mode on the W axis (or Z, or U) */
	RepeatW TextureRepeat

	MipLodBias float32
	MinLod     float32
	MaxLod     float32

	AnisotropyEnable bool
	MaxAnisotropy    float32

	CompareEnable bool
	CompareOp     CompareOp

	BorderColor             BorderColor
	UnnormalizedCoordinates bool
}

// DefaultSamplerDescriptor returns a linear, repeating sampler covering every mip level.
func DefaultSamplerDescriptor() SamplerDescriptor {
	return SamplerDescriptor{
		FilterMinify:  TextureFilterModeLinear,
		FilterMagnify: TextureFilterModeLinear,
		MipmapMode:    MipmapModeLinear,
		RepeatU:       TextureRepeatRepeat,
		RepeatV:       TextureRepeatRepeat,
		RepeatW:       TextureRepeatRepeat,
		MaxLod:        1000.0,
		BorderColor:   BorderColorOpaqueBlack,
	}
}

// Equal compares every field explicitly. Floats compare by value, so 0 and
// -0 are equal and a NaN field never matches.
func (d SamplerDescriptor) Equal(other SamplerDescriptor) bool {
	return d.FilterMinify == other.FilterMinify &&
		d.FilterMagnify == other.FilterMagnify &&
		d.MipmapMode == other.MipmapMode &&
		d.RepeatU == other.RepeatU &&
		d.RepeatV == other.RepeatV &&
		d.RepeatW == other.RepeatW &&
		d.MipLodBias == other.MipLodBias &&
		d.MinLod == other.MinLod &&
		d.MaxLod == other.MaxLod &&
		d.AnisotropyEnable == other.AnisotropyEnable &&
		d.MaxAnisotropy == other.MaxAnisotropy &&
		d.CompareEnable == other.CompareEnable &&
		d.CompareOp == other.CompareOp &&
		d.BorderColor == other.BorderColor &&
		d.UnnormalizedCoordinates == other.UnnormalizedCoordinates
}

/**
 * @brief Material-facing sampling parameters for one texture map, as read
 * from a material file by the loader.
 */
type TextureMapConfig struct {
	/** @brief Texture filtering mode for minification. */
	FilterMinify TextureFilter
	/** @brief Texture filtering mode for magnification. */
	FilterMagnify TextureFilter
	/** @brief The repeat mode on the U axis (or X, or S) */
	RepeatU TextureRepeat
	/** @brief The repeat mode on the V axis (or Y, or T) */
	RepeatV TextureRepeat
	/** @brief The repeat mode on the W axis (or Z, or U) */
	RepeatW TextureRepeat
	/** @brief Mip levels of the bound texture; 0 means a single level. */
	MipLevels uint32
}

// Sampler is an opaque, comparable sampler handle owned by the backend.
type Sampler interface{}
