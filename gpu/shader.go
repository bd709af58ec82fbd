package gpu

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"

	"github.com/gostab/undistort"
)

//go:embed shaders/undistort.wgsl
var undistortShaderWGSL string

// formatSpec maps a pixel format onto its GPU rendition: the color
// target format, the read_pixel selector, the divisor that brings
// background colors from storage scale into the shader's working
// scale, and the byte width of one target texel. 16-bit formats render
// into float targets at their raw integer scale and narrow back to
// uint16 during readback.
type formatSpec struct {
	texFormat  gputypes.TextureFormat
	selector   string
	bgScaler   float32
	texelBytes int
	narrow16   bool
}

func specFor(format undistort.PixelFormat) (formatSpec, error) {
	switch format {
	case undistort.RGBA8:
		return formatSpec{gputypes.TextureFormatRGBA8Unorm, "0u", 255, 4, false}, nil
	case undistort.BGRA8:
		return formatSpec{gputypes.TextureFormatBGRA8Unorm, "1u", 255, 4, false}, nil
	case undistort.Gray8:
		return formatSpec{gputypes.TextureFormatR8Unorm, "2u", 255, 1, false}, nil
	case undistort.RGBA16:
		return formatSpec{gputypes.TextureFormatRGBA32Float, "3u", 1, 16, true}, nil
	case undistort.Gray16:
		return formatSpec{gputypes.TextureFormatR32Float, "4u", 1, 4, true}, nil
	case undistort.RGBAf32:
		return formatSpec{gputypes.TextureFormatRGBA32Float, "5u", 1, 16, false}, nil
	}
	return formatSpec{}, fmt.Errorf("gpu: unsupported pixel format %s", format)
}

// specializeShader substitutes the format and kernel tokens into the
// WGSL source. The tap count becomes a literal so the sampling loops
// unroll, and the dead read_pixel branches fold away at compile time.
func specializeShader(spec formatSpec, interp undistort.Interpolation) string {
	return strings.NewReplacer(
		"INPUT_FORMAT", spec.selector,
		"INTERP_TAPS", fmt.Sprintf("%du", interp),
	).Replace(undistortShaderWGSL)
}

// Compiled shaders are memoized per format and kernel combination.
// The key space is tiny, so entries are never evicted. The compile runs
// under the lock to keep concurrent engine construction from compiling
// the same variant twice.
type shaderKey struct {
	format undistort.PixelFormat
	interp undistort.Interpolation
}

var (
	shaderMu    sync.Mutex
	shaderCache = make(map[shaderKey][]uint32)
)

func compiledShader(spec formatSpec, format undistort.PixelFormat, interp undistort.Interpolation) ([]uint32, error) {
	shaderMu.Lock()
	defer shaderMu.Unlock()

	key := shaderKey{format: format, interp: interp}
	if code, ok := shaderCache[key]; ok {
		return code, nil
	}
	code, err := compileShader(specializeShader(spec, interp))
	if err != nil {
		return nil, err
	}
	shaderCache[key] = code
	return code, nil
}

// compileShader runs the specialized WGSL through naga, returning
// SPIR-V words for the Vulkan backend.
func compileShader(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile shader: %w", err)
	}

	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
