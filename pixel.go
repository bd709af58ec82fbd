package undistort

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
)

// PixelFormat identifies the scalar type and channel layout of a frame
// buffer.
type PixelFormat uint32

const (
	// RGBA8 is 8-bit RGBA, 4 bytes per pixel.
	RGBA8 PixelFormat = iota
	// BGRA8 is 8-bit BGRA, 4 bytes per pixel.
	BGRA8
	// Gray8 is single-channel 8-bit, 1 byte per pixel.
	Gray8
	// RGBA16 is 16-bit little-endian RGBA, 8 bytes per pixel.
	RGBA16
	// Gray16 is single-channel 16-bit little-endian, 2 bytes per pixel.
	Gray16
	// RGBAf32 is 32-bit float little-endian RGBA, 16 bytes per pixel.
	RGBAf32
)

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case RGBA8:
		return "rgba8"
	case BGRA8:
		return "bgra8"
	case Gray8:
		return "gray8"
	case RGBA16:
		return "rgba16"
	case Gray16:
		return "gray16"
	case RGBAf32:
		return "rgbaf32"
	}
	return "unknown"
}

// Channels returns the number of color channels.
func (f PixelFormat) Channels() int {
	switch f {
	case Gray8, Gray16:
		return 1
	default:
		return 4
	}
}

// ScalarBytes returns the byte size of one channel value.
func (f PixelFormat) ScalarBytes() int {
	switch f {
	case RGBA8, BGRA8, Gray8:
		return 1
	case RGBA16, Gray16:
		return 2
	case RGBAf32:
		return 4
	}
	return 0
}

// BytesPerPixel returns the byte size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	return f.Channels() * f.ScalarBytes()
}

// Scale returns the storage-scale white level: interpolation runs on
// float values in [0, Scale] and background colors are given on the
// same scale.
func (f PixelFormat) Scale() float32 {
	switch f {
	case RGBA8, BGRA8, Gray8:
		return 255
	case RGBA16, Gray16:
		return 65535
	case RGBAf32:
		return 1
	}
	return 0
}

func (f PixelFormat) valid() bool { return f <= RGBAf32 }

// pixelReader loads one pixel at byte offset off as float channels on
// the storage scale. The caller guarantees the offset is in bounds.
type pixelReader func(pix []byte, off int) [4]float32

// pixelWriter stores float channels back at byte offset off, clamping
// to the storage range.
type pixelWriter func(pix []byte, off int, px [4]float32)

// pixelFuncs resolves the decode and encode routines for the format
// once, so per-pixel work never switches on the format.
func (f PixelFormat) pixelFuncs() (pixelReader, pixelWriter, error) {
	switch f {
	case RGBA8:
		return readRGBA8, writeRGBA8, nil
	case BGRA8:
		return readBGRA8, writeBGRA8, nil
	case Gray8:
		return readGray8, writeGray8, nil
	case RGBA16:
		return readRGBA16, writeRGBA16, nil
	case Gray16:
		return readGray16, writeGray16, nil
	case RGBAf32:
		return readRGBAf32, writeRGBAf32, nil
	}
	return nil, nil, fmt.Errorf("%w: %d", ErrBadFormat, f)
}

func clampScale(v, scale float32) float32 {
	if v < 0 {
		return 0
	}
	if v > scale {
		return scale
	}
	return v
}

func readRGBA8(pix []byte, off int) [4]float32 {
	return [4]float32{
		float32(pix[off]), float32(pix[off+1]),
		float32(pix[off+2]), float32(pix[off+3]),
	}
}

func writeRGBA8(pix []byte, off int, px [4]float32) {
	pix[off] = uint8(clampScale(px[0], 255) + 0.5)
	pix[off+1] = uint8(clampScale(px[1], 255) + 0.5)
	pix[off+2] = uint8(clampScale(px[2], 255) + 0.5)
	pix[off+3] = uint8(clampScale(px[3], 255) + 0.5)
}

func readBGRA8(pix []byte, off int) [4]float32 {
	return [4]float32{
		float32(pix[off+2]), float32(pix[off+1]),
		float32(pix[off]), float32(pix[off+3]),
	}
}

func writeBGRA8(pix []byte, off int, px [4]float32) {
	pix[off] = uint8(clampScale(px[2], 255) + 0.5)
	pix[off+1] = uint8(clampScale(px[1], 255) + 0.5)
	pix[off+2] = uint8(clampScale(px[0], 255) + 0.5)
	pix[off+3] = uint8(clampScale(px[3], 255) + 0.5)
}

func readGray8(pix []byte, off int) [4]float32 {
	return [4]float32{float32(pix[off])}
}

func writeGray8(pix []byte, off int, px [4]float32) {
	pix[off] = uint8(clampScale(px[0], 255) + 0.5)
}

func readRGBA16(pix []byte, off int) [4]float32 {
	return [4]float32{
		float32(binary.LittleEndian.Uint16(pix[off:])),
		float32(binary.LittleEndian.Uint16(pix[off+2:])),
		float32(binary.LittleEndian.Uint16(pix[off+4:])),
		float32(binary.LittleEndian.Uint16(pix[off+6:])),
	}
}

func writeRGBA16(pix []byte, off int, px [4]float32) {
	binary.LittleEndian.PutUint16(pix[off:], uint16(clampScale(px[0], 65535)+0.5))
	binary.LittleEndian.PutUint16(pix[off+2:], uint16(clampScale(px[1], 65535)+0.5))
	binary.LittleEndian.PutUint16(pix[off+4:], uint16(clampScale(px[2], 65535)+0.5))
	binary.LittleEndian.PutUint16(pix[off+6:], uint16(clampScale(px[3], 65535)+0.5))
}

func readGray16(pix []byte, off int) [4]float32 {
	return [4]float32{float32(binary.LittleEndian.Uint16(pix[off:]))}
}

func writeGray16(pix []byte, off int, px [4]float32) {
	binary.LittleEndian.PutUint16(pix[off:], uint16(clampScale(px[0], 65535)+0.5))
}

func readRGBAf32(pix []byte, off int) [4]float32 {
	return [4]float32{
		math.Float32frombits(binary.LittleEndian.Uint32(pix[off:])),
		math.Float32frombits(binary.LittleEndian.Uint32(pix[off+4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(pix[off+8:])),
		math.Float32frombits(binary.LittleEndian.Uint32(pix[off+12:])),
	}
}

func writeRGBAf32(pix []byte, off int, px [4]float32) {
	binary.LittleEndian.PutUint32(pix[off:], math.Float32bits(px[0]))
	binary.LittleEndian.PutUint32(pix[off+4:], math.Float32bits(px[1]))
	binary.LittleEndian.PutUint32(pix[off+8:], math.Float32bits(px[2]))
	binary.LittleEndian.PutUint32(pix[off+12:], math.Float32bits(px[3]))
}

// FrameDesc describes frame geometry without pixel data. Engines are
// constructed for fixed input and output geometries.
type FrameDesc struct {
	Width  int
	Height int
	Stride int
}

// validate checks the geometry against the format.
func (d FrameDesc) validate(format PixelFormat) error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, d.Width, d.Height)
	}
	if d.Stride < d.Width*format.BytesPerPixel() {
		return fmt.Errorf("%w: stride %d for width %d (%s)", ErrInvalidStride, d.Stride, d.Width, format)
	}
	return nil
}

// matches reports whether a frame has exactly this geometry.
func (d FrameDesc) matches(fr *Frame) bool {
	return fr.Width == d.Width && fr.Height == d.Height &&
		fr.Stride == d.Stride && len(fr.Pix) == d.Stride*d.Height
}

// Desc returns the frame's geometry.
func (fr *Frame) Desc() FrameDesc {
	return FrameDesc{Width: fr.Width, Height: fr.Height, Stride: fr.Stride}
}

// Frame describes one image buffer handed to an engine: dimensions, a
// row stride in bytes, and the raw pixel data.
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// validate checks the geometry against the format and the data length.
func (fr *Frame) validate(format PixelFormat) error {
	if fr.Width <= 0 || fr.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, fr.Width, fr.Height)
	}
	if fr.Stride < fr.Width*format.BytesPerPixel() {
		return fmt.Errorf("%w: stride %d for width %d (%s)", ErrInvalidStride, fr.Stride, fr.Width, format)
	}
	if len(fr.Pix) != fr.Stride*fr.Height {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrSizeMismatch, len(fr.Pix), fr.Stride*fr.Height)
	}
	return nil
}

// NewFrame allocates a tightly packed frame for the format.
func NewFrame(width, height int, format PixelFormat) *Frame {
	stride := width * format.BytesPerPixel()
	return &Frame{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// FrameFromImage copies an image into a tightly packed RGBA8 frame.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			rgba.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return &Frame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: rgba.Stride,
		Pix:    rgba.Pix,
	}
}

// ToImage wraps an RGBA8 frame as an image.RGBA without copying.
func (fr *Frame) ToImage() *image.RGBA {
	return &image.RGBA{
		Pix:    fr.Pix,
		Stride: fr.Stride,
		Rect:   image.Rect(0, 0, fr.Width, fr.Height),
	}
}
