package gpu

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gostab/undistort"
)

func TestNewEngineRejectsBadGeometry(t *testing.T) {
	ok := undistort.FrameDesc{Width: 64, Height: 48, Stride: 256}
	tests := []struct {
		name    string
		in, out undistort.FrameDesc
	}{
		{"input too short", undistort.FrameDesc{Width: 64, Height: 3, Stride: 256}, ok},
		{"output too short", ok, undistort.FrameDesc{Width: 64, Height: 3, Stride: 256}},
		{"input too wide", undistort.FrameDesc{Width: 8193, Height: 48, Stride: 8193 * 4}, ok},
		{"output too wide", ok, undistort.FrameDesc{Width: 8193, Height: 48, Stride: 8193 * 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.in, tt.out, undistort.RGBA8, undistort.Bilinear, [4]float32{})
			if !errors.Is(err, undistort.ErrInvalidSize) {
				t.Fatalf("err = %v, want ErrInvalidSize", err)
			}
		})
	}
}

func TestNewEngineRejectsBadStride(t *testing.T) {
	ok := undistort.FrameDesc{Width: 64, Height: 48, Stride: 256}
	tests := []struct {
		name    string
		in, out undistort.FrameDesc
		format  undistort.PixelFormat
	}{
		{"zero input stride", undistort.FrameDesc{Width: 64, Height: 48}, ok, undistort.RGBA8},
		{"input stride below row bytes", undistort.FrameDesc{Width: 64, Height: 48, Stride: 16}, ok, undistort.RGBA8},
		{"output stride below row bytes", ok, undistort.FrameDesc{Width: 64, Height: 48, Stride: 16}, undistort.RGBA8},
		{"word-unaligned rgba8 stride", undistort.FrameDesc{Width: 64, Height: 48, Stride: 64*4 + 2}, ok, undistort.RGBA8},
		{"word-unaligned rgbaf32 stride", undistort.FrameDesc{Width: 64, Height: 48, Stride: 64*16 + 2},
			undistort.FrameDesc{Width: 64, Height: 48, Stride: 64 * 16}, undistort.RGBAf32},
		{"odd gray16 stride", undistort.FrameDesc{Width: 64, Height: 48, Stride: 64*2 + 1},
			undistort.FrameDesc{Width: 64, Height: 48, Stride: 64 * 2}, undistort.Gray16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.in, tt.out, tt.format, undistort.Bilinear, [4]float32{})
			if !errors.Is(err, undistort.ErrInvalidStride) {
				t.Fatalf("err = %v, want ErrInvalidStride", err)
			}
		})
	}

	// Gray8 texels are byte addressed, so an odd stride is legal. The
	// error, if any, comes from device acquisition, not validation.
	e, err := NewEngine(
		undistort.FrameDesc{Width: 64, Height: 48, Stride: 65},
		undistort.FrameDesc{Width: 64, Height: 48, Stride: 64},
		undistort.Gray8, undistort.Bilinear, [4]float32{})
	if errors.Is(err, undistort.ErrInvalidStride) || errors.Is(err, undistort.ErrInvalidSize) {
		t.Fatalf("odd gray8 stride rejected: %v", err)
	}
	if err == nil {
		e.Close()
	}
}

func TestNewEngineRejectsBadFormatAndInterp(t *testing.T) {
	desc := undistort.FrameDesc{Width: 64, Height: 48, Stride: 256}
	if _, err := NewEngine(desc, desc, undistort.PixelFormat(99), undistort.Bilinear, [4]float32{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := NewEngine(desc, desc, undistort.RGBA8, undistort.Interpolation(3), [4]float32{}); err == nil {
		t.Fatal("expected error for unknown interpolation")
	}
}

func TestPadRowBytes(t *testing.T) {
	tests := []struct{ in, want int }{
		{256, 256},
		{1, 256},
		{255, 256},
		{257, 512},
		{1024, 1024},
		{1920 * 4, 7680},
	}
	for _, tt := range tests {
		if got := padRowBytes(tt.in); got != tt.want {
			t.Errorf("padRowBytes(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStripRowPadding(t *testing.T) {
	const (
		rows     = 3
		rowBytes = 4
		padded   = 8
	)
	src := make([]byte, rows*padded)
	for y := 0; y < rows; y++ {
		for x := 0; x < rowBytes; x++ {
			src[y*padded+x] = byte(y*10 + x)
		}
		// Padding bytes must never leak into the output.
		for x := rowBytes; x < padded; x++ {
			src[y*padded+x] = 0xFF
		}
	}

	dst := make([]byte, rows*rowBytes)
	stripRowPadding(src, dst, padded, rowBytes, rowBytes, rows)

	for y := 0; y < rows; y++ {
		for x := 0; x < rowBytes; x++ {
			if got, want := dst[y*rowBytes+x], byte(y*10+x); got != want {
				t.Fatalf("dst[%d][%d] = %d, want %d", y, x, got, want)
			}
		}
	}
}

func TestNarrowRows(t *testing.T) {
	vals := []float32{0, 0.4, 0.6, 65534.5, 70000, -3}
	want := []uint16{0, 0, 1, 65535, 65535, 0}

	src := make([]byte, 256)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(src[i*4:], math.Float32bits(v))
	}
	dst := make([]byte, len(vals)*2)
	narrowRows(src, dst, 256, len(vals)*2, len(vals), 1)

	for i, w := range want {
		if got := binary.LittleEndian.Uint16(dst[i*2:]); got != w {
			t.Errorf("sample %d: got %d, want %d", i, got, w)
		}
	}
}

func TestPackGlobalsLayout(t *testing.T) {
	spec, err := specFor(undistort.RGBA8)
	if err != nil {
		t.Fatal(err)
	}
	e := &Engine{
		in:     undistort.FrameDesc{Width: 1920, Height: 1080, Stride: 7680},
		out:    undistort.FrameDesc{Width: 1280, Height: 720, Stride: 5120},
		interp: undistort.Lanczos4,
		spec:   spec,
		bg:     [4]float32{255, 127.5, 0, 255},
	}
	buf := e.packGlobals(5)
	if len(buf) != globalsSize {
		t.Fatalf("len = %d, want %d", len(buf), globalsSize)
	}

	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(buf[off:]) }
	if u32(0) != 1920 || u32(4) != 1080 {
		t.Errorf("input dims = %d x %d", u32(0), u32(4))
	}
	if u32(8) != 1280 || u32(12) != 720 {
		t.Errorf("output dims = %d x %d", u32(8), u32(12))
	}
	if u32(16) != 5 {
		t.Errorf("num params = %d, want 5", u32(16))
	}
	if u32(20) != uint32(undistort.Lanczos4) {
		t.Errorf("interpolation = %d, want %d", u32(20), undistort.Lanczos4)
	}
	if u32(24) != 7680 {
		t.Errorf("stride = %d, want 7680", u32(24))
	}

	// Background is re-normalized into the shader's working scale.
	bg0 := math.Float32frombits(u32(32))
	bg1 := math.Float32frombits(u32(36))
	if bg0 != 1 || bg1 != 0.5 {
		t.Errorf("bg = %v, %v, want 1, 0.5", bg0, bg1)
	}
}
