package undistort

import (
	"fmt"
	"math"

	"github.com/gostab/undistort/internal/parallel"
)

// CPUEngine remaps frames on the CPU, distributing output scanlines
// over a worker pool. An engine is built for fixed input and output
// geometries and a fixed pixel format; the per-format decode and
// encode routines and the kernel tap count are resolved once at
// construction and never consulted per pixel.
type CPUEngine struct {
	in, out FrameDesc
	format  PixelFormat
	interp  Interpolation

	read  pixelReader
	write pixelWriter
	bpp   int

	bg [4]float32

	pool *parallel.WorkerPool
}

// NewCPUEngine creates a CPU remap engine for the given geometries.
// The background color is given on the format's storage scale
// (0..255 for 8-bit formats).
func NewCPUEngine(in, out FrameDesc, format PixelFormat, interp Interpolation, bg [4]float32) (*CPUEngine, error) {
	if err := in.validate(format); err != nil {
		return nil, err
	}
	if err := out.validate(format); err != nil {
		return nil, err
	}
	if !interp.valid() {
		return nil, fmt.Errorf("undistort: unknown interpolation %d", interp)
	}
	read, write, err := format.pixelFuncs()
	if err != nil {
		return nil, err
	}

	return &CPUEngine{
		in:     in,
		out:    out,
		format: format,
		interp: interp,
		read:   read,
		write:  write,
		bpp:    format.BytesPerPixel(),
		bg:     bg,
		pool:   parallel.NewWorkerPool(0),
	}, nil
}

// SetBackground replaces the background color, on the storage scale.
func (e *CPUEngine) SetBackground(bg [4]float32) { e.bg = bg }

// Close shuts down the worker pool. The engine must not be used after
// Close.
func (e *CPUEngine) Close() { e.pool.Close() }

// Process remaps one frame. Both frames must match the geometry the
// engine was built for.
func (e *CPUEngine) Process(in, out *Frame, t *FrameTransform) error {
	if !e.in.matches(in) {
		return fmt.Errorf("%w: input %dx%d stride %d, engine wants %dx%d stride %d",
			ErrSizeMismatch, in.Width, in.Height, in.Stride, e.in.Width, e.in.Height, e.in.Stride)
	}
	if !e.out.matches(out) {
		return fmt.Errorf("%w: output %dx%d stride %d, engine wants %dx%d stride %d",
			ErrSizeMismatch, out.Width, out.Height, out.Stride, e.out.Width, e.out.Height, e.out.Stride)
	}
	if t.Rows() < 3 {
		return fmt.Errorf("%w: %d rows", ErrBadParams, t.Rows())
	}

	work := make([]func(), e.out.Height)
	for y := 0; y < e.out.Height; y++ {
		y := y
		work[y] = func() { e.remapRow(in.Pix, out.Pix, y, t) }
	}
	e.pool.ExecuteAll(work)
	return nil
}

// remapRow produces one output scanline. The tap count is bound once
// here so the inner loops run against a fixed kernel width.
func (e *CPUEngine) remapRow(src, dst []byte, y int, t *FrameTransform) {
	row0 := &t.rows[0]
	row1 := &t.rows[1]

	fx, fy := float64(row0[0]), float64(row0[1])
	cx, cy := float64(row0[2]), float64(row0[3])
	k := [4]float64{float64(row0[4]), float64(row0[5]), float64(row0[6]), float64(row0[7])}
	rLimit := float64(row0[8])
	amount := float64(row1[0])
	mode := BackgroundMode(row1[1] + 0.5)
	fov := float64(row1[2])

	factor := math.Max(1-amount, 0.001)
	f2x := fx / fov / factor
	f2y := fy / fov / factor
	outCx := float64(e.out.Width) / 2
	outCy := float64(e.out.Height) / 2

	width := float64(e.in.Width)
	height := float64(e.in.Height)

	taps := int(e.interp)
	grp := taps >> 2
	offset := float64(tapOffset[grp])
	shift := phaseShift[grp]
	bank := bankIndex[grp]

	bg := e.bg
	rolling := t.Rows() > 3
	middle := t.middleRow()

	dstOff := y * e.out.Stride
	for x := 0; x < e.out.Width; x++ {
		outOff := dstOff + x*e.bpp
		if outOff < 0 || outOff+e.bpp > len(dst) {
			continue
		}

		// Source scanline for rolling shutter: project through the
		// middle rotation to find which source row this pixel reads,
		// then use that row's matrix below.
		sy := y
		if rolling {
			mx := float64(middle[0])*float64(x) + float64(middle[1])*float64(y) + float64(middle[2])
			my := float64(middle[3])*float64(x) + float64(middle[4])*float64(y) + float64(middle[5])
			mw := float64(middle[6])*float64(x) + float64(middle[7])*float64(y) + float64(middle[8])
			if mw > 0 {
				_, py := distortPoint(mx/mw, my/mw, fx, fy, cx, cy, &k, 0)
				sy = int(math.Min(math.Max(math.Round(py), 0), height))
			}
		}

		ptx, pty := float64(x), float64(y)
		if amount < 1 {
			// Re-apply the uncorrected share of the lens distortion to
			// the output coordinate.
			ux := (ptx - outCx) / f2x
			uy := (pty - outCy) / f2y
			ux, uy, ok := undistortPoint(ux, uy, &k, amount)
			if !ok {
				ux, uy = 0, 0
			}
			ptx = ux*f2x + outCx
			pty = uy*f2y + outCy
		}

		m := t.rowFor(sy)
		hx := float64(m[0])*ptx + float64(m[1])*pty + float64(m[2])
		hy := float64(m[3])*ptx + float64(m[4])*pty + float64(m[5])
		hw := float64(m[6])*ptx + float64(m[7])*pty + float64(m[8])

		if hw <= 0 {
			e.write(dst, outOff, bg)
			continue
		}
		posx := hx / hw
		posy := hy / hw

		if rLimit > 0 && posx*posx+posy*posy > rLimit*rLimit {
			e.write(dst, outOff, bg)
			continue
		}

		sxf, syf := distortPoint(posx, posy, fx, fy, cx, cy, &k, 0)

		switch mode {
		case BackgroundRepeat:
			sxf = math.Min(math.Max(sxf, 0), width-1)
			syf = math.Min(math.Max(syf, 0), height-1)
		case BackgroundMirror:
			rx := math.Round(sxf)
			ry := math.Round(syf)
			w3 := width - 3
			h3 := height - 3
			if rx > w3 {
				sxf = w3 - (rx - w3)
			}
			if rx < 3 {
				sxf = 3 + width - (w3 + rx)
			}
			if ry > h3 {
				syf = h3 - (ry - h3)
			}
			if ry < 3 {
				syf = 3 + height - (h3 + ry)
			}
		}

		// Fixed point: 5 fractional bits pick the kernel phase.
		sx0 := int32(math.Round((sxf - offset) * interTabSize))
		sy0 := int32(math.Round((syf - offset) * interTabSize))
		sx := int(sx0 >> interBits)
		sy2 := int(sy0 >> interBits)

		cxRow := coeffs[bank+(int(sx0)&(interTabSize-1))<<shift:]
		cyRow := coeffs[bank+(int(sy0)&(interTabSize-1))<<shift:]

		var sum [4]float32
		srcOff := sy2*e.in.Stride + sx*e.bpp
		for yp := 0; yp < taps; yp++ {
			if sy2+yp >= 0 && sy2+yp < e.in.Height {
				var xsum [4]float32
				for xp := 0; xp < taps; xp++ {
					var px [4]float32
					tapOff := srcOff + xp*e.bpp
					if sx+xp >= 0 && sx+xp < e.in.Width && tapOff >= 0 && tapOff+e.bpp <= len(src) {
						px = e.read(src, tapOff)
					} else {
						px = bg
					}
					c := cxRow[xp]
					xsum[0] += px[0] * c
					xsum[1] += px[1] * c
					xsum[2] += px[2] * c
					xsum[3] += px[3] * c
				}
				c := cyRow[yp]
				sum[0] += xsum[0] * c
				sum[1] += xsum[1] * c
				sum[2] += xsum[2] * c
				sum[3] += xsum[3] * c
			} else {
				c := cyRow[yp]
				sum[0] += bg[0] * c
				sum[1] += bg[1] * c
				sum[2] += bg[2] * c
				sum[3] += bg[3] * c
			}
			srcOff += e.in.Stride
		}
		e.write(dst, outOff, sum)
	}
}
