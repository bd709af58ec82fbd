package undistort

import "fmt"

// LensProfile holds the calibrated camera intrinsics and the four
// radial distortion coefficients of the fisheye model.
type LensProfile struct {
	// Fx, Fy are the focal lengths in pixels.
	Fx, Fy float64
	// Cx, Cy is the principal point in pixels.
	Cx, Cy float64
	// K are the radial distortion coefficients k1..k4.
	K [4]float64
}

// BackgroundMode selects how samples outside the source frame are
// produced.
type BackgroundMode uint32

const (
	// BackgroundSolid paints out-of-frame samples with the background
	// color.
	BackgroundSolid BackgroundMode = 0
	// BackgroundRepeat clamps sample coordinates to the frame edge.
	BackgroundRepeat BackgroundMode = 1
	// BackgroundMirror reflects sample coordinates at the frame edge.
	BackgroundMirror BackgroundMode = 2
)

// String returns the mode name.
func (m BackgroundMode) String() string {
	switch m {
	case BackgroundSolid:
		return "solid"
	case BackgroundRepeat:
		return "repeat"
	case BackgroundMirror:
		return "mirror"
	}
	return "unknown"
}

// Params describes one frame's correction: the lens, the per-scanline
// camera rotations, and the output framing controls.
type Params struct {
	Profile LensProfile

	// Rotations holds the 3x3 camera-rotation homographies, one per
	// source scanline block. A single entry means a global shutter;
	// more entries enable per-row rolling shutter correction.
	Rotations []Matrix3

	// CorrectionAmount in [0, 1] blends between the original distorted
	// geometry (0) and the fully corrected one (1).
	CorrectionAmount float64

	// RLimit rejects undistorted points whose normalized radius exceeds
	// it. Zero disables the check.
	RLimit float64

	// FOV scales the output field of view. Zero means 1.
	FOV float64

	// Background selects the edge policy for out-of-frame samples.
	Background BackgroundMode
}

// Validate checks the parameter set without compiling it.
func (p *Params) Validate() error {
	if len(p.Rotations) == 0 {
		return fmt.Errorf("%w: no rotation matrices", ErrBadParams)
	}
	if p.Background > BackgroundMirror {
		return fmt.Errorf("%w: background mode %d", ErrBadParams, p.Background)
	}
	if p.CorrectionAmount < 0 || p.CorrectionAmount > 1 {
		return fmt.Errorf("%w: correction amount %v outside [0, 1]", ErrBadParams, p.CorrectionAmount)
	}
	if p.RLimit < 0 {
		return fmt.Errorf("%w: negative radius limit", ErrBadParams)
	}
	if p.FOV < 0 {
		return fmt.Errorf("%w: negative fov", ErrBadParams)
	}
	return nil
}

// fov returns the effective field-of-view scale.
func (p *Params) fov() float64 {
	if p.FOV == 0 {
		return 1
	}
	return p.FOV
}

// FrameTransform is the compiled parameter buffer consumed by the raster
// engines. It is a sequence of 9-float rows: row 0 carries the
// intrinsics, distortion coefficients and radius limit, row 1 the
// framing controls, and rows 2..n the per-scanline rotation matrices.
type FrameTransform struct {
	rows [][9]float32
}

// Compile builds the frame transform from the parameter set.
func (p *Params) Compile() (*FrameTransform, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	rows := make([][9]float32, 2+len(p.Rotations))
	rows[0] = [9]float32{
		float32(p.Profile.Fx), float32(p.Profile.Fy),
		float32(p.Profile.Cx), float32(p.Profile.Cy),
		float32(p.Profile.K[0]), float32(p.Profile.K[1]),
		float32(p.Profile.K[2]), float32(p.Profile.K[3]),
		float32(p.RLimit),
	}
	rows[1] = [9]float32{
		float32(p.CorrectionAmount),
		float32(p.Background),
		float32(p.fov()),
	}
	for i, m := range p.Rotations {
		for j := 0; j < 9; j++ {
			rows[2+i][j] = float32(m[j])
		}
	}
	return &FrameTransform{rows: rows}, nil
}

// Rows returns the number of 9-float rows in the buffer.
func (t *FrameTransform) Rows() int { return len(t.rows) }

// Flatten returns the buffer as a flat float32 slice for GPU upload.
func (t *FrameTransform) Flatten() []float32 {
	flat := make([]float32, 0, len(t.rows)*9)
	for i := range t.rows {
		flat = append(flat, t.rows[i][:]...)
	}
	return flat
}

// rowFor returns the rotation row used for output scanline sy.
func (t *FrameTransform) rowFor(sy int) *[9]float32 {
	i := sy + 2
	if i > len(t.rows)-1 {
		i = len(t.rows) - 1
	}
	return &t.rows[i]
}

// middleRow returns the rotation row at the frame's temporal midpoint,
// used to estimate the source scanline under rolling shutter.
func (t *FrameTransform) middleRow() *[9]float32 {
	return &t.rows[2+(len(t.rows)-2)/2]
}
