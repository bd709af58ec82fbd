package undistort

import (
	"errors"
	"math"
	"testing"
)

func pointParams() *Params {
	return &Params{
		Profile:          testProfile(),
		Rotations:        []Matrix3{Identity3()},
		CorrectionAmount: 1,
	}
}

func TestUndistortPointsEmpty(t *testing.T) {
	out, err := UndistortPoints(nil, pointParams(), nil)
	if err != nil || out != nil {
		t.Fatalf("got (%v, %v)", out, err)
	}
}

func TestUndistortPointsInvalidParams(t *testing.T) {
	p := pointParams()
	p.Rotations = nil
	if _, err := UndistortPoints([]Point{Pt(0, 0)}, p, nil); !errors.Is(err, ErrBadParams) {
		t.Fatalf("err = %v, want ErrBadParams", err)
	}
}

func TestUndistortPointsPrincipalPoint(t *testing.T) {
	p := pointParams()
	// The principal point normalizes to the origin, which the model
	// leaves in place.
	out, err := UndistortPoints([]Point{Pt(p.Profile.Cx, p.Profile.Cy)}, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].X != 0 || out[0].Y != 0 {
		t.Fatalf("center mapped to %v", out[0])
	}
}

func TestUndistortPointsSecondaryProjection(t *testing.T) {
	p := pointParams()
	// Project back to pixel space through the camera matrix.
	cam := Matrix3{
		p.Profile.Fx, 0, p.Profile.Cx,
		0, p.Profile.Fy, p.Profile.Cy,
		0, 0, 1,
	}
	out, err := UndistortPoints([]Point{Pt(p.Profile.Cx, p.Profile.Cy)}, p, &PointOptions{Secondary: &cam})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].X != p.Profile.Cx || out[0].Y != p.Profile.Cy {
		t.Fatalf("center mapped to %v, want principal point", out[0])
	}
}

func TestUndistortPointsRoundTripThroughCamera(t *testing.T) {
	p := pointParams()
	prof := p.Profile
	cam := Matrix3{prof.Fx, 0, prof.Cx, 0, prof.Fy, prof.Cy, 0, 0, 1}

	// Distort a known normalized point into pixel space, then run it
	// through the batch transform with the camera projection.
	nx, ny := 0.2, -0.15
	px, py := distortPoint(nx, ny, prof.Fx, prof.Fy, prof.Cx, prof.Cy, &prof.K, 0)

	out, err := UndistortPoints([]Point{Pt(px, py)}, p, &PointOptions{Secondary: &cam})
	if err != nil {
		t.Fatal(err)
	}
	wantX := prof.Fx*nx + prof.Cx
	wantY := prof.Fy*ny + prof.Cy
	if math.Abs(out[0].X-wantX) > 1e-2 || math.Abs(out[0].Y-wantY) > 1e-2 {
		t.Fatalf("got %v, want (%v, %v)", out[0], wantX, wantY)
	}
}

func TestUndistortPointsNonInvertibleRadius(t *testing.T) {
	p := pointParams()
	// Strong negative k0 makes the forward model fold over, so points
	// far enough from the center have no inverse.
	p.Profile.K = [4]float64{-0.9, 0, 0, 0}
	pts := []Point{
		Pt(p.Profile.Cx+0.5*p.Profile.Fx, p.Profile.Cy),
		Pt(p.Profile.Cx+0.1*p.Profile.Fx, p.Profile.Cy),
	}
	out, err := UndistortPoints(pts, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != FailedPoint {
		t.Errorf("non-invertible point mapped to %v, want FailedPoint", out[0])
	}
	if out[1] == FailedPoint {
		t.Errorf("in-range point hit the failure sentinel")
	}
}

func TestUndistortPointsDegenerateRotation(t *testing.T) {
	p := pointParams()
	// A rotation with a zero bottom row projects every point to
	// infinity.
	p.Rotations = []Matrix3{{1, 0, 0, 0, 1, 0, 0, 0, 0}}
	out, err := UndistortPoints([]Point{Pt(100, 100)}, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != FailedPoint {
		t.Fatalf("got %v, want FailedPoint", out[0])
	}
}

func TestUndistortPointsPerPointRotations(t *testing.T) {
	p := pointParams()
	degenerate := Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 0}
	pts := []Point{
		Pt(p.Profile.Cx, p.Profile.Cy),
		Pt(p.Profile.Cx, p.Profile.Cy),
	}
	out, err := UndistortPoints(pts, p, &PointOptions{PerPointRotations: []Matrix3{degenerate}})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != FailedPoint {
		t.Errorf("point 0 used shared rotation: %v", out[0])
	}
	// Point 1 is past the per-point slice and falls back to the shared
	// identity rotation.
	if out[1] == FailedPoint {
		t.Errorf("point 1 did not fall back to the shared rotation")
	}
}

func TestUndistortPointsPartialCorrection(t *testing.T) {
	p := pointParams()
	p.CorrectionAmount = 0.5
	cam := Matrix3{
		p.Profile.Fx, 0, p.Profile.Cx,
		0, p.Profile.Fy, p.Profile.Cy,
		0, 0, 1,
	}
	full := pointParams()

	pt := Pt(p.Profile.Cx+120, p.Profile.Cy-80)
	partial, err := UndistortPoints([]Point{pt}, p, &PointOptions{Secondary: &cam})
	if err != nil {
		t.Fatal(err)
	}
	corrected, err := UndistortPoints([]Point{pt}, full, &PointOptions{Secondary: &cam})
	if err != nil {
		t.Fatal(err)
	}
	// Half correction lands between the input and the full correction.
	if partial[0] == FailedPoint || corrected[0] == FailedPoint {
		t.Fatal("unexpected failure sentinel")
	}
	lo, hi := pt.X, corrected[0].X
	if lo > hi {
		lo, hi = hi, lo
	}
	if partial[0].X < lo-1 || partial[0].X > hi+1 {
		t.Errorf("partial X = %v outside [%v, %v]", partial[0].X, lo, hi)
	}
}
