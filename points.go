package undistort

import "math"

// FailedPoint is the sentinel returned for points whose inverse
// projection did not converge.
var FailedPoint = Point{X: -1000000, Y: -1000000}

// PointOptions controls the point batch transform.
type PointOptions struct {
	// PerPointRotations supplies one rotation homography per input
	// point, for rolling-shutter corrected tracks. Points past the end
	// of the slice fall back to the shared rotation.
	PerPointRotations []Matrix3

	// Secondary is an extra 3x3 matrix composed onto the shared
	// rotation, typically a new camera projection.
	Secondary *Matrix3
}

// UndistortPoints maps a batch of distorted pixel-space points into
// corrected pixel space: each point is normalized by the intrinsics,
// undistorted, rotated, and when CorrectionAmount < 1 partially
// re-distorted so it lands on the same geometry the raster engines
// produce. Points that cannot be inverted become FailedPoint.
func UndistortPoints(points []Point, params *Params, opts *PointOptions) ([]Point, error) {
	if len(points) == 0 {
		return nil, nil
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &PointOptions{}
	}

	prof := &params.Profile
	fx, fy := prof.Fx, prof.Fy
	cx, cy := prof.Cx, prof.Cy
	k := prof.K

	// Shared rotation: the temporal middle of the per-scanline set.
	rr := params.Rotations[len(params.Rotations)/2]
	if opts.Secondary != nil {
		rr = opts.Secondary.Multiply(rr)
	}

	out := make([]Point, len(points))
	for i, pi := range points {
		// normalized camera coordinates
		wx := (pi.X - cx) / fx
		wy := (pi.Y - cy) / fy

		rot := &rr
		if i < len(opts.PerPointRotations) {
			rot = &opts.PerPointRotations[i]
		}

		ux, uy, ok := undistortPoint(wx, wy, &k, 0)
		if !ok {
			out[i] = FailedPoint
			continue
		}

		px, py, pz := rot.Apply(ux, uy)
		if math.Abs(pz) < 1e-9 {
			out[i] = FailedPoint
			continue
		}
		x := px / pz
		y := py / pz

		if params.CorrectionAmount < 1 {
			x, y = (x-cx)/fx, (y-cy)/fy
			x, y = distortPoint(x, y, fx, fy, cx, cy, &k, params.CorrectionAmount)
		}
		out[i] = Point{X: x, Y: y}
	}
	return out, nil
}
