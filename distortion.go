package undistort

import "math"

// Fisheye radial model over normalized camera coordinates: the angle of
// incidence theta = atan(r) maps to the image-plane angle
// theta_d = theta * (1 + k0*theta^2 + k1*theta^4 + k2*theta^6 + k3*theta^8).

const (
	undistortEps   = 1e-6
	maxThetaFix    = 0.9
	undistortIters = 10
)

// distortPoint projects a normalized point through the distortion model
// and the intrinsics (fx, fy, cx, cy), producing pixel coordinates.
// amount in [0, 1] blends toward the undistorted geometry: 0 applies the
// full distortion, 1 leaves the point untouched.
func distortPoint(x, y, fx, fy, cx, cy float64, k *[4]float64, amount float64) (float64, float64) {
	r := math.Sqrt(x*x + y*y)

	theta := math.Atan(r)
	theta2 := theta * theta
	theta4 := theta2 * theta2
	theta6 := theta4 * theta2
	theta8 := theta4 * theta4

	thetaD := theta * (1 + k[0]*theta2 + k[1]*theta4 + k[2]*theta6 + k[3]*theta8)

	scale := 1.0
	if r != 0 {
		scale = thetaD / r
	}
	scale = 1 + (scale-1)*(1-amount)

	return fx*x*scale + cx, fy*y*scale + cy
}

// undistortPoint inverts the distortion model for a normalized point by
// Newton-Raphson iteration, returning ok=false when the iteration does
// not converge or the recovered angle flips sign. The model is only
// valid up to a 180 degree field of view; the distorted radius is
// clamped to [-pi, pi] so wider inputs still yield plausible values.
// amount blends the correction: 0 fully undistorts, 1 is a no-op.
func undistortPoint(xd, yd float64, k *[4]float64, amount float64) (float64, float64, bool) {
	thetaD := math.Sqrt(xd*xd + yd*yd)
	thetaD = math.Min(math.Max(thetaD, -math.Pi), math.Pi)

	converged := false
	theta := thetaD
	scale := 0.0

	if math.Abs(thetaD) > undistortEps {
		theta = 0

		for i := 0; i < undistortIters; i++ {
			theta2 := theta * theta
			theta4 := theta2 * theta2
			theta6 := theta4 * theta2
			theta8 := theta6 * theta2
			k0Theta2 := k[0] * theta2
			k1Theta4 := k[1] * theta4
			k2Theta6 := k[2] * theta6
			k3Theta8 := k[3] * theta8
			// thetaFix = f(theta) / f'(theta)
			thetaFix := (theta*(1+k0Theta2+k1Theta4+k2Theta6+k3Theta8) - thetaD) /
				(1 + 3*k0Theta2 + 5*k1Theta4 + 7*k2Theta6 + 9*k3Theta8)

			thetaFix = math.Min(math.Max(thetaFix, -maxThetaFix), maxThetaFix)

			theta -= thetaFix
			if math.Abs(thetaFix) < undistortEps {
				converged = true
				break
			}
		}

		scale = math.Tan(theta) / thetaD
	} else {
		converged = true
	}

	// theta is monotonic in thetaD, so a sign flip during the iteration
	// means convergence to the mirror solution behind the camera center.
	thetaFlipped := (thetaD < 0 && theta > 0) || (thetaD > 0 && theta < 0)

	if !converged || thetaFlipped {
		return 0, 0, false
	}

	scale = 1 + (scale-1)*(1-amount)
	return xd * scale, yd * scale, true
}
