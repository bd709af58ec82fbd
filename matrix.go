package undistort

// Matrix3 represents a 3x3 projective transformation (homography) in
// row-major order:
//
//	| m0  m1  m2 |
//	| m3  m4  m5 |
//	| m6  m7  m8 |
//
// Applied to a point (x, y, 1) it yields the homogeneous coordinates
//
//	x' = m0*x + m1*y + m2
//	y' = m3*x + m4*y + m5
//	w  = m6*x + m7*y + m8
type Matrix3 [9]float64

// Identity3 returns the identity transformation.
func Identity3() Matrix3 {
	return Matrix3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Multiply multiplies two matrices (m * other).
func (m Matrix3) Multiply(other Matrix3) Matrix3 {
	var r Matrix3
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			r[row*3+col] = m[row*3]*other[col] +
				m[row*3+1]*other[3+col] +
				m[row*3+2]*other[6+col]
		}
	}
	return r
}

// Apply transforms the point (x, y, 1), returning the homogeneous
// coordinates before the perspective divide. Callers must check w
// before dividing.
func (m Matrix3) Apply(x, y float64) (px, py, w float64) {
	px = m[0]*x + m[1]*y + m[2]
	py = m[3]*x + m[4]*y + m[5]
	w = m[6]*x + m[7]*y + m[8]
	return
}

// IsIdentity reports whether m is exactly the identity matrix.
func (m Matrix3) IsIdentity() bool {
	return m == Identity3()
}
