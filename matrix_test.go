package undistort

import (
	"math"
	"testing"
)

func TestIdentity3(t *testing.T) {
	m := Identity3()
	if !m.IsIdentity() {
		t.Fatal("Identity3 is not identity")
	}
	px, py, w := m.Apply(3.5, -2)
	if px != 3.5 || py != -2 || w != 1 {
		t.Fatalf("Apply = (%v, %v, %v)", px, py, w)
	}
}

func TestMatrix3Multiply(t *testing.T) {
	// Translation then scale.
	translate := Matrix3{1, 0, 5, 0, 1, -3, 0, 0, 1}
	scale := Matrix3{2, 0, 0, 0, 4, 0, 0, 0, 1}

	m := scale.Multiply(translate)
	px, py, w := m.Apply(1, 1)
	if px != 12 || py != -8 || w != 1 {
		t.Fatalf("scale*translate applied = (%v, %v, %v), want (12, -8, 1)", px, py, w)
	}

	// Multiplication does not commute for these two.
	n := translate.Multiply(scale)
	qx, qy, _ := n.Apply(1, 1)
	if qx != 7 || qy != 1 {
		t.Fatalf("translate*scale applied = (%v, %v), want (7, 1)", qx, qy)
	}
}

func TestMatrix3MultiplyIdentity(t *testing.T) {
	m := Matrix3{2, 3, 5, 7, 11, 13, 17, 19, 23}
	if got := m.Multiply(Identity3()); got != m {
		t.Fatalf("m*I = %v", got)
	}
	if got := Identity3().Multiply(m); got != m {
		t.Fatalf("I*m = %v", got)
	}
}

func TestMatrix3ApplyPerspective(t *testing.T) {
	m := Matrix3{1, 0, 0, 0, 1, 0, 0.5, 0, 1}
	px, py, w := m.Apply(2, 6)
	if px != 2 || py != 6 || math.Abs(w-2) > 1e-15 {
		t.Fatalf("Apply = (%v, %v, %v), want (2, 6, 2)", px, py, w)
	}
}
