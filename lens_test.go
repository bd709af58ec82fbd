package undistort

import (
	"errors"
	"testing"
)

func testProfile() LensProfile {
	return LensProfile{
		Fx: 800, Fy: 820,
		Cx: 960, Cy: 540,
		K: [4]float64{0.25, -0.1, 0.03, -0.005},
	}
}

func TestParamsValidate(t *testing.T) {
	valid := Params{
		Profile:          testProfile(),
		Rotations:        []Matrix3{Identity3()},
		CorrectionAmount: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"no rotations", func(p *Params) { p.Rotations = nil }},
		{"bad background", func(p *Params) { p.Background = BackgroundMode(7) }},
		{"amount below range", func(p *Params) { p.CorrectionAmount = -0.1 }},
		{"amount above range", func(p *Params) { p.CorrectionAmount = 1.5 }},
		{"negative radius limit", func(p *Params) { p.RLimit = -1 }},
		{"negative fov", func(p *Params) { p.FOV = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrBadParams) {
				t.Fatalf("err = %v, want ErrBadParams", err)
			}
		})
	}
}

func TestCompileLayout(t *testing.T) {
	rot := Matrix3{1, 2, 3, 4, 5, 6, 7, 8, 9}
	p := Params{
		Profile:          testProfile(),
		Rotations:        []Matrix3{rot},
		CorrectionAmount: 0.75,
		RLimit:           1.5,
		FOV:              1.2,
		Background:       BackgroundMirror,
	}

	ft, err := p.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if ft.Rows() != 3 {
		t.Fatalf("Rows = %d, want 3", ft.Rows())
	}

	row0 := ft.rows[0]
	want0 := [9]float32{800, 820, 960, 540, 0.25, -0.1, 0.03, -0.005, 1.5}
	if row0 != want0 {
		t.Errorf("row 0 = %v, want %v", row0, want0)
	}

	row1 := ft.rows[1]
	if row1[0] != 0.75 || row1[1] != float32(BackgroundMirror) || row1[2] != 1.2 {
		t.Errorf("row 1 = %v", row1)
	}

	want2 := [9]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if ft.rows[2] != want2 {
		t.Errorf("row 2 = %v, want %v", ft.rows[2], want2)
	}
}

func TestCompileDefaultFOV(t *testing.T) {
	p := Params{
		Profile:          testProfile(),
		Rotations:        []Matrix3{Identity3()},
		CorrectionAmount: 1,
	}
	ft, err := p.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if ft.rows[1][2] != 1 {
		t.Fatalf("zero fov compiled to %v, want 1", ft.rows[1][2])
	}
}

func TestCompileRejectsInvalid(t *testing.T) {
	p := Params{Profile: testProfile()}
	if _, err := p.Compile(); !errors.Is(err, ErrBadParams) {
		t.Fatalf("err = %v, want ErrBadParams", err)
	}
}

func TestFlatten(t *testing.T) {
	p := Params{
		Profile:          testProfile(),
		Rotations:        []Matrix3{Identity3(), Identity3()},
		CorrectionAmount: 1,
	}
	ft, err := p.Compile()
	if err != nil {
		t.Fatal(err)
	}
	flat := ft.Flatten()
	if len(flat) != ft.Rows()*9 {
		t.Fatalf("len = %d, want %d", len(flat), ft.Rows()*9)
	}
	if flat[0] != 800 || flat[9] != 1 || flat[18] != 1 {
		t.Errorf("flat rows misplaced: %v %v %v", flat[0], flat[9], flat[18])
	}
}

func TestRowForClamps(t *testing.T) {
	rots := make([]Matrix3, 4)
	for i := range rots {
		rots[i] = Identity3()
		rots[i][2] = float64(i) // marker
	}
	p := Params{Profile: testProfile(), Rotations: rots, CorrectionAmount: 1}
	ft, err := p.Compile()
	if err != nil {
		t.Fatal(err)
	}

	if got := ft.rowFor(0)[2]; got != 0 {
		t.Errorf("rowFor(0) marker = %v, want 0", got)
	}
	if got := ft.rowFor(2)[2]; got != 2 {
		t.Errorf("rowFor(2) marker = %v, want 2", got)
	}
	// Past-the-end scanlines use the last rotation.
	if got := ft.rowFor(100)[2]; got != 3 {
		t.Errorf("rowFor(100) marker = %v, want 3", got)
	}
}

func TestMiddleRow(t *testing.T) {
	rots := make([]Matrix3, 5)
	for i := range rots {
		rots[i] = Identity3()
		rots[i][2] = float64(i)
	}
	p := Params{Profile: testProfile(), Rotations: rots, CorrectionAmount: 1}
	ft, err := p.Compile()
	if err != nil {
		t.Fatal(err)
	}
	// 7 rows total, middle = 2 + (7-2)/2 = 4, rotation index 2.
	if got := ft.middleRow()[2]; got != 2 {
		t.Fatalf("middle marker = %v, want 2", got)
	}
}

func TestBackgroundModeString(t *testing.T) {
	tests := []struct {
		in   BackgroundMode
		want string
	}{
		{BackgroundSolid, "solid"},
		{BackgroundRepeat, "repeat"},
		{BackgroundMirror, "mirror"},
		{BackgroundMode(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
