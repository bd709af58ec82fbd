// Command undistort corrects fisheye lens distortion in a PNG image.
package main

import (
	"flag"
	"image"
	"image/png"
	"log"
	"math"
	"os"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/gostab/undistort"
	"github.com/gostab/undistort/gpu"
)

func main() {
	var (
		input  = flag.String("input", "", "input PNG file")
		output = flag.String("output", "out.png", "output PNG file")

		fx = flag.Float64("fx", 0, "focal length x in pixels (default 0.8 * width)")
		fy = flag.Float64("fy", 0, "focal length y in pixels (default fx)")
		cx = flag.Float64("cx", -1, "principal point x (default image center)")
		cy = flag.Float64("cy", -1, "principal point y (default image center)")

		k1 = flag.Float64("k1", 0, "radial distortion coefficient k1")
		k2 = flag.Float64("k2", 0, "radial distortion coefficient k2")
		k3 = flag.Float64("k3", 0, "radial distortion coefficient k3")
		k4 = flag.Float64("k4", 0, "radial distortion coefficient k4")

		amount = flag.Float64("amount", 1, "correction amount in [0, 1]")
		fov    = flag.Float64("fov", 1, "output field of view scale")
		rlimit = flag.Float64("rlimit", 0, "normalized radius limit, 0 disables")

		yaw   = flag.Float64("yaw", 0, "camera yaw in degrees")
		pitch = flag.Float64("pitch", 0, "camera pitch in degrees")
		roll  = flag.Float64("roll", 0, "camera roll in degrees")

		background = flag.String("background", "solid", "edge policy: solid, repeat or mirror")
		interp     = flag.String("interpolation", "bilinear", "kernel: bilinear, bicubic or lanczos4")
		scale      = flag.Float64("scale", 1, "output scale factor")
		useGPU     = flag.Bool("gpu", false, "remap on the GPU")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("missing -input")
	}

	src, err := loadPNG(*input)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *input, err)
	}
	in := undistort.FrameFromImage(src)
	out := undistort.NewFrame(in.Width, in.Height, undistort.RGBA8)

	profile := buildProfile(in.Width, in.Height, *fx, *fy, *cx, *cy, [4]float64{*k1, *k2, *k3, *k4})
	params := undistort.Params{
		Profile:          profile,
		Rotations:        []undistort.Matrix3{cameraRotation(profile, *yaw, *pitch, *roll)},
		CorrectionAmount: *amount,
		RLimit:           *rlimit,
		FOV:              *fov,
		Background:       parseBackground(*background),
	}
	transform, err := params.Compile()
	if err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}

	engine, err := newEngine(in, out, parseInterpolation(*interp), *useGPU)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	start := time.Now()
	if err := engine.Process(in, out, transform); err != nil {
		log.Fatalf("Remap failed: %v", err)
	}
	log.Printf("Remapped %dx%d in %v", in.Width, in.Height, time.Since(start))

	result := image.Image(out.ToImage())
	if *scale != 1 {
		result = resize(result, *scale)
	}
	if err := savePNG(*output, result); err != nil {
		log.Fatalf("Failed to save %s: %v", *output, err)
	}
	log.Printf("Saved %s", *output)
}

// remapper is satisfied by both the CPU and the GPU engine.
type remapper interface {
	Process(in, out *undistort.Frame, t *undistort.FrameTransform) error
	Close()
}

func newEngine(in, out *undistort.Frame, interp undistort.Interpolation, useGPU bool) (remapper, error) {
	if useGPU {
		name, err := gpu.Initialize()
		if err != nil {
			return nil, err
		}
		log.Printf("Using GPU adapter %s", name)
		e, err := gpu.NewEngine(in.Desc(), out.Desc(), undistort.RGBA8, interp, [4]float32{})
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	e, err := undistort.NewCPUEngine(in.Desc(), out.Desc(), undistort.RGBA8, interp, [4]float32{})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func buildProfile(width, height int, fx, fy, cx, cy float64, k [4]float64) undistort.LensProfile {
	if fx == 0 {
		fx = 0.8 * float64(width)
	}
	if fy == 0 {
		fy = fx
	}
	if cx < 0 {
		cx = float64(width) / 2
	}
	if cy < 0 {
		cy = float64(height) / 2
	}
	return undistort.LensProfile{Fx: fx, Fy: fy, Cx: cx, Cy: cy, K: k}
}

// cameraRotation maps output pixels to rotated normalized camera
// coordinates: the inverse camera matrix followed by the yaw, pitch
// and roll rotation.
func cameraRotation(p undistort.LensProfile, yawDeg, pitchDeg, rollDeg float64) undistort.Matrix3 {
	kinv := undistort.Matrix3{
		1 / p.Fx, 0, -p.Cx / p.Fx,
		0, 1 / p.Fy, -p.Cy / p.Fy,
		0, 0, 1,
	}

	y := yawDeg * math.Pi / 180
	x := pitchDeg * math.Pi / 180
	z := rollDeg * math.Pi / 180

	ry := undistort.Matrix3{
		math.Cos(y), 0, math.Sin(y),
		0, 1, 0,
		-math.Sin(y), 0, math.Cos(y),
	}
	rx := undistort.Matrix3{
		1, 0, 0,
		0, math.Cos(x), -math.Sin(x),
		0, math.Sin(x), math.Cos(x),
	}
	rz := undistort.Matrix3{
		math.Cos(z), -math.Sin(z), 0,
		math.Sin(z), math.Cos(z), 0,
		0, 0, 1,
	}

	return rz.Multiply(rx).Multiply(ry).Multiply(kinv)
}

func parseBackground(s string) undistort.BackgroundMode {
	switch s {
	case "repeat":
		return undistort.BackgroundRepeat
	case "mirror":
		return undistort.BackgroundMirror
	case "solid":
		return undistort.BackgroundSolid
	}
	log.Fatalf("Unknown background mode %q", s)
	return undistort.BackgroundSolid
}

func parseInterpolation(s string) undistort.Interpolation {
	switch s {
	case "bilinear":
		return undistort.Bilinear
	case "bicubic":
		return undistort.Bicubic
	case "lanczos4":
		return undistort.Lanczos4
	}
	log.Fatalf("Unknown interpolation %q", s)
	return undistort.Bilinear
}

func resize(img image.Image, scale float64) image.Image {
	b := img.Bounds()
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
