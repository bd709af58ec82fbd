// Package undistort corrects fisheye lens distortion in video frames.
//
// A frame is remapped through a compiled FrameTransform: for every
// output pixel the engines invert the correction pipeline, project
// through the per-scanline camera rotation, re-apply the lens model
// and resample the source frame with a shared polyphase coefficient
// bank. The CPU engine distributes scanlines over a worker pool; the
// gpu subpackage runs the same pipeline as a fragment shader.
//
// Typical use:
//
//	params := undistort.Params{
//		Profile:          profile,
//		Rotations:        rotations,
//		CorrectionAmount: 1,
//	}
//	t, err := params.Compile()
//	if err != nil {
//		return err
//	}
//	engine, err := undistort.NewCPUEngine(in.Desc(), out.Desc(),
//		undistort.RGBA8, undistort.Lanczos4, bg)
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//	err = engine.Process(in, out, t)
//
// UndistortPoints applies the same model to individual points, for
// mapping feature tracks into corrected space.
package undistort
