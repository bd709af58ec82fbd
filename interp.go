package undistort

// Interpolation selects the resampling kernel used when fetching source
// pixels. The numeric value is the kernel's tap count per axis.
type Interpolation uint32

const (
	// Bilinear uses a 2-tap triangle filter. Fastest, softest.
	Bilinear Interpolation = 2
	// Bicubic uses a 4-tap Catmull-Rom style filter.
	Bicubic Interpolation = 4
	// Lanczos4 uses an 8-tap windowed-sinc filter. Sharpest, slowest.
	Lanczos4 Interpolation = 8
)

// String returns the kernel name.
func (i Interpolation) String() string {
	switch i {
	case Bilinear:
		return "bilinear"
	case Bicubic:
		return "bicubic"
	case Lanczos4:
		return "lanczos4"
	}
	return "unknown"
}

// valid reports whether i is one of the supported kernels.
func (i Interpolation) valid() bool {
	return i == Bilinear || i == Bicubic || i == Lanczos4
}

// Source coordinates are converted to fixed point with interBits
// fractional bits; the fraction selects one of interTabSize phase rows
// from the coefficient bank.
const (
	interBits    = 5
	interTabSize = 1 << interBits
)

// Per-kernel bank geometry, indexed by tap count >> 2 (0, 1, 2).
// phaseShift is the left shift converting a phase to a row offset,
// tapOffset is subtracted from the source coordinate to center the
// kernel, and bankIndex is where the kernel's rows start in coeffs.
var (
	phaseShift = [3]uint{1, 2, 3}
	tapOffset  = [3]float32{0, 1, 3}
	bankIndex  = [3]int{0, 64, 64 + 128}
)

// coeffs is the packed polyphase coefficient bank: 32 phase rows of
// 2 bilinear taps, then 32 rows of 4 bicubic taps, then 32 rows of
// 8 lanczos4 taps. Rows are addressed as
// coeffs[bankIndex[i>>2] + phase<<phaseShift[i>>2] ...].
var coeffs = [64 + 128 + 256]float32{
	// Bilinear
	1.000000, 0.000000, 0.968750, 0.031250, 0.937500, 0.062500, 0.906250, 0.093750, 0.875000, 0.125000, 0.843750, 0.156250,
	0.812500, 0.187500, 0.781250, 0.218750, 0.750000, 0.250000, 0.718750, 0.281250, 0.687500, 0.312500, 0.656250, 0.343750,
	0.625000, 0.375000, 0.593750, 0.406250, 0.562500, 0.437500, 0.531250, 0.468750, 0.500000, 0.500000, 0.468750, 0.531250,
	0.437500, 0.562500, 0.406250, 0.593750, 0.375000, 0.625000, 0.343750, 0.656250, 0.312500, 0.687500, 0.281250, 0.718750,
	0.250000, 0.750000, 0.218750, 0.781250, 0.187500, 0.812500, 0.156250, 0.843750, 0.125000, 0.875000, 0.093750, 0.906250,
	0.062500, 0.937500, 0.031250, 0.968750,

	// Bicubic
	0.000000, 1.000000, 0.000000, 0.000000, -0.021996, 0.997841, 0.024864, -0.000710, -0.041199, 0.991516, 0.052429, -0.002747,
	-0.057747, 0.981255, 0.082466, -0.005974, -0.071777, 0.967285, 0.114746, -0.010254, -0.083427, 0.949837, 0.149040, -0.015450,
	-0.092834, 0.929138, 0.185120, -0.021423, -0.100136, 0.905418, 0.222755, -0.028038, -0.105469, 0.878906, 0.261719, -0.035156,
	-0.108971, 0.849831, 0.301781, -0.042641, -0.110779, 0.818420, 0.342712, -0.050354, -0.111031, 0.784904, 0.384285, -0.058159,
	-0.109863, 0.749512, 0.426270, -0.065918, -0.107414, 0.712471, 0.468437, -0.073494, -0.103821, 0.674011, 0.510559, -0.080750,
	-0.099220, 0.634361, 0.552406, -0.087547, -0.093750, 0.593750, 0.593750, -0.093750, -0.087547, 0.552406, 0.634361, -0.099220,
	-0.080750, 0.510559, 0.674011, -0.103821, -0.073494, 0.468437, 0.712471, -0.107414, -0.065918, 0.426270, 0.749512, -0.109863,
	-0.058159, 0.384285, 0.784904, -0.111031, -0.050354, 0.342712, 0.818420, -0.110779, -0.042641, 0.301781, 0.849831, -0.108971,
	-0.035156, 0.261719, 0.878906, -0.105469, -0.028038, 0.222755, 0.905418, -0.100136, -0.021423, 0.185120, 0.929138, -0.092834,
	-0.015450, 0.149040, 0.949837, -0.083427, -0.010254, 0.114746, 0.967285, -0.071777, -0.005974, 0.082466, 0.981255, -0.057747,
	-0.002747, 0.052429, 0.991516, -0.041199, -0.000710, 0.024864, 0.997841, -0.021996,

	// Lanczos4
	0.000000, 0.000000, 0.000000, 1.000000, 0.000000, 0.000000, 0.000000, 0.000000, -0.002981, 0.009625, -0.027053, 0.998265,
	0.029187, -0.010246, 0.003264, -0.000062, -0.005661, 0.018562, -0.051889, 0.993077, 0.060407, -0.021035, 0.006789, -0.000250,
	-0.008027, 0.026758, -0.074449, 0.984478, 0.093543, -0.032281, 0.010545, -0.000567, -0.010071, 0.034167, -0.094690, 0.972534,
	0.128459, -0.043886, 0.014499, -0.001012, -0.011792, 0.040757, -0.112589, 0.957333, 0.165004, -0.055744, 0.018613, -0.001582,
	-0.013191, 0.046507, -0.128145, 0.938985, 0.203012, -0.067742, 0.022845, -0.002271, -0.014275, 0.051405, -0.141372, 0.917621,
	0.242303, -0.079757, 0.027146, -0.003071, -0.015054, 0.055449, -0.152304, 0.893389, 0.282684, -0.091661, 0.031468, -0.003971,
	-0.015544, 0.058648, -0.160990, 0.866453, 0.323952, -0.103318, 0.035754, -0.004956, -0.015761, 0.061020, -0.167496, 0.836995,
	0.365895, -0.114591, 0.039949, -0.006011, -0.015727, 0.062590, -0.171900, 0.805208, 0.408290, -0.125335, 0.043992, -0.007117,
	-0.015463, 0.063390, -0.174295, 0.771299, 0.450908, -0.135406, 0.047823, -0.008254, -0.014995, 0.063460, -0.174786, 0.735484,
	0.493515, -0.144657, 0.051378, -0.009399, -0.014349, 0.062844, -0.173485, 0.697987, 0.535873, -0.152938, 0.054595, -0.010527,
	-0.013551, 0.061594, -0.170517, 0.659039, 0.577742, -0.160105, 0.057411, -0.011613, -0.012630, 0.059764, -0.166011, 0.618877,
	0.618877, -0.166011, 0.059764, -0.012630, -0.011613, 0.057411, -0.160105, 0.577742, 0.659039, -0.170517, 0.061594, -0.013551,
	-0.010527, 0.054595, -0.152938, 0.535873, 0.697987, -0.173485, 0.062844, -0.014349, -0.009399, 0.051378, -0.144657, 0.493515,
	0.735484, -0.174786, 0.063460, -0.014995, -0.008254, 0.047823, -0.135406, 0.450908, 0.771299, -0.174295, 0.063390, -0.015463,
	-0.007117, 0.043992, -0.125336, 0.408290, 0.805208, -0.171900, 0.062590, -0.015727, -0.006011, 0.039949, -0.114591, 0.365895,
	0.836995, -0.167496, 0.061020, -0.015761, -0.004956, 0.035754, -0.103318, 0.323952, 0.866453, -0.160990, 0.058648, -0.015544,
	-0.003971, 0.031468, -0.091661, 0.282684, 0.893389, -0.152304, 0.055449, -0.015054, -0.003071, 0.027146, -0.079757, 0.242303,
	0.917621, -0.141372, 0.051405, -0.014275, -0.002271, 0.022845, -0.067742, 0.203012, 0.938985, -0.128145, 0.046507, -0.013191,
	-0.001582, 0.018613, -0.055744, 0.165004, 0.957333, -0.112589, 0.040757, -0.011792, -0.001012, 0.014499, -0.043886, 0.128459,
	0.972534, -0.094690, 0.034167, -0.010071, -0.000567, 0.010545, -0.032281, 0.093543, 0.984478, -0.074449, 0.026758, -0.008027,
	-0.000250, 0.006789, -0.021035, 0.060407, 0.993077, -0.051889, 0.018562, -0.005661, -0.000062, 0.003264, -0.010246, 0.029187,
	0.998265, -0.027053, 0.009625, -0.002981,
}

// KernelCoeffs returns the float32 coefficient bank shared by the CPU and
// GPU samplers. The slice must not be modified.
func KernelCoeffs() []float32 { return coeffs[:] }

// kernelRow returns the coefficient row for one axis of a fixed-point
// coordinate. fixed is the coordinate scaled by interTabSize; only the
// fractional phase selects the row.
func kernelRow(interp Interpolation, fixed int32) []float32 {
	g := int(interp) >> 2
	phase := int(fixed) & (interTabSize - 1)
	start := bankIndex[g] + phase<<phaseShift[g]
	return coeffs[start : start+int(interp)]
}
