package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gostab/undistort"
)

const (
	// maxDim is the largest frame edge the engine accepts.
	maxDim = 8192

	// copyBytesPerRowAlignment is the row alignment required for
	// texture-to-buffer copies.
	copyBytesPerRowAlignment = 256

	// globalsSize is the byte size of the Globals uniform: eight u32
	// followed by a vec4<f32>.
	globalsSize = 48

	gpuWaitTimeout = 5 * time.Second
)

// Engine remaps frames on the shared GPU device. An engine is built
// for fixed input and output geometries, a pixel format, and an
// interpolation kernel; the shader is specialized and compiled once at
// construction.
//
// Engine is not safe for concurrent use.
type Engine struct {
	dev *deviceProvider

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
	bindGroup  hal.BindGroup

	outTex  hal.Texture
	outView hal.TextureView

	inBuf      hal.Buffer
	paramsBuf  hal.Buffer
	coeffsBuf  hal.Buffer
	globalsBuf hal.Buffer
	stagingBuf hal.Buffer

	in, out undistort.FrameDesc
	format  undistort.PixelFormat
	interp  undistort.Interpolation
	spec    formatSpec

	inSize       int
	paramsSize   int
	texRowBytes  int
	paddedStride int
	readback     []byte

	bg [4]float32
}

// NewEngine creates a GPU remap engine for the given geometries. The
// background color is given on the format's storage scale. The shared
// device is opened on first use; construction fails with ErrNoDevice
// when no GPU is available.
func NewEngine(in, out undistort.FrameDesc, format undistort.PixelFormat, interp undistort.Interpolation, bg [4]float32) (*Engine, error) {
	if in.Height < 4 || out.Height < 4 ||
		in.Width > maxDim || out.Width > maxDim ||
		in.Width < 1 || out.Width < 1 {
		return nil, fmt.Errorf("%w: input %dx%d, output %dx%d",
			undistort.ErrInvalidSize, in.Width, in.Height, out.Width, out.Height)
	}
	spec, err := specFor(format)
	if err != nil {
		return nil, err
	}
	bpp := format.BytesPerPixel()
	if in.Stride < in.Width*bpp || out.Stride < out.Width*bpp {
		return nil, fmt.Errorf("%w: input stride %d, output stride %d, row bytes %d/%d",
			undistort.ErrInvalidStride, in.Stride, out.Stride, in.Width*bpp, out.Width*bpp)
	}
	// The shader reads source texels as whole u32 words, so the input
	// stride must keep every pixel's bytes within word boundaries.
	if align := min(bpp, 4); in.Stride%align != 0 {
		return nil, fmt.Errorf("%w: input stride %d not a multiple of %d for %s",
			undistort.ErrInvalidStride, in.Stride, align, format)
	}
	if interp != undistort.Bilinear && interp != undistort.Bicubic && interp != undistort.Lanczos4 {
		return nil, fmt.Errorf("gpu: unknown interpolation %d", interp)
	}

	dev, err := acquire()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		dev:    dev,
		in:     in,
		out:    out,
		format: format,
		interp: interp,
		spec:   spec,
		bg:     bg,
	}
	if err := e.createResources(spec); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// SetBackground replaces the background color, on the storage scale.
// The new color takes effect on the next processed frame.
func (e *Engine) SetBackground(bg [4]float32) { e.bg = bg }

// AdapterName returns the name of the adapter the engine runs on.
func (e *Engine) AdapterName() string { return e.dev.adapterName }

func (e *Engine) createResources(spec formatSpec) error {
	device := e.dev.device
	queue := e.dev.queue

	code, err := compiledShader(spec, e.format, e.interp)
	if err != nil {
		return err
	}
	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "undistort_shader",
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return fmt.Errorf("gpu: create shader module: %w", err)
	}
	e.shader = shader

	// Buffers. The input buffer is read as an array<u32>, so its size
	// is rounded up to a word boundary.
	e.inSize = e.in.Stride * e.in.Height
	inBufSize := (e.inSize + 3) &^ 3
	e.paramsSize = 4 * 9 * (e.in.Height + 2)

	e.texRowBytes = e.out.Width * spec.texelBytes
	e.paddedStride = padRowBytes(e.texRowBytes)
	stagingSize := e.paddedStride * e.out.Height
	e.readback = make([]byte, stagingSize)

	if e.inBuf, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "undistort_input", Size: uint64(inBufSize),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("gpu: create input buffer: %w", err)
	}
	if e.paramsBuf, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "undistort_params", Size: uint64(e.paramsSize),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("gpu: create params buffer: %w", err)
	}
	coeffsBytes := floatsToBytes(undistort.KernelCoeffs())
	if e.coeffsBuf, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "undistort_coeffs", Size: uint64(len(coeffsBytes)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("gpu: create coeffs buffer: %w", err)
	}
	queue.WriteBuffer(e.coeffsBuf, 0, coeffsBytes)
	if e.globalsBuf, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "undistort_globals", Size: globalsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("gpu: create globals buffer: %w", err)
	}
	if e.stagingBuf, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "undistort_staging", Size: uint64(stagingSize),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("gpu: create staging buffer: %w", err)
	}

	// Output color target.
	if e.outTex, err = device.CreateTexture(&hal.TextureDescriptor{
		Label:         "undistort_out",
		Size:          hal.Extent3D{Width: uint32(e.out.Width), Height: uint32(e.out.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        spec.texFormat,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	}); err != nil {
		return fmt.Errorf("gpu: create output texture: %w", err)
	}
	if e.outView, err = device.CreateTextureView(e.outTex, &hal.TextureViewDescriptor{
		Label:         "undistort_out_view",
		Format:        spec.texFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	}); err != nil {
		return fmt.Errorf("gpu: create output view: %w", err)
	}

	if e.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "undistort_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageFragment,
				Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageFragment,
				Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageFragment,
				Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		},
	}); err != nil {
		return fmt.Errorf("gpu: create bind group layout: %w", err)
	}
	if e.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "undistort_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{e.bindLayout},
	}); err != nil {
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}

	if e.pipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "undistort_pipeline",
		Layout: e.pipeLayout,
		Vertex: hal.VertexState{
			Module:     e.shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     e.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: spec.texFormat, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}); err != nil {
		return fmt.Errorf("gpu: create render pipeline: %w", err)
	}

	if e.bindGroup, err = device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "undistort_bind",
		Layout: e.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: e.globalsBuf.NativeHandle(), Offset: 0, Size: globalsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: e.paramsBuf.NativeHandle(), Offset: 0, Size: uint64(e.paramsSize)}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: e.inBuf.NativeHandle(), Offset: 0, Size: uint64(inBufSize)}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: e.coeffsBuf.NativeHandle(), Offset: 0, Size: uint64(len(coeffsBytes))}},
		},
	}); err != nil {
		return fmt.Errorf("gpu: create bind group: %w", err)
	}
	return nil
}

// Process remaps one frame. A frame whose geometry does not match the
// engine's is logged and skipped.
func (e *Engine) Process(in, out *undistort.Frame, t *undistort.FrameTransform) error {
	if len(in.Pix) != e.inSize || in.Width != e.in.Width || in.Height != e.in.Height || in.Stride != e.in.Stride {
		slogger().Error("gpu: input buffer size mismatch", "have", len(in.Pix), "want", e.inSize)
		return fmt.Errorf("%w: input buffer", undistort.ErrSizeMismatch)
	}
	outSize := e.out.Stride * e.out.Height
	if len(out.Pix) != outSize || out.Width != e.out.Width || out.Height != e.out.Height || out.Stride != e.out.Stride {
		slogger().Error("gpu: output buffer size mismatch", "have", len(out.Pix), "want", outSize)
		return fmt.Errorf("%w: output buffer", undistort.ErrSizeMismatch)
	}
	flat := t.Flatten()
	if len(flat)*4 > e.paramsSize {
		slogger().Error("gpu: params buffer size mismatch", "have", len(flat)*4, "want", e.paramsSize)
		return fmt.Errorf("%w: params buffer", undistort.ErrSizeMismatch)
	}

	device := e.dev.device
	queue := e.dev.queue

	queue.WriteBuffer(e.paramsBuf, 0, floatsToBytes(flat))
	queue.WriteBuffer(e.globalsBuf, 0, e.packGlobals(uint32(t.Rows())))
	queue.WriteBuffer(e.inBuf, 0, in.Pix)

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "undistort_encoder"})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("undistort_frame"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "undistort_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       e.outView,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	rp.SetPipeline(e.pipeline)
	rp.SetBindGroup(0, e.bindGroup, nil)
	rp.Draw(6, 1, 0, 0)
	rp.End()

	// The color attachment must transition before the copy.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: e.outTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	encoder.CopyTextureToBuffer(e.outTex, e.stagingBuf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(e.paddedStride),
			RowsPerImage: uint32(e.out.Height),
		},
		TextureBase: hal.ImageCopyTexture{Texture: e.outTex, MipLevel: 0},
		Size:        hal.Extent3D{Width: uint32(e.out.Width), Height: uint32(e.out.Height), DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}
	fenceOK, err := device.Wait(fence, 1, gpuWaitTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("gpu: wait for frame: ok=%v err=%w", fenceOK, err)
	}

	if !e.spec.narrow16 && e.paddedStride == e.out.Stride {
		// Fast path: no row padding to strip.
		return queue.ReadBuffer(e.stagingBuf, 0, out.Pix)
	}

	if err := queue.ReadBuffer(e.stagingBuf, 0, e.readback); err != nil {
		return fmt.Errorf("gpu: readback: %w", err)
	}
	if e.spec.narrow16 {
		narrowRows(e.readback, out.Pix, e.paddedStride, e.out.Stride, e.out.Width*e.spec.texelBytes/4, e.out.Height)
	} else {
		stripRowPadding(e.readback, out.Pix, e.paddedStride, e.out.Stride, e.texRowBytes, e.out.Height)
	}
	return nil
}

// Close releases the engine's GPU resources. The shared device stays
// open for other engines.
func (e *Engine) Close() {
	device := e.dev.device
	if device == nil {
		return
	}
	if e.bindGroup != nil {
		device.DestroyBindGroup(e.bindGroup)
		e.bindGroup = nil
	}
	if e.pipeline != nil {
		device.DestroyRenderPipeline(e.pipeline)
		e.pipeline = nil
	}
	if e.pipeLayout != nil {
		device.DestroyPipelineLayout(e.pipeLayout)
		e.pipeLayout = nil
	}
	if e.bindLayout != nil {
		device.DestroyBindGroupLayout(e.bindLayout)
		e.bindLayout = nil
	}
	if e.shader != nil {
		device.DestroyShaderModule(e.shader)
		e.shader = nil
	}
	if e.outView != nil {
		device.DestroyTextureView(e.outView)
		e.outView = nil
	}
	if e.outTex != nil {
		device.DestroyTexture(e.outTex)
		e.outTex = nil
	}
	for _, buf := range []*hal.Buffer{&e.inBuf, &e.paramsBuf, &e.coeffsBuf, &e.globalsBuf, &e.stagingBuf} {
		if *buf != nil {
			device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
}

// packGlobals serializes the Globals uniform. Layout must match the
// struct in undistort.wgsl: eight u32 then a vec4<f32>.
func (e *Engine) packGlobals(numParams uint32) []byte {
	buf := make([]byte, globalsSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(e.in.Width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(e.in.Height))
	binary.LittleEndian.PutUint32(buf[8:], uint32(e.out.Width))
	binary.LittleEndian.PutUint32(buf[12:], uint32(e.out.Height))
	binary.LittleEndian.PutUint32(buf[16:], numParams)
	binary.LittleEndian.PutUint32(buf[20:], uint32(e.interp))
	binary.LittleEndian.PutUint32(buf[24:], uint32(e.in.Stride))
	binary.LittleEndian.PutUint32(buf[28:], 0)
	for i, v := range e.bg {
		binary.LittleEndian.PutUint32(buf[32+i*4:], math.Float32bits(v/e.spec.bgScaler))
	}
	return buf
}

// padRowBytes rounds a row byte count up to the copy alignment.
func padRowBytes(rowBytes int) int {
	align := copyBytesPerRowAlignment
	return rowBytes + (align-rowBytes%align)%align
}

// stripRowPadding copies the staging buffer's rows into the caller's
// buffer, dropping the alignment padding at the end of each row.
func stripRowPadding(src, dst []byte, paddedStride, dstStride, rowBytes, rows int) {
	for y := 0; y < rows; y++ {
		copy(dst[y*dstStride:y*dstStride+rowBytes], src[y*paddedStride:y*paddedStride+rowBytes])
	}
}

// narrowRows converts float rows from the staging buffer into uint16
// samples, clamping to the 16-bit range with round-to-nearest.
func narrowRows(src, dst []byte, paddedStride, dstStride, samplesPerRow, rows int) {
	for y := 0; y < rows; y++ {
		srcRow := src[y*paddedStride:]
		dstRow := dst[y*dstStride:]
		for i := 0; i < samplesPerRow; i++ {
			v := math.Float32frombits(binary.LittleEndian.Uint32(srcRow[i*4:]))
			if v < 0 {
				v = 0
			} else if v > 65535 {
				v = 65535
			}
			binary.LittleEndian.PutUint16(dstRow[i*2:], uint16(v+0.5))
		}
	}
}

// floatsToBytes serializes float32 values little-endian.
func floatsToBytes(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
