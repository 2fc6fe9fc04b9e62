// Package webgpu implements gpu.Backend on a WebGPU device. Textures live in storage
// buffers and the colour conversion runs as a compute shader.
package webgpu

import (
	"image"
	"strings"

	"github.com/edaniels/golog"
	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera/colorconv"
	"github.com/edaniels/gpucamera/gpu"
)

// maxMapPolls bounds how long a readback waits for the device.
const maxMapPolls = 1000

// AdapterInfo describes the adapter a Backend runs on.
type AdapterInfo struct {
	Name        string
	Driver      string
	Backend     string
	AdapterType string
}

// A Backend owns a WebGPU device. Like every gpu.Backend it must only be used from its
// gpu.Context.
type Backend struct {
	logger   golog.Logger
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     AdapterInfo
}

var _ gpu.Backend = (*Backend)(nil)

// NewBackend requests a high performance adapter and a device on it.
func NewBackend(logger golog.Logger) (*Backend, error) {
	if logger == nil {
		logger = golog.Global().Named("webgpu")
	}
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, errors.New("wgpu.CreateInstance returned nil")
	}

	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil || adapter == nil {
		inst.Release()
		if err == nil {
			err = errors.New("no adapter")
		}
		return nil, errors.Wrap(err, "request adapter")
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil || device == nil {
		adapter.Release()
		inst.Release()
		if err == nil {
			err = errors.New("no device")
		}
		return nil, errors.Wrap(err, "request device")
	}

	info := adapter.GetInfo()
	b := &Backend{
		logger:   logger,
		instance: inst,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
		info: AdapterInfo{
			Name:        strings.TrimSpace(info.Name),
			Driver:      strings.TrimSpace(info.DriverDescription),
			Backend:     info.BackendType.String(),
			AdapterType: info.AdapterType.String(),
		},
	}
	logger.Infow("using webgpu adapter", "name", b.info.Name, "backend", b.info.Backend, "type", b.info.AdapterType)
	return b, nil
}

// Info returns the adapter description.
func (b *Backend) Info() AdapterInfo {
	return b.info
}

type texture struct {
	size        gpu.Size
	textureOnly bool
	format      gpu.TextureFormat
	buffer      *wgpu.Buffer
}

func (t *texture) Size() gpu.Size {
	return t.size
}

func (b *Backend) texture(tex gpu.Texture) (*texture, error) {
	t, ok := tex.(*texture)
	if !ok || t == nil {
		return nil, errors.Errorf("texture %T does not belong to the webgpu backend", tex)
	}
	return t, nil
}

// NewTexture implements gpu.Backend. The buffer is sized for four bytes per pixel so any
// format fits.
func (b *Backend) NewTexture(size gpu.Size, textureOnly bool) (gpu.Texture, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, errors.Errorf("invalid texture size %v", size)
	}
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "texture_" + size.String(),
		Size:  bufferSize(size, gpu.TextureFormatRGBA),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, errors.Wrap(err, "CreateBuffer")
	}
	return &texture{size: size, textureOnly: textureOnly, format: gpu.TextureFormatRGBA, buffer: buf}, nil
}

// UploadTexture implements gpu.Backend. Units are implied by the order a program's inputs
// are bound in, so unit is only validated.
func (b *Backend) UploadTexture(tex gpu.Texture, unit int, upload gpu.TextureUpload) error {
	t, err := b.texture(tex)
	if err != nil {
		return err
	}
	if unit < 0 {
		return errors.Errorf("texture unit %d out of range", unit)
	}
	if err := upload.Validate(); err != nil {
		return err
	}
	if upload.Size.Width > t.size.Width || upload.Size.Height > t.size.Height {
		return errors.Errorf("upload of %v does not fit texture of %v", upload.Size, t.size)
	}
	b.queue.WriteBuffer(t.buffer, 0, padWords(upload.Packed()))
	t.format = upload.Format
	return nil
}

// CompileProgram implements gpu.Backend.
func (b *Backend) CompileProgram(src gpu.ProgramSource) (gpu.Program, error) {
	var rng colorconv.Range
	switch src.Shader {
	case gpu.ShaderYUVConversionFullRange:
		rng = colorconv.RangeFull
	case gpu.ShaderYUVConversionVideoRange:
		rng = colorconv.RangeVideo
	default:
		return nil, errors.Wrapf(gpu.ErrUnsupportedShader, "%q", src.Shader)
	}
	if src.Inputs != 2 {
		return nil, errors.Errorf("yuv conversion takes 2 inputs, not %d", src.Inputs)
	}

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.Label + "_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: yuvConversionShader(rng)},
	})
	if err != nil {
		return nil, errors.Wrap(err, "CreateShaderModule")
	}
	defer module.Release()

	pipeline, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: src.Label + "_pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "CreateComputePipeline")
	}

	uniforms, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: src.Label + "_uniforms",
		Size:  uniformSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		pipeline.Release()
		return nil, errors.Wrap(err, "CreateBuffer")
	}
	return &yuvProgram{backend: b, label: src.Label, pipeline: pipeline, uniforms: uniforms}, nil
}

type yuvProgram struct {
	backend  *Backend
	label    string
	pipeline *wgpu.ComputePipeline
	uniforms *wgpu.Buffer
}

func (p *yuvProgram) Draw(output gpu.Texture, uniforms gpu.Uniforms, inputs ...gpu.Texture) error {
	if len(inputs) != 2 {
		return errors.Errorf("yuv conversion takes 2 inputs, got %d", len(inputs))
	}
	b := p.backend
	out, err := b.texture(output)
	if err != nil {
		return err
	}
	if out.textureOnly {
		return errors.New("cannot draw into a texture-only framebuffer")
	}
	luma, err := b.texture(inputs[0])
	if err != nil {
		return err
	}
	chroma, err := b.texture(inputs[1])
	if err != nil {
		return err
	}

	b.queue.WriteBuffer(p.uniforms, 0, packUniforms(uniforms.ColorConversionMatrix, out.size))

	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  p.label + "_bg",
		Layout: p.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: luma.buffer, Size: luma.buffer.GetSize()},
			{Binding: 1, Buffer: chroma.buffer, Size: chroma.buffer.GetSize()},
			{Binding: 2, Buffer: out.buffer, Size: out.buffer.GetSize()},
			{Binding: 3, Buffer: p.uniforms, Size: p.uniforms.GetSize()},
		},
	})
	if err != nil {
		return errors.Wrap(err, "CreateBindGroup")
	}
	defer bg.Release()

	enc, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return errors.Wrap(err, "CreateCommandEncoder")
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(workgroups(out.size.Width), workgroups(out.size.Height), 1)
	pass.End()

	cb, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return errors.Wrap(err, "Finish")
	}
	b.queue.Submit(cb)
	cb.Release()
	out.format = gpu.TextureFormatRGBA
	return nil
}

func (p *yuvProgram) Release() {
	p.uniforms.Destroy()
	p.uniforms.Release()
	p.pipeline.Release()
}

// ReadPixels implements gpu.Backend by copying the texture into a mappable staging
// buffer and waiting for the map.
func (b *Backend) ReadPixels(tex gpu.Texture) (*image.RGBA, error) {
	t, err := b.texture(tex)
	if err != nil {
		return nil, err
	}
	switch t.format {
	case gpu.TextureFormatRGBA, gpu.TextureFormatBGRA, gpu.TextureFormatLuminance:
	default:
		return nil, errors.Errorf("cannot read back %v texture", t.format)
	}
	size := bufferSize(t.size, t.format)

	staging, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback_" + t.size.String(),
		Size:  size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, errors.Wrap(err, "CreateBuffer")
	}
	defer staging.Release()
	defer staging.Destroy()

	enc, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, errors.Wrap(err, "CreateCommandEncoder")
	}
	enc.CopyBufferToBuffer(t.buffer, 0, staging, 0, size)
	cb, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return nil, errors.Wrap(err, "Finish")
	}
	b.queue.Submit(cb)
	cb.Release()

	done := false
	var status wgpu.BufferMapAsyncStatus
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	for i := 0; i < maxMapPolls && !done; i++ {
		b.device.Poll(true, nil)
	}
	if !done {
		return nil, errors.New("timed out mapping readback buffer")
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, errors.Errorf("mapping readback buffer failed: %v", status)
	}

	data := staging.GetMappedRange(0, uint(size))
	img := image.NewRGBA(image.Rect(0, 0, t.size.Width, t.size.Height))
	switch t.format {
	case gpu.TextureFormatBGRA:
		colorconv.BGRAToRGBA(img.Pix, data)
	case gpu.TextureFormatLuminance:
		for i := 0; i < t.size.Pixels(); i++ {
			v := data[i]
			img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = v, v, v, 0xff
		}
	default:
		copy(img.Pix, data)
	}
	staging.Unmap()
	return img, nil
}

// DeleteTexture implements gpu.Backend.
func (b *Backend) DeleteTexture(tex gpu.Texture) {
	t, err := b.texture(tex)
	if err != nil {
		return
	}
	t.buffer.Destroy()
	t.buffer.Release()
}

// Close releases the device, adapter and instance.
func (b *Backend) Close() error {
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
	return nil
}
