package gpucamera

import (
	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera/colorconv"
	"github.com/edaniels/gpucamera/gpu"
)

// A Plane is one CPU-resident pixel plane. Stride is the byte distance between rows.
type Plane struct {
	Data   []byte
	Stride int
}

// FrameMemory guards the memory backing a RawFrame's planes. The pipeline locks it
// before queueing the frame and unlocks it once the planes have been uploaded.
type FrameMemory interface {
	LockBaseAddress() error
	UnlockBaseAddress()
}

// A RawFrame is a frame as delivered by a capture session: either one packed BGRA plane
// or a luma plane followed by an interleaved CbCr plane. It is only valid for the
// duration of the OnFrame call delivering it.
type RawFrame struct {
	Width     int
	Height    int
	Timestamp gpu.Timestamp
	Planes    []Plane
	// Memory is optional.
	Memory FrameMemory
}

// Size returns the frame dimensions.
func (f RawFrame) Size() gpu.Size {
	return gpu.Size{Width: f.Width, Height: f.Height}
}

// textureUploads describes the planes as uploads: unit 0 is the packed image or luma,
// unit 1 is chroma.
func (f RawFrame) textureUploads(planar bool) ([]gpu.TextureUpload, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, errors.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	var uploads []gpu.TextureUpload
	if planar {
		if len(f.Planes) != 2 {
			return nil, errors.Errorf("planar frame needs 2 planes, got %d", len(f.Planes))
		}
		chromaWidth, chromaHeight := colorconv.ChromaSize(f.Width, f.Height)
		uploads = []gpu.TextureUpload{
			{
				Format: gpu.TextureFormatLuminance,
				Size:   f.Size(),
				Stride: f.Planes[0].Stride,
				Data:   f.Planes[0].Data,
			},
			{
				Format: gpu.TextureFormatLuminanceAlpha,
				Size:   gpu.Size{Width: chromaWidth, Height: chromaHeight},
				Stride: f.Planes[1].Stride,
				Data:   f.Planes[1].Data,
			},
		}
	} else {
		if len(f.Planes) != 1 {
			return nil, errors.Errorf("packed frame needs 1 plane, got %d", len(f.Planes))
		}
		uploads = []gpu.TextureUpload{{
			Format: gpu.TextureFormatBGRA,
			Size:   f.Size(),
			Stride: f.Planes[0].Stride,
			Data:   f.Planes[0].Data,
		}}
	}
	for i, upload := range uploads {
		if err := upload.Validate(); err != nil {
			return nil, errors.Wrapf(err, "plane %d", i)
		}
	}
	return uploads, nil
}

func (f RawFrame) lockMemory() error {
	if f.Memory == nil {
		return nil
	}
	return f.Memory.LockBaseAddress()
}

func (f RawFrame) unlockMemory() {
	if f.Memory != nil {
		f.Memory.UnlockBaseAddress()
	}
}
