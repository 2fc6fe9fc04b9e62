package media

import (
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera"
	"github.com/edaniels/gpucamera/colorconv"
	"github.com/edaniels/gpucamera/gpu"
)

// frameMemory keeps a driver image alive until the camera has finished with the planes
// pointing into it. The release function runs once the handler has returned and every
// lock has been undone.
type frameMemory struct {
	mu          sync.Mutex
	locks       int
	handlerDone bool
	release     func()
}

func newFrameMemory(release func()) *frameMemory {
	return &frameMemory{release: release}
}

func (m *frameMemory) LockBaseAddress() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.release == nil && m.handlerDone {
		return errors.New("frame memory already released")
	}
	m.locks++
	return nil
}

func (m *frameMemory) UnlockBaseAddress() {
	m.mu.Lock()
	if m.locks > 0 {
		m.locks--
	}
	release := m.releasable()
	m.mu.Unlock()
	if release != nil {
		release()
	}
}

func (m *frameMemory) handlerReturned() {
	m.mu.Lock()
	m.handlerDone = true
	release := m.releasable()
	m.mu.Unlock()
	if release != nil {
		release()
	}
}

func (m *frameMemory) releasable() func() {
	if !m.handlerDone || m.locks > 0 || m.release == nil {
		return nil
	}
	release := m.release
	m.release = nil
	return release
}

// rawFrame lays img out in the given format. Planes may alias img, so img must outlive
// the frame.
func rawFrame(img image.Image, format gpucamera.PixelFormat, ts gpu.Timestamp) (gpucamera.RawFrame, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return gpucamera.RawFrame{}, errors.Errorf("empty image %v", bounds)
	}
	frame := gpucamera.RawFrame{
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Timestamp: ts,
	}
	switch format {
	case gpucamera.PixelFormat420YpCbCr8BiPlanarFullRange, gpucamera.PixelFormat420YpCbCr8BiPlanarVideoRange:
		luma, chroma := biplanar(img, format.Range())
		frame.Planes = []gpucamera.Plane{luma, chroma}
	case gpucamera.PixelFormat32BGRA:
		frame.Planes = []gpucamera.Plane{packedBGRA(img)}
	default:
		return gpucamera.RawFrame{}, errors.Errorf("unsupported pixel format %q", format)
	}
	return frame, nil
}

// biplanar returns a luma plane and an interleaved CbCr plane. 4:2:0 YCbCr images in full
// range are passed through without copying luma.
func biplanar(img image.Image, rng colorconv.Range) (gpucamera.Plane, gpucamera.Plane) {
	if ycbcr, ok := img.(*image.YCbCr); ok && ycbcr.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		return biplanarFromYCbCr(ycbcr, rng)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	chromaWidth, chromaHeight := colorconv.ChromaSize(width, height)
	luma := make([]byte, width*height)
	cbSum := make([]int, chromaWidth*chromaHeight)
	crSum := make([]int, chromaWidth*chromaHeight)
	samples := make([]int, chromaWidth*chromaHeight)

	nrgba := imaging.Clone(img)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := nrgba.PixOffset(x, y)
			yy, cb, cr := color.RGBToYCbCr(nrgba.Pix[i], nrgba.Pix[i+1], nrgba.Pix[i+2])
			luma[y*width+x] = yy
			c := (y/2)*chromaWidth + x/2
			cbSum[c] += int(cb)
			crSum[c] += int(cr)
			samples[c]++
		}
	}
	chroma := make([]byte, chromaWidth*chromaHeight*2)
	for c := range samples {
		chroma[c*2] = byte(cbSum[c] / samples[c])
		chroma[c*2+1] = byte(crSum[c] / samples[c])
	}
	if rng == colorconv.RangeVideo {
		toVideoRange(luma, chroma)
	}
	return gpucamera.Plane{Data: luma, Stride: width}, gpucamera.Plane{Data: chroma, Stride: chromaWidth * 2}
}

func biplanarFromYCbCr(img *image.YCbCr, rng colorconv.Range) (gpucamera.Plane, gpucamera.Plane) {
	bounds := img.Rect
	width, height := bounds.Dx(), bounds.Dy()
	chromaWidth, chromaHeight := colorconv.ChromaSize(width, height)

	luma := gpucamera.Plane{Data: img.Y[img.YOffset(bounds.Min.X, bounds.Min.Y):], Stride: img.YStride}
	if rng == colorconv.RangeVideo {
		packed := make([]byte, width*height)
		for y := 0; y < height; y++ {
			copy(packed[y*width:(y+1)*width], luma.Data[y*luma.Stride:])
		}
		luma = gpucamera.Plane{Data: packed, Stride: width}
	}

	chroma := make([]byte, chromaWidth*chromaHeight*2)
	for cy := 0; cy < chromaHeight; cy++ {
		for cx := 0; cx < chromaWidth; cx++ {
			ci := img.COffset(bounds.Min.X+cx*2, bounds.Min.Y+cy*2)
			chroma[(cy*chromaWidth+cx)*2] = img.Cb[ci]
			chroma[(cy*chromaWidth+cx)*2+1] = img.Cr[ci]
		}
	}
	if rng == colorconv.RangeVideo {
		toVideoRange(luma.Data, chroma)
	}
	return luma, gpucamera.Plane{Data: chroma, Stride: chromaWidth * 2}
}

func toVideoRange(luma, chroma []byte) {
	for i, v := range luma {
		luma[i] = colorconv.FullToVideoLuma(v)
	}
	for i, v := range chroma {
		chroma[i] = colorconv.FullToVideoChroma(v)
	}
}

// packedBGRA returns a tightly packed BGRA copy of img.
func packedBGRA(img image.Image) gpucamera.Plane {
	nrgba := imaging.Clone(img)
	bgra := make([]byte, len(nrgba.Pix))
	// swapping red and blue is its own inverse
	colorconv.BGRAToRGBA(bgra, nrgba.Pix)
	return gpucamera.Plane{Data: bgra, Stride: nrgba.Stride}
}
