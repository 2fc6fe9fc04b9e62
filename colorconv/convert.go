package colorconv

import "math"

// ChromaSize returns the dimensions of a 4:2:0 chroma plane for the given luma dimensions.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// NV12ToRGBA converts a full resolution luma plane and a half resolution interleaved CbCr
// plane into packed RGBA. Planes are tightly packed. dst must hold width*height*4 bytes.
func NV12ToRGBA(dst, luma, chroma []byte, width, height int, m Matrix3x3, r Range) {
	chromaWidth, _ := ChromaSize(width, height)
	offset := r.LumaOffset()
	for y := 0; y < height; y++ {
		lumaRow := luma[y*width : y*width+width]
		chromaRow := chroma[(y/2)*chromaWidth*2:]
		out := dst[y*width*4 : y*width*4+width*4]
		for x := 0; x < width; x++ {
			yy := float32(lumaRow[x])/255 - offset
			cb := float32(chromaRow[(x/2)*2])/255 - 0.5
			cr := float32(chromaRow[(x/2)*2+1])/255 - 0.5
			red, green, blue := m.Apply(yy, cb, cr)
			out[x*4] = clampByte(red)
			out[x*4+1] = clampByte(green)
			out[x*4+2] = clampByte(blue)
			out[x*4+3] = 0xff
		}
	}
}

// BGRAToRGBA swaps the red and blue channels of a packed BGRA buffer into dst. dst and src
// may be the same slice.
func BGRAToRGBA(dst, src []byte) {
	for i := 0; i+3 < len(src) && i+3 < len(dst); i += 4 {
		b, g, r, a := src[i], src[i+1], src[i+2], src[i+3]
		dst[i], dst[i+1], dst[i+2], dst[i+3] = r, g, b, a
	}
}

// FullToVideoLuma maps a full range luma sample into video range.
func FullToVideoLuma(v byte) byte {
	return byte(16 + (int(v)*219+127)/255)
}

// FullToVideoChroma maps a full range chroma sample into video range.
func FullToVideoChroma(v byte) byte {
	return byte(128 + ((int(v)-128)*224)/255)
}

func clampByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return byte(math.Round(float64(v * 255)))
}
