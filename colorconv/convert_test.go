package colorconv

import (
	"testing"

	"go.viam.com/test"
)

func rgbaAt(pix []byte, width, x, y int) (float64, float64, float64) {
	i := (y*width + x) * 4
	return float64(pix[i]), float64(pix[i+1]), float64(pix[i+2])
}

func TestNV12ToRGBA(t *testing.T) {
	const width, height = 4, 2
	chromaWidth, chromaHeight := ChromaSize(width, height)
	test.That(t, chromaWidth, test.ShouldEqual, 2)
	test.That(t, chromaHeight, test.ShouldEqual, 1)

	t.Run("full range", func(t *testing.T) {
		luma := []byte{0, 0, 255, 255, 0, 0, 255, 255}
		chroma := []byte{128, 128, 128, 128}
		dst := make([]byte, width*height*4)
		NV12ToRGBA(dst, luma, chroma, width, height, ColorConversionMatrix601FullRangeDefault, RangeFull)

		r, g, b := rgbaAt(dst, width, 0, 0)
		test.That(t, r, test.ShouldAlmostEqual, 0, 2)
		test.That(t, g, test.ShouldAlmostEqual, 0, 2)
		test.That(t, b, test.ShouldAlmostEqual, 0, 2)

		r, g, b = rgbaAt(dst, width, 3, 1)
		test.That(t, r, test.ShouldAlmostEqual, 255, 2)
		test.That(t, g, test.ShouldAlmostEqual, 255, 2)
		test.That(t, b, test.ShouldAlmostEqual, 255, 2)
		test.That(t, dst[len(dst)-1], test.ShouldEqual, 0xff)
	})

	t.Run("video range", func(t *testing.T) {
		luma := []byte{16, 16, 235, 235, 16, 16, 235, 235}
		chroma := []byte{128, 128, 128, 128}
		dst := make([]byte, width*height*4)
		NV12ToRGBA(dst, luma, chroma, width, height, ColorConversionMatrix601Default, RangeVideo)

		r, g, b := rgbaAt(dst, width, 1, 0)
		test.That(t, r, test.ShouldAlmostEqual, 0, 2)
		test.That(t, g, test.ShouldAlmostEqual, 0, 2)
		test.That(t, b, test.ShouldAlmostEqual, 0, 2)

		r, g, b = rgbaAt(dst, width, 2, 1)
		test.That(t, r, test.ShouldAlmostEqual, 255, 2)
		test.That(t, g, test.ShouldAlmostEqual, 255, 2)
		test.That(t, b, test.ShouldAlmostEqual, 255, 2)
	})

	t.Run("chroma drives red", func(t *testing.T) {
		// full red in BT.601 full range is roughly Y=76 Cb=85 Cr=255
		luma := []byte{76, 76, 76, 76, 76, 76, 76, 76}
		chroma := []byte{85, 255, 85, 255}
		dst := make([]byte, width*height*4)
		NV12ToRGBA(dst, luma, chroma, width, height, ColorConversionMatrix601FullRangeDefault, RangeFull)
		r, g, b := rgbaAt(dst, width, 0, 1)
		test.That(t, r, test.ShouldAlmostEqual, 255, 4)
		test.That(t, g, test.ShouldAlmostEqual, 0, 4)
		test.That(t, b, test.ShouldAlmostEqual, 0, 4)
	})
}

func TestBGRAToRGBA(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	BGRAToRGBA(buf, buf)
	test.That(t, buf, test.ShouldResemble, []byte{3, 2, 1, 4, 7, 6, 5, 8})
}

func TestRangeMapping(t *testing.T) {
	test.That(t, FullToVideoLuma(0), test.ShouldEqual, byte(16))
	test.That(t, FullToVideoLuma(255), test.ShouldEqual, byte(235))
	test.That(t, FullToVideoChroma(128), test.ShouldEqual, byte(128))
	test.That(t, FullToVideoChroma(255), test.ShouldEqual, byte(239))
	test.That(t, FullToVideoChroma(0), test.ShouldEqual, byte(16))
}
