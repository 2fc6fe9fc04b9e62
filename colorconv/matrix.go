// Package colorconv contains the fixed YCbCr to RGB conversion matrices and the CPU
// reference kernels used by software backends.
package colorconv

// A Matrix3x3 is a row-major 3x3 transform. Rows produce R, G and B; columns weight Y, Cb
// and Cr respectively.
type Matrix3x3 [9]float32

// The standard conversion matrices. The video range variants expect luma with the 16/255
// offset already removed.
var (
	ColorConversionMatrix601Default = Matrix3x3{
		1.164, 0.0, 1.596,
		1.164, -0.392, -0.813,
		1.164, 2.017, 0.0,
	}
	ColorConversionMatrix601FullRangeDefault = Matrix3x3{
		1.0, 0.0, 1.4,
		1.0, -0.343, -0.711,
		1.0, 1.765, 0.0,
	}
	ColorConversionMatrix709Default = Matrix3x3{
		1.164, 0.0, 1.793,
		1.164, -0.213, -0.533,
		1.164, 2.112, 0.0,
	}
)

// Apply returns m · (y, cb, cr).
func (m Matrix3x3) Apply(y, cb, cr float32) (r, g, b float32) {
	r = m[0]*y + m[1]*cb + m[2]*cr
	g = m[3]*y + m[4]*cb + m[5]*cr
	b = m[6]*y + m[7]*cb + m[8]*cr
	return r, g, b
}

// ColumnMajor returns the matrix laid out column by column, which is what shader uniforms
// expect.
func (m Matrix3x3) ColumnMajor() [9]float32 {
	return [9]float32{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}
