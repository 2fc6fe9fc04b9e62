package gpucamera

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/edaniels/gpucamera/gpu"
)

// ErrCameraClosed is returned by operations on a closed Camera.
var ErrCameraClosed = errors.New("camera closed")

// A ConstructionError means a Camera could not be wired to its collaborators. No camera
// is returned alongside it.
type ConstructionError struct {
	Op  string
	Err error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("constructing camera: %s: %v", e.Op, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// A ShaderCompileError means the colour conversion program could not be built.
type ShaderCompileError struct {
	Shader gpu.Shader
	Err    error
}

func (e *ShaderCompileError) Error() string {
	return fmt.Sprintf("compiling shader %q: %v", e.Shader, e.Err)
}

func (e *ShaderCompileError) Unwrap() error {
	return e.Err
}
