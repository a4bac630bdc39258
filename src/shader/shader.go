// Package shader loads SPIR-V byte code for the graphics pipeline.
package shader

//go:generate glslc ../../shd/default.vert -o ../../shd/bin/default.vert.spv
//go:generate glslc ../../shd/default.frag -o ../../shd/bin/default.frag.spv

import (
	"encoding/binary"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// Magic is the first word of every SPIR-V module.
const Magic uint32 = 0x07230203

// headerWords is the length of the SPIR-V module header.
const headerWords = 5

var (
	ErrAlignment = errors.New("shader: byte code is not a whole number of words")
	ErrTooShort  = errors.New("shader: byte code is shorter than a module header")
	ErrMagic     = errors.New("shader: not a SPIR-V module")
	ErrSwapped   = errors.New("shader: SPIR-V module has the wrong byte order")
)

// Validate checks that code looks like a little-endian SPIR-V module.
func Validate(code []byte) error {
	if len(code)%4 != 0 {
		return ErrAlignment
	}
	if len(code) < headerWords*4 {
		return ErrTooShort
	}
	switch {
	case binary.LittleEndian.Uint32(code) == Magic:
		return nil
	case binary.BigEndian.Uint32(code) == Magic:
		return ErrSwapped
	}
	return ErrMagic
}

// Words repacks validated byte code into the word slice
// vulkan.ShaderModuleCreateInfo takes.
func Words(code []byte) []uint32 {
	buf := make([]uint32, len(code)/4)
	if len(buf) > 0 {
		vulkan.Memcopy(unsafe.Pointer(&buf[0]), code)
	}
	return buf
}

// Load reads and validates one module.
func Load(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}
	if err := Validate(code); err != nil {
		return nil, errors.Wrapf(err, "load shader %s", path)
	}
	return code, nil
}

// Files is a render.ShaderSource reading both stages from disk on every
// pipeline creation, so rebuilt shaders are picked up on recreation.
type Files struct {
	Vertex   string
	Fragment string
}

func (f Files) Shaders() (render.ShaderSet, error) {
	vert, err := Load(f.Vertex)
	if err != nil {
		return render.ShaderSet{}, err
	}
	frag, err := Load(f.Fragment)
	if err != nil {
		return render.ShaderSet{}, err
	}
	return render.ShaderSet{Vertex: vert, Fragment: frag}, nil
}

// Static is a render.ShaderSource with fixed byte code.
type Static render.ShaderSet

func (s Static) Shaders() (render.ShaderSet, error) {
	if err := Validate(s.Vertex); err != nil {
		return render.ShaderSet{}, errors.Wrap(err, "vertex stage")
	}
	if err := Validate(s.Fragment); err != nil {
		return render.ShaderSet{}, errors.Wrap(err, "fragment stage")
	}
	return render.ShaderSet(s), nil
}

// Empty returns an empty SPIR-V 1.0 module: a bare header with no
// instructions. Backends that never compile shaders accept it.
func Empty() []byte {
	code := make([]byte, headerWords*4)
	binary.LittleEndian.PutUint32(code[0:], Magic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010000)
	binary.LittleEndian.PutUint32(code[12:], 1)
	return code
}
