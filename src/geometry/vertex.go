// Package geometry holds the vertex data drawn by every recorded command
// sequence.
package geometry

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"
	"github.com/xlab/linmath"

	"swapline/src/render"
)

// Vertex is a 2D position with an RGB color.
type Vertex struct {
	Pos   linmath.Vec2
	Color linmath.Vec3
}

// VertexSize is the stride of a Vertex in a vertex buffer.
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

// Layout describes Vertex to the pipeline: position at location 0 and
// color at location 1, both from binding 0.
func Layout() render.VertexLayout {
	return render.VertexLayout{
		Stride: VertexSize,
		Attributes: []render.VertexAttribute{
			{
				Location: 0,
				Format:   vulkan.FormatR32g32Sfloat,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
			},
			{
				Location: 1,
				Format:   vulkan.FormatR32g32b32Sfloat,
				Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
			},
		},
	}
}

// Mesh is a list of vertices drawn as a triangle list.
type Mesh struct {
	Vertices []Vertex
}

// Triangle is the red, green and blue triangle.
func Triangle() *Mesh {
	return &Mesh{Vertices: []Vertex{
		{Pos: linmath.Vec2{0.0, -0.5}, Color: linmath.Vec3{1, 0, 0}},
		{Pos: linmath.Vec2{0.5, 0.5}, Color: linmath.Vec3{0, 1, 0}},
		{Pos: linmath.Vec2{-0.5, 0.5}, Color: linmath.Vec3{0, 0, 1}},
	}}
}

func (m *Mesh) Len() int { return len(m.Vertices) }

// Floats flattens the vertices in buffer order.
func (m *Mesh) Floats() linmath.ArrayFloat32 {
	out := make(linmath.ArrayFloat32, 0, len(m.Vertices)*5)
	for _, v := range m.Vertices {
		out = append(out, v.Pos[0], v.Pos[1], v.Color[0], v.Color[1], v.Color[2])
	}
	return out
}

// Bytes is the vertex buffer content.
func (m *Mesh) Bytes() []byte {
	return m.Floats().Data()
}

// Uploader copies vertex data into a device buffer.
type Uploader interface {
	UploadVertices(data []byte) (render.Handle, error)
}

// Upload creates the device buffer for m. The returned geometry owns the
// buffer; release it through the uploader once the engine is closed.
func (m *Mesh) Upload(u Uploader) (*render.StaticGeometry, error) {
	if len(m.Vertices) == 0 {
		return nil, errors.New("geometry: empty mesh")
	}
	buf, err := u.UploadVertices(m.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "upload vertices")
	}
	return &render.StaticGeometry{
		Layout: Layout(),
		Buffer: buf,
		Count:  uint32(len(m.Vertices)),
	}, nil
}
