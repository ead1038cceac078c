package domain

import (
	"fmt"
)

// Channels is the channel count of every tensor handed to the style model.
const Channels = 3

// Shape describes an NHWC tensor.
type Shape struct {
	Batch    int
	Height   int
	Width    int
	Channels int
}

// SquareShape returns the shape of a single RGB image of size×size pixels.
func SquareShape(size int) Shape {
	return Shape{Batch: 1, Height: size, Width: size, Channels: Channels}
}

func (s Shape) Len() int {
	return s.Batch * s.Height * s.Width * s.Channels
}

// Int64s returns the dimensions in NHWC order, as ONNX Runtime expects them.
func (s Shape) Int64s() []int64 {
	return []int64{int64(s.Batch), int64(s.Height), int64(s.Width), int64(s.Channels)}
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", s.Batch, s.Height, s.Width, s.Channels)
}

// ImageTensor is a float32 NHWC image with exactly three channels. Values are
// expected in [0,1].
type ImageTensor struct {
	shape Shape
	data  []float32
}

// NewImageTensor validates shape against data and wraps both without copying.
func NewImageTensor(shape Shape, data []float32) (ImageTensor, error) {
	if shape.Batch < 1 || shape.Height < 1 || shape.Width < 1 {
		return ImageTensor{}, fmt.Errorf("%w: tensor shape %s", ErrInvalidImageShape, shape)
	}
	if shape.Channels != Channels {
		return ImageTensor{}, fmt.Errorf("%w: tensor has %d channels, want %d",
			ErrInvalidImageShape, shape.Channels, Channels)
	}
	if len(data) != shape.Len() {
		return ImageTensor{}, fmt.Errorf("%w: %d values for shape %s",
			ErrInvalidImageShape, len(data), shape)
	}

	return ImageTensor{shape: shape, data: data}, nil
}

func (t ImageTensor) Shape() Shape {
	return t.shape
}

func (t ImageTensor) Data() []float32 {
	return t.data
}

// Frame strips the batch dimension. Only single-image batches can be squeezed.
func (t ImageTensor) Frame() (Frame, error) {
	if t.shape.Batch != 1 {
		return Frame{}, fmt.Errorf("%w: cannot squeeze batch of %d", ErrInvalidImageShape, t.shape.Batch)
	}

	return Frame{height: t.shape.Height, width: t.shape.Width, data: t.data}, nil
}

// Frame is a batch-stripped (H,W,3) float32 image.
type Frame struct {
	height int
	width  int
	data   []float32
}

func NewFrame(height, width int, data []float32) (Frame, error) {
	if height < 1 || width < 1 {
		return Frame{}, fmt.Errorf("%w: frame %dx%d", ErrInvalidImageShape, width, height)
	}
	if len(data) != height*width*Channels {
		return Frame{}, fmt.Errorf("%w: %d values for %dx%d frame",
			ErrInvalidImageShape, len(data), width, height)
	}

	return Frame{height: height, width: width, data: data}, nil
}

func (f Frame) Height() int {
	return f.height
}

func (f Frame) Width() int {
	return f.width
}

func (f Frame) Data() []float32 {
	return f.data
}

func (f Frame) At(y, x, c int) float32 {
	return f.data[(y*f.width+x)*Channels+c]
}

// SameShape reports whether both frames have identical dimensions.
func (f Frame) SameShape(o Frame) bool {
	return f.height == o.height && f.width == o.width
}

// Batched re-attaches a batch dimension of size one.
func (f Frame) Batched() ImageTensor {
	return ImageTensor{
		shape: Shape{Batch: 1, Height: f.height, Width: f.width, Channels: Channels},
		data:  f.data,
	}
}

// ByteImage is an interleaved (H,W,C) uint8 image as exchanged with callers.
type ByteImage struct {
	height   int
	width    int
	channels int
	pix      []uint8
}

func NewByteImage(height, width, channels int, pix []uint8) (ByteImage, error) {
	if height < 1 || width < 1 {
		return ByteImage{}, fmt.Errorf("%w: image %dx%d", ErrInvalidImageShape, width, height)
	}
	if channels < 1 {
		return ByteImage{}, fmt.Errorf("%w: %d channels", ErrInvalidImageShape, channels)
	}
	if len(pix) != height*width*channels {
		return ByteImage{}, fmt.Errorf("%w: %d bytes for %dx%dx%d image",
			ErrInvalidImageShape, len(pix), width, height, channels)
	}

	return ByteImage{height: height, width: width, channels: channels, pix: pix}, nil
}

func (b ByteImage) Height() int {
	return b.height
}

func (b ByteImage) Width() int {
	return b.width
}

func (b ByteImage) Channels() int {
	return b.channels
}

func (b ByteImage) Pix() []uint8 {
	return b.pix
}

func (b ByteImage) At(y, x, c int) uint8 {
	return b.pix[(y*b.width+x)*b.channels+c]
}
