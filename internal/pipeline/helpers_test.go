package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/stretchr/testify/require"
)

func solidImage(t *testing.T, height, width int, px ...uint8) domain.ByteImage {
	t.Helper()

	pix := make([]uint8, 0, height*width*len(px))
	for i := 0; i < height*width; i++ {
		pix = append(pix, px...)
	}

	img, err := domain.NewByteImage(height, width, len(px), pix)
	require.NoError(t, err)

	return img
}

func solidFrame(t *testing.T, height, width int, r, g, b float32) domain.Frame {
	t.Helper()

	data := make([]float32, 0, height*width*domain.Channels)
	for i := 0; i < height*width; i++ {
		data = append(data, r, g, b)
	}

	f, err := domain.NewFrame(height, width, data)
	require.NoError(t, err)

	return f
}

// stubStylizer returns a solid color image of the content's shape and records
// the tensors it was given.
type stubStylizer struct {
	mu      sync.Mutex
	color   [3]float32
	err     error
	calls   int
	content domain.ImageTensor
	style   domain.ImageTensor
}

func (s *stubStylizer) Stylize(_ context.Context, content, style domain.ImageTensor) (domain.ImageTensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.content = content
	s.style = style

	if s.err != nil {
		return domain.ImageTensor{}, s.err
	}

	shape := content.Shape()
	data := make([]float32, 0, shape.Len())
	for i := 0; i < shape.Len()/domain.Channels; i++ {
		data = append(data, s.color[0], s.color[1], s.color[2])
	}

	return domain.NewImageTensor(shape, data)
}

type stylizerFunc func(ctx context.Context, content, style domain.ImageTensor) (domain.ImageTensor, error)

func (f stylizerFunc) Stylize(ctx context.Context, content, style domain.ImageTensor) (domain.ImageTensor, error) {
	return f(ctx, content, style)
}
