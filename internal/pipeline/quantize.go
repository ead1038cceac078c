package pipeline

import (
	"github.com/Brownie44l1/styler/internal/domain"
)

// Quantize squeezes the batch dimension of t and converts it to bytes.
func Quantize(t domain.ImageTensor) (domain.ByteImage, error) {
	f, err := t.Frame()
	if err != nil {
		return domain.ByteImage{}, err
	}

	return QuantizeFrame(f)
}

// QuantizeFrame scales [0,1] values to [0,255], rounding half up. Values
// outside [0,1] saturate.
func QuantizeFrame(f domain.Frame) (domain.ByteImage, error) {
	src := f.Data()
	pix := make([]uint8, len(src))
	for i, v := range src {
		pix[i] = uint8(clamp01(v)*maxByte + 0.5)
	}

	return domain.NewByteImage(f.Height(), f.Width(), domain.Channels, pix)
}
