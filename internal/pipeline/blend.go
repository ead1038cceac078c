package pipeline

import (
	"fmt"

	"github.com/Brownie44l1/styler/internal/domain"
)

// Blend interpolates from content towards stylized by density:
// content + density*(stylized-content). The weighted form used below keeps
// density 0 and 1 exact. Results are clipped to [0,1] since the model output
// is not trusted to stay in range.
func Blend(content, stylized domain.Frame, density float32) (domain.Frame, error) {
	if !content.SameShape(stylized) {
		return domain.Frame{}, fmt.Errorf("%w: blending %dx%d with %dx%d", domain.ErrInvalidImageShape,
			content.Width(), content.Height(), stylized.Width(), stylized.Height())
	}

	c, t := content.Data(), stylized.Data()
	out := make([]float32, len(c))
	for i := range c {
		out[i] = clamp01((1-density)*c[i] + density*t[i])
	}

	return domain.NewFrame(content.Height(), content.Width(), out)
}
