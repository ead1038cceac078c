package pipeline

import (
	"fmt"
	"math"

	"github.com/Brownie44l1/styler/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Sharpen applies the Laplacian unsharp mask
//
//	[ 0   -k    0 ]
//	[-k  1+4k  -k ]
//	[ 0   -k    0 ]
//
// to every channel of f and clips the result to [0,1]. Borders are mirrored
// without repeating the edge pixel (reflect-101); a dimension of a single
// pixel is replicated instead. An intensity of zero returns an exact copy.
func Sharpen(f domain.Frame, intensity float32) (domain.Frame, error) {
	if math.IsNaN(float64(intensity)) || intensity < 0 {
		return domain.Frame{}, fmt.Errorf("%w: sharpness %v", domain.ErrParameterOutOfRange, intensity)
	}

	out := make([]float32, len(f.Data()))
	if intensity == 0 {
		copy(out, f.Data())
		return domain.NewFrame(f.Height(), f.Width(), out)
	}

	var g errgroup.Group
	for c := 0; c < domain.Channels; c++ {
		g.Go(func() error {
			convolveChannel(f, out, c, intensity)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Frame{}, err
	}

	return domain.NewFrame(f.Height(), f.Width(), out)
}

func convolveChannel(f domain.Frame, out []float32, c int, k float32) {
	h, w := f.Height(), f.Width()
	center := 1 + 4*k

	for y := 0; y < h; y++ {
		up, down := reflect101(y-1, h), reflect101(y+1, h)
		for x := 0; x < w; x++ {
			left, right := reflect101(x-1, w), reflect101(x+1, w)

			v := center*f.At(y, x, c) -
				k*(f.At(up, x, c)+f.At(down, x, c)+f.At(y, left, c)+f.At(y, right, c))

			out[(y*w+x)*domain.Channels+c] = clamp01(v)
		}
	}
}

// reflect101 maps an index one step outside [0,n) back inside.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*(n-1) - i
	}
	return i
}

// clamp01 also maps NaN to 0.
func clamp01(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
