package domain

import (
	"fmt"
	"math"
)

// Params are the user controls applied around the style model.
type Params struct {
	// Density is the blend weight towards the stylized output, in [0,1].
	Density float32
	// Sharpness is the unsharp mask intensity applied to the content image.
	Sharpness float32
}

// Validate rejects values outside [0,1] for density and [0,maxSharpness] for
// sharpness. Values are never clamped.
func (p Params) Validate(maxSharpness float32) error {
	if math.IsNaN(float64(p.Density)) || p.Density < 0 || p.Density > 1 {
		return fmt.Errorf("%w: density %v not in [0,1]", ErrParameterOutOfRange, p.Density)
	}
	if math.IsNaN(float64(p.Sharpness)) || p.Sharpness < 0 || p.Sharpness > maxSharpness {
		return fmt.Errorf("%w: sharpness %v not in [0,%v]", ErrParameterOutOfRange, p.Sharpness, maxSharpness)
	}

	return nil
}
