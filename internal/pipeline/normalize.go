package pipeline

import (
	"fmt"
	"image"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/disintegration/imaging"
)

const maxByte = 255.0

// Normalize converts a 3 or 4 channel byte image into a (1,size,size,3) tensor
// in [0,1]. Alpha is discarded before resampling so it never weights RGB.
//
// Each axis is resampled on its own: a shrinking axis is box (area) averaged
// and a growing one is interpolated bilinearly, which is what area
// interpolation degrades to for magnification.
func Normalize(img domain.ByteImage, size int) (domain.ImageTensor, error) {
	if size < 1 {
		return domain.ImageTensor{}, fmt.Errorf("%w: target size %d", domain.ErrInvalidImageShape, size)
	}

	switch img.Channels() {
	case 3, 4:
	default:
		return domain.ImageTensor{}, fmt.Errorf("%w: %d channels, want 3 or 4",
			domain.ErrInvalidImageShape, img.Channels())
	}

	resized := imaging.Resize(opaque(img), size, img.Height(), axisFilter(img.Width(), size))
	resized = imaging.Resize(resized, size, size, axisFilter(img.Height(), size))

	data := make([]float32, size*size*domain.Channels)
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			for c := 0; c < domain.Channels; c++ {
				data[(y*size+x)*domain.Channels+c] = float32(row[x*4+c]) / maxByte
			}
		}
	}

	return domain.NewImageTensor(domain.SquareShape(size), data)
}

func axisFilter(from, to int) imaging.ResampleFilter {
	if from < to {
		return imaging.Linear
	}
	return imaging.Box
}

// opaque copies the first three channels into a fully opaque NRGBA image.
func opaque(img domain.ByteImage) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, img.Width(), img.Height()))
	src := img.Pix()
	stride := img.Channels()

	for i, j := 0, 0; i < len(src); i, j = i+stride, j+4 {
		dst.Pix[j] = src[i]
		dst.Pix[j+1] = src[i+1]
		dst.Pix[j+2] = src[i+2]
		dst.Pix[j+3] = 0xff
	}

	return dst
}
