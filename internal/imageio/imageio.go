// Package imageio converts between encoded image files, image.Image values
// and domain byte images.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Decode reads a PNG, JPEG, GIF, WebP, BMP or TIFF file. Opaque images decode
// to three channels, anything with transparency to four.
//
// The header is checked against maxPixels before any pixel is decoded, so a
// small file cannot expand into a huge bitmap. Zero disables the check.
func Decode(r io.Reader, maxPixels int64) (domain.ByteImage, string, error) {
	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return domain.ByteImage{}, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return domain.ByteImage{}, "", fmt.Errorf("%w: %dx%d image exceeds %d pixels",
			domain.ErrInvalidImageShape, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return domain.ByteImage{}, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	b, err := FromImage(img)
	if err != nil {
		return domain.ByteImage{}, "", err
	}

	return b, format, nil
}

func FromImage(img image.Image) (domain.ByteImage, error) {
	nrgba := imaging.Clone(img)

	channels := 4
	if nrgba.Opaque() {
		channels = 3
	}

	return fromNRGBA(nrgba, channels)
}

func fromNRGBA(src *image.NRGBA, channels int) (domain.ByteImage, error) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	pix := make([]uint8, 0, w*h*channels)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			pix = append(pix, row[x*4:x*4+channels]...)
		}
	}

	return domain.NewByteImage(h, w, channels, pix)
}

// ToImage expands b into an NRGBA image. Single channel images are treated as
// gray, three channel images as opaque.
func ToImage(b domain.ByteImage) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, b.Width(), b.Height()))
	src := b.Pix()
	n := b.Channels()

	for i, j := 0, 0; i < len(src); i, j = i+n, j+4 {
		switch n {
		case 1, 2:
			dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2] = src[i], src[i], src[i]
		default:
			dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2] = src[i], src[i+1], src[i+2]
		}

		switch n {
		case 2:
			dst.Pix[j+3] = src[i+1]
		case 4:
			dst.Pix[j+3] = src[i+3]
		default:
			dst.Pix[j+3] = 0xff
		}
	}

	return dst
}

func EncodePNG(w io.Writer, b domain.ByteImage) error {
	return imaging.Encode(w, ToImage(b), imaging.PNG)
}

// Fit resamples b to width×height with a Lanczos3 filter. RGB and RGBA images
// keep their channel count; gray images come back as RGBA.
func Fit(b domain.ByteImage, width, height int) (domain.ByteImage, error) {
	if width < 1 || height < 1 {
		return domain.ByteImage{}, fmt.Errorf("%w: fit to %dx%d", domain.ErrInvalidImageShape, width, height)
	}
	if b.Width() == width && b.Height() == height {
		return b, nil
	}

	resized := resize.Resize(uint(width), uint(height), ToImage(b), resize.Lanczos3)

	channels := b.Channels()
	if channels != 3 && channels != 4 {
		channels = 4
	}

	return fromNRGBA(imaging.Clone(resized), channels)
}
