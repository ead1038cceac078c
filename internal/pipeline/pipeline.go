package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Stage names a step of a single pipeline run.
type Stage string

const (
	Idle        Stage = "idle"
	Normalizing Stage = "normalizing"
	Sharpening  Stage = "sharpening"
	Stylizing   Stage = "stylizing"
	Blending    Stage = "blending"
	Quantizing  Stage = "quantizing"
	Failed      Stage = "failed"
)

const (
	DefaultImageSize    = 256
	DefaultMaxSharpness = 1.0
	DefaultModelTimeout = time.Minute
)

type Options struct {
	// ImageSize is the side length of the square tensors given to the model.
	ImageSize int
	// MaxSharpness is the largest accepted sharpness intensity.
	MaxSharpness float32
	// ModelTimeout bounds a single model call. Zero disables the bound.
	ModelTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		ImageSize:    DefaultImageSize,
		MaxSharpness: DefaultMaxSharpness,
		ModelTimeout: DefaultModelTimeout,
	}
}

// Pipeline runs normalize, sharpen, stylize, blend and quantize for one pair
// of images. It holds no per-request state and is safe for concurrent use if
// its Stylizer is.
type Pipeline struct {
	stylizer Stylizer
	opts     Options
}

func New(stylizer Stylizer, opts Options) (*Pipeline, error) {
	if stylizer == nil {
		return nil, errors.New("pipeline requires a stylizer")
	}
	if opts.ImageSize < 1 {
		return nil, fmt.Errorf("invalid image size %d", opts.ImageSize)
	}
	if opts.MaxSharpness < 0 {
		return nil, fmt.Errorf("invalid max sharpness %v", opts.MaxSharpness)
	}

	return &Pipeline{stylizer: stylizer, opts: opts}, nil
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Run produces a (size,size,3) stylized composite of content in the style of
// style. It either returns the full result or an error; there is no partial
// output.
func (p *Pipeline) Run(ctx context.Context, content, style domain.ByteImage,
	params domain.Params) (domain.ByteImage, error) {
	l := log.Ctx(ctx).With().
		Float32("density", params.Density).
		Float32("sharpness", params.Sharpness).
		Logger()

	if err := params.Validate(p.opts.MaxSharpness); err != nil {
		l.Debug().Err(err).Str("stage", string(Failed)).Msg("rejected parameters")
		return domain.ByteImage{}, err
	}

	stage := Idle
	start := time.Now()
	enter := func(s Stage) {
		stage = s
		l.Debug().Str("stage", string(s)).Dur("elapsed", time.Since(start)).Msg("pipeline stage")
	}
	fail := func(err error) (domain.ByteImage, error) {
		l.Warn().Err(err).Str("stage", string(stage)).Msg("pipeline failed")
		return domain.ByteImage{}, fmt.Errorf("%s: %w", stage, err)
	}

	enter(Normalizing)
	var contentTensor, styleTensor domain.ImageTensor
	var g errgroup.Group
	g.Go(func() error {
		var err error
		contentTensor, err = Normalize(content, p.opts.ImageSize)
		if err != nil {
			return fmt.Errorf("content image: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		styleTensor, err = Normalize(style, p.opts.ImageSize)
		if err != nil {
			return fmt.Errorf("style image: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	contentFrame, err := contentTensor.Frame()
	if err != nil {
		return fail(err)
	}

	enter(Sharpening)
	sharp, err := Sharpen(contentFrame, params.Sharpness)
	if err != nil {
		return fail(err)
	}

	enter(Stylizing)
	stylized, err := invoke(ctx, p.stylizer, p.opts.ModelTimeout, sharp.Batched(), styleTensor)
	if err != nil {
		return fail(err)
	}

	stylizedFrame, err := stylized.Frame()
	if err != nil {
		return fail(err)
	}

	enter(Blending)
	blended, err := Blend(contentFrame, stylizedFrame, params.Density)
	if err != nil {
		return fail(err)
	}

	enter(Quantizing)
	out, err := QuantizeFrame(blended)
	if err != nil {
		return fail(err)
	}

	enter(Idle)
	l.Info().Dur("duration", time.Since(start)).Msg("stylized image")

	return out, nil
}
