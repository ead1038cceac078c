package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/Brownie44l1/styler/internal/file"
	"github.com/Brownie44l1/styler/internal/imageio"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type applyFlags struct {
	content   string
	style     string
	out       string
	density   float32
	sharpness float32
	fitSource bool
}

func (a *app) newApplyCmd() *cobra.Command {
	var f applyFlags

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Stylize one image and write the result as PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := a.cfg.Pipeline.Defaults()
			if cmd.Flags().Changed("density") {
				params.Density = f.density
			}
			if cmd.Flags().Changed("sharpness") {
				params.Sharpness = f.sharpness
			}

			return a.apply(cmd.Context(), f, params)
		},
	}

	cmd.Flags().StringVar(&f.content, "content", "", "content image path or URL")
	cmd.Flags().StringVar(&f.style, "style", "", "style image path or URL")
	cmd.Flags().StringVarP(&f.out, "out", "o", "stylized.png", "output PNG path")
	cmd.Flags().Float32Var(&f.density, "density", 0.5, "blend weight towards the stylized image, 0-1")
	cmd.Flags().Float32Var(&f.sharpness, "sharpness", 0.5, "content sharpening intensity")
	cmd.Flags().BoolVar(&f.fitSource, "fit-source", false, "resize the result back to the content image size")
	_ = cmd.MarkFlagRequired("content")
	_ = cmd.MarkFlagRequired("style")

	return cmd
}

func (a *app) apply(ctx context.Context, f applyFlags, params domain.Params) error {
	content, err := a.readImage(ctx, f.content)
	if err != nil {
		return fmt.Errorf("content image: %w", err)
	}
	style, err := a.readImage(ctx, f.style)
	if err != nil {
		return fmt.Errorf("style image: %w", err)
	}

	p, engine, err := a.loadPipeline()
	if err != nil {
		return err
	}
	defer engine.Close()

	out, err := p.Run(ctx, content, style, params)
	if err != nil {
		return err
	}

	if f.fitSource {
		if out, err = imageio.Fit(out, content.Width(), content.Height()); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if err := imageio.EncodePNG(&buf, out); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(f.out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	log.Info().Str("path", f.out).Int("width", out.Width()).Int("height", out.Height()).Msg("wrote stylized image")

	return nil
}

func (a *app) readImage(ctx context.Context, ref string) (domain.ByteImage, error) {
	if a.cfg.Download.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Download.Timeout)
		defer cancel()
	}

	data, err := file.ReadSource(ctx, ref, a.cfg.Download.MaxBytes)
	if err != nil {
		return domain.ByteImage{}, err
	}

	img, format, err := imageio.Decode(bytes.NewReader(data), a.cfg.Pipeline.MaxPixels)
	if err != nil {
		return domain.ByteImage{}, err
	}

	log.Debug().Str("source", ref).Str("format", format).
		Int("width", img.Width()).Int("height", img.Height()).Msg("read image")

	return img, nil
}
