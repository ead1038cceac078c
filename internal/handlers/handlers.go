package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/Brownie44l1/styler/internal/imageio"
	"github.com/Brownie44l1/styler/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runner is the style transfer pipeline.
type Runner interface {
	Run(ctx context.Context, content, style domain.ByteImage, params domain.Params) (domain.ByteImage, error)
}

type Options struct {
	// MaxUploadBytes bounds the whole multipart body.
	MaxUploadBytes int64
	// MaxPixels bounds the decoded size of each uploaded image.
	MaxPixels int64
	// Defaults fill in density and sharpness when a request omits them.
	Defaults domain.Params
}

const defaultFormMemory = 10 << 20

type Handler struct {
	runner Runner
	info   model.Info
	opts   Options
}

func NewHandler(runner Runner, info model.Info, opts Options) *Handler {
	return &Handler{
		runner: runner,
		info:   info,
		opts:   opts,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.info)
}

// Stylize accepts a multipart form with "content" and "style" image files and
// optional "density", "sharpness" and "fit" fields, and responds with a PNG.
func (h *Handler) Stylize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := requestID(r)
	w.Header().Set("X-Request-ID", id)
	l := log.With().Str("requestId", id).Logger()
	ctx := l.WithContext(r.Context())

	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	}
	memory := h.opts.MaxUploadBytes
	if memory <= 0 {
		memory = defaultFormMemory
	}
	if err := r.ParseMultipartForm(memory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, fmt.Sprintf("Upload exceeds %d bytes", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	content, ok := h.formImage(w, r, "content", l)
	if !ok {
		return
	}
	style, ok := h.formImage(w, r, "style", l)
	if !ok {
		return
	}

	params := h.opts.Defaults
	var err error
	if params.Density, err = formFloat(r, "density", params.Density); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.Sharpness, err = formFloat(r, "sharpness", params.Sharpness); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fit := r.FormValue("fit")
	if fit != "" && fit != "source" {
		http.Error(w, "fit must be empty or \"source\"", http.StatusBadRequest)
		return
	}

	out, err := h.runner.Run(ctx, content, style, params)
	if err != nil {
		l.Error().Err(err).Msg("stylize failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if fit == "source" {
		out, err = imageio.Fit(out, content.Width(), content.Height())
		if err != nil {
			l.Error().Err(err).Msg("resize failed")
			http.Error(w, "Failed to resize result", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "image/png")
	if err := imageio.EncodePNG(w, out); err != nil {
		l.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) formImage(w http.ResponseWriter, r *http.Request, field string,
	l zerolog.Logger) (domain.ByteImage, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		http.Error(w, fmt.Sprintf("No %s image provided. Use '%s' as the form field name", field, field),
			http.StatusBadRequest)
		return domain.ByteImage{}, false
	}
	defer file.Close()

	img, format, err := imageio.Decode(file, h.opts.MaxPixels)
	if err != nil {
		l.Debug().Err(err).Str("field", field).Msg("rejected upload")
		if errors.Is(err, domain.ErrInvalidImageShape) {
			http.Error(w, fmt.Sprintf("Invalid %s image: %s", field, err), http.StatusBadRequest)
			return domain.ByteImage{}, false
		}
		http.Error(w, fmt.Sprintf("Invalid %s image. Supported: JPEG, PNG, GIF, WebP, BMP, TIFF", field),
			http.StatusBadRequest)
		return domain.ByteImage{}, false
	}

	l.Debug().
		Str("field", field).
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Str("format", format).
		Int("width", img.Width()).
		Int("height", img.Height()).
		Int("channels", img.Channels()).
		Msg("received image")

	return img, true
}

func formFloat(r *http.Request, name string, def float32) (float32, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}

	return float32(v), nil
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "unknown"
	}

	return id.String()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrParameterOutOfRange),
		errors.Is(err, domain.ErrInvalidImageShape),
		errors.Is(err, imageio.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrModelInvocation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
