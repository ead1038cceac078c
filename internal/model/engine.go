package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

type Config struct {
	ModelPath    string
	MetadataPath string
	// SHA256 pins the model file. Empty disables the check.
	SHA256 string
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default.
	LibraryPath string
}

// Engine runs the style transfer graph with ONNX Runtime. The session and its
// tensors are allocated once; Stylize calls are serialized.
type Engine struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	Metadata      Metadata
	digest        string
	contentTensor *ort.Tensor[float32]
	styleTensor   *ort.Tensor[float32]
	outputTensor  *ort.Tensor[float32]
}

func NewEngine(cfg Config) (*Engine, error) {
	metadata, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	digest, err := VerifyDigest(cfg.ModelPath, cfg.SHA256)
	if err != nil {
		return nil, err
	}
	if cfg.SHA256 == "" {
		log.Warn().Str("sha256", digest).Msg("model digest is not pinned")
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	e := &Engine{Metadata: metadata, digest: digest}

	shape := ort.NewShape(metadata.Shape().Int64s()...)
	for _, t := range []**ort.Tensor[float32]{&e.contentTensor, &e.styleTensor, &e.outputTensor} {
		*t, err = ort.NewEmptyTensor[float32](shape)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to create tensor: %w", err)
		}
	}

	inputs, outputs := e.sessionTensors()
	e.session, err = ort.NewAdvancedSession(cfg.ModelPath,
		[]string{metadata.ContentInput, metadata.StyleInput}, []string{metadata.Output},
		inputs, outputs, nil)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.Info().
		Str("model", cfg.ModelPath).
		Str("identifier", metadata.Identifier).
		Str("sha256", digest).
		Int("imageSize", metadata.ImageSize).
		Msg("style model loaded")

	return e, nil
}

// sessionTensors orders the preallocated tensors like the input and output
// names passed to the session.
func (e *Engine) sessionTensors() (inputs, outputs []ort.ArbitraryTensor) {
	return []ort.ArbitraryTensor{e.contentTensor, e.styleTensor}, []ort.ArbitraryTensor{e.outputTensor}
}

func (e *Engine) Info() Info {
	return Info{Identifier: e.Metadata.Identifier, SHA256: e.digest, ImageSize: e.Metadata.ImageSize}
}

// Stylize runs one inference. The result is copied out of the session's
// output tensor, so it stays valid after later calls.
func (e *Engine) Stylize(ctx context.Context, content, style domain.ImageTensor) (domain.ImageTensor, error) {
	want := e.Metadata.Shape()
	if content.Shape() != want || style.Shape() != want {
		return domain.ImageTensor{}, fmt.Errorf("%w: model expects %s, got content %s and style %s",
			domain.ErrInvalidImageShape, want, content.Shape(), style.Shape())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The request may have expired while waiting for the session.
	if err := ctx.Err(); err != nil {
		return domain.ImageTensor{}, err
	}

	copy(e.contentTensor.GetData(), content.Data())
	copy(e.styleTensor.GetData(), style.Data())

	if err := e.session.Run(); err != nil {
		return domain.ImageTensor{}, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, want.Len())
	copy(out, e.outputTensor.GetData())

	return domain.NewImageTensor(want, out)
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	for _, t := range []**ort.Tensor[float32]{&e.contentTensor, &e.styleTensor, &e.outputTensor} {
		if *t != nil {
			(*t).Destroy()
			*t = nil
		}
	}
	ort.DestroyEnvironment()
}
