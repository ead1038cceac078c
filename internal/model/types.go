package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/Brownie44l1/styler/internal/domain"
)

// Metadata describes the exported style transfer graph.
type Metadata struct {
	// Identifier is the versioned reference the model was exported from.
	Identifier   string  `json:"identifier"`
	ContentInput string  `json:"content_input"`
	StyleInput   string  `json:"style_input"`
	Output       string  `json:"output"`
	InputShape   []int64 `json:"input_shape,omitempty"`
	OutputShape  []int64 `json:"output_shape,omitempty"`
	ImageSize    int     `json:"image_size"`
}

// Shape is the NHWC shape of every tensor the graph consumes and produces.
func (m Metadata) Shape() domain.Shape {
	return domain.SquareShape(m.ImageSize)
}

func (m Metadata) Validate() error {
	if m.ContentInput == "" || m.StyleInput == "" || m.Output == "" {
		return errors.New("metadata must name content_input, style_input and output")
	}
	if m.ContentInput == m.StyleInput {
		return fmt.Errorf("content and style inputs are both %q", m.ContentInput)
	}
	if m.ImageSize < 1 {
		return fmt.Errorf("invalid image_size %d", m.ImageSize)
	}

	want := m.Shape().Int64s()
	if m.InputShape != nil && !slices.Equal(m.InputShape, want) {
		return fmt.Errorf("input_shape %v does not match image_size, want %v", m.InputShape, want)
	}
	if m.OutputShape != nil && !slices.Equal(m.OutputShape, want) {
		return fmt.Errorf("output_shape %v does not match image_size, want %v", m.OutputShape, want)
	}

	return nil
}

// LoadMetadata reads and validates a metadata JSON file.
func LoadMetadata(path string) (Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := metadata.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata %s: %w", path, err)
	}

	return metadata, nil
}

// Info is the public description of a loaded model.
type Info struct {
	Identifier string `json:"identifier"`
	SHA256     string `json:"sha256"`
	ImageSize  int    `json:"image_size"`
}
