package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/netthinne/internal/onnx"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// Config holds detector model settings and post-processing thresholds.
type Config struct {
	ModelPath     string          // Path to the ONNX detector model
	Input         onnx.TensorSpec // Model input tensor description
	NumClasses    int             // Number of class score rows in the output (default: 80)
	ConfThreshold float32         // Minimum best-class score (default: 0.25)
	IoUThreshold  float64         // Same-class suppression threshold (default: 0.45)
	MaxDetections int             // Maximum kept detections, 0 for no cap (default: 3)
	NumThreads    int             // Number of CPU threads (default: 0 for auto)
	GPU           onnx.GPUConfig  // GPU acceleration configuration
}

// DefaultConfig returns the YOLOv8n settings.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "",
		Input:         onnx.DetectorSpec(),
		NumClasses:    80,
		ConfThreshold: 0.25,
		IoUThreshold:  0.45,
		MaxDetections: 3,
		GPU:           onnx.DefaultGPUConfig(),
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("detector input: %w", err)
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("num classes must be positive, got %d", c.NumClasses)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %f", c.ConfThreshold)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("IoU threshold must be in [0,1], got %f", c.IoUThreshold)
	}
	if c.MaxDetections < 0 {
		return fmt.Errorf("max detections cannot be negative, got %d", c.MaxDetections)
	}
	if c.NumThreads < 0 {
		return fmt.Errorf("num threads cannot be negative, got %d", c.NumThreads)
	}
	return nil
}

// DecodeParams derives the decoder parameters from the configuration.
func (c Config) DecodeParams() DecodeParams {
	return DecodeParams{
		NumClasses:    c.NumClasses,
		InputWidth:    c.Input.Width,
		InputHeight:   c.Input.Height,
		ConfThreshold: c.ConfThreshold,
	}
}

// Detector runs the object detector and turns its output into detections.
type Detector struct {
	config Config
	model  *onnx.ModelCache
}

// New creates a detector backed by model. When model is nil an ONNX Runtime
// session for config.ModelPath is opened on first use.
func New(config Config, model *onnx.ModelCache) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		if config.ModelPath == "" {
			return nil, errors.New("detector needs a model path or a model")
		}
		model = onnx.NewSessionCache("detector", onnx.SessionConfig{
			ModelPath:  config.ModelPath,
			GPU:        config.GPU,
			NumThreads: config.NumThreads,
		})
	}
	return &Detector{config: config, model: model}, nil
}

// Config returns a copy of the detector's configuration.
func (d *Detector) Config() Config { return d.config }

// Model returns the underlying model cache.
func (d *Detector) Model() *onnx.ModelCache { return d.model }

// Preprocess converts pixels into the detector's input tensor.
func (d *Detector) Preprocess(pixels utils.PixelBuffer) (onnx.Tensor, error) {
	return onnx.Preprocess(pixels, d.config.Input)
}

// Infer runs the detector model. Model initialization failures are returned
// as onnx.ErrModelUnavailable.
func (d *Detector) Infer(ctx context.Context, input onnx.Tensor) ([]float32, error) {
	model, err := d.model.Get(ctx)
	if err != nil {
		return nil, err
	}
	out, err := model.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("detector forward pass: %w", err)
	}
	if stride := d.config.DecodeParams().Stride(); len(out.Data)%stride != 0 {
		slog.Warn("Detector output not a multiple of attribute rows",
			"len", len(out.Data), "rows", stride, "shape", out.Shape)
	}
	return out.Data, nil
}

// Postprocess decodes raw output and applies non-maximum suppression.
func (d *Detector) Postprocess(raw []float32, origW, origH int) []Detection {
	candidates := Decode(raw, d.config.DecodeParams(), origW, origH)
	kept := Suppress(candidates, d.config.IoUThreshold, d.config.MaxDetections)
	slog.Debug("Detector postprocess",
		"candidates", len(candidates),
		"kept", len(kept))
	return kept
}

// Detect runs preprocessing, inference and postprocessing in one call.
func (d *Detector) Detect(ctx context.Context, pixels utils.PixelBuffer) ([]Detection, error) {
	input, err := d.Preprocess(pixels)
	if err != nil {
		return nil, err
	}
	raw, err := d.Infer(ctx, input)
	input.Release()
	if err != nil {
		return nil, err
	}
	return d.Postprocess(raw, pixels.Width, pixels.Height), nil
}

// Close releases the model.
func (d *Detector) Close() error {
	if d.model == nil {
		return nil
	}
	return d.model.Close()
}
