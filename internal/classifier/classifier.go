package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/netthinne/internal/onnx"
)

// Result is the winning class of one classification.
type Result struct {
	ClassIndex int
	// Confidence is the softmax probability of ClassIndex.
	Confidence float32
}

// ErrEmptyOutput is returned when the model produced no scores.
var ErrEmptyOutput = errors.New("classifier produced empty output")

// Classify runs one forward pass and picks the highest scoring class.
// Ties go to the lowest index.
func Classify(input onnx.Tensor, fwd onnx.Forwarder) (Result, error) {
	if fwd == nil {
		return Result{}, fmt.Errorf("%w: nil forwarder", onnx.ErrModelUnavailable)
	}
	out, err := fwd.Forward(input)
	if err != nil {
		return Result{}, fmt.Errorf("classifier forward pass: %w", err)
	}
	if len(out.Data) == 0 {
		return Result{}, ErrEmptyOutput
	}
	idx := Argmax(out.Data)
	probs := Softmax(out.Data)
	return Result{ClassIndex: idx, Confidence: float32(probs[idx])}, nil
}

// Argmax returns the index of the largest value, or -1 for an empty slice.
// The first maximum wins.
func Argmax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	maxIdx := 0
	maxVal := values[0]
	for i, v := range values[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return maxIdx
}

// Softmax converts logits to probabilities.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}

	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var sum float64
	probs := make([]float64, len(logits))
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Classifier bundles the model input spec with a lazily loaded model.
type Classifier struct {
	Spec  onnx.TensorSpec
	Model *onnx.ModelCache
}

// New creates a classifier for spec backed by model.
func New(spec onnx.TensorSpec, model *onnx.ModelCache) (*Classifier, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("classifier input: %w", err)
	}
	if model == nil {
		return nil, errors.New("classifier needs a model")
	}
	return &Classifier{Spec: spec, Model: model}, nil
}

// Prepare converts a crop into the classifier input tensor.
func (c *Classifier) Prepare(crop image.Image) (onnx.Tensor, error) {
	return onnx.PreprocessImage(crop, c.Spec)
}

// Run classifies an already prepared tensor, loading the model if needed.
func (c *Classifier) Run(ctx context.Context, input onnx.Tensor) (Result, error) {
	fwd, err := c.Model.Get(ctx)
	if err != nil {
		return Result{}, err
	}
	return Classify(input, fwd)
}

// ClassifyCrop prepares and classifies a crop in one call.
func (c *Classifier) ClassifyCrop(ctx context.Context, crop image.Image) (Result, error) {
	input, err := c.Prepare(crop)
	if err != nil {
		return Result{}, err
	}
	defer input.Release()
	return c.Run(ctx, input)
}

// Close releases the model.
func (c *Classifier) Close() error { return c.Model.Close() }
