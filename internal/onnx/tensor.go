package onnx

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/netthinne/internal/mempool"
)

// Tensor represents a dense float32 tensor passed to or returned from a model.
// Data layout is row-major over Shape. Tensors are not mutated once built.
type Tensor struct {
	Data  []float32
	Shape []int64 // e.g., [N, C, H, W]
}

// NewTensor builds a tensor after checking that data fills the shape exactly.
func NewTensor(data []float32, shape ...int64) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if len(shape) == 0 {
		shape = []int64{int64(len(data))}
	}
	expected := int64(1)
	for i, v := range shape {
		if v <= 0 {
			return Tensor{}, fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
		expected *= v
	}
	if int64(len(data)) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d for shape %v", len(data), expected, shape)
	}
	return Tensor{Data: data, Shape: append([]int64(nil), shape...)}, nil
}

// Release hands Data back to the buffer pool. The tensor must not be used
// afterwards.
func (t Tensor) Release() { mempool.PutFloat32(t.Data) }

// Len returns the number of elements.
func (t Tensor) Len() int { return len(t.Data) }

// ValidateImageShape ensures a shape is rank 4 with positive dimensions.
func ValidateImageShape(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// TensorStats computes min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
