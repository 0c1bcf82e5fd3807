package testutil

import (
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/netthinne/internal/onnx"
)

// StubBox is one detector output column in model-input pixels.
type StubBox struct {
	CX, CY, W, H float32
	Class        int
	Score        float32
}

// DetectorOutput lays boxes out as an attribute-major [4+numClasses, N] tensor.
func DetectorOutput(numClasses int, boxes ...StubBox) onnx.Tensor {
	rows := 4 + numClasses
	n := len(boxes)
	data := make([]float32, rows*n)
	for c, b := range boxes {
		data[c] = b.CX
		data[n+c] = b.CY
		data[2*n+c] = b.W
		data[3*n+c] = b.H
		if b.Class >= 0 && b.Class < numClasses {
			data[(4+b.Class)*n+c] = b.Score
		}
	}
	return onnx.Tensor{Data: data, Shape: []int64{1, int64(rows), int64(n)}}
}

// CountingForwarder returns a fixed output and counts calls.
type CountingForwarder struct {
	Output onnx.Tensor
	Err    error
	calls  atomic.Int64

	mu   sync.Mutex
	last onnx.Tensor
}

// Forward implements onnx.Forwarder.
func (f *CountingForwarder) Forward(input onnx.Tensor) (onnx.Tensor, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = onnx.Tensor{
		Data:  append([]float32(nil), input.Data...),
		Shape: append([]int64(nil), input.Shape...),
	}
	f.mu.Unlock()
	if f.Err != nil {
		return onnx.Tensor{}, f.Err
	}
	data := make([]float32, len(f.Output.Data))
	copy(data, f.Output.Data)
	return onnx.Tensor{Data: data, Shape: f.Output.Shape}, nil
}

// LastInput returns a copy of the most recent input. The caller's tensor may
// have gone back to the buffer pool since, so the copy is taken in Forward.
func (f *CountingForwarder) LastInput() onnx.Tensor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Calls returns how many times Forward ran.
func (f *CountingForwarder) Calls() int { return int(f.calls.Load()) }

// StubDetector returns a detector forwarder that always emits boxes.
func StubDetector(numClasses int, boxes ...StubBox) *CountingForwarder {
	return &CountingForwarder{Output: DetectorOutput(numClasses, boxes...)}
}

// StubClassifier returns a classifier forwarder that always emits logits.
func StubClassifier(logits ...float32) *CountingForwarder {
	return &CountingForwarder{Output: onnx.Tensor{Data: logits, Shape: []int64{1, int64(len(logits))}}}
}

// OneHot returns n logits with a large value at idx.
func OneHot(n, idx int) []float32 {
	out := make([]float32, n)
	if idx >= 0 && idx < n {
		out[idx] = 10
	}
	return out
}

// FailingForwarder returns err on every call.
func FailingForwarder(err error) *CountingForwarder {
	return &CountingForwarder{Err: err}
}
