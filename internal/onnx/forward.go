package onnx

import "errors"

// ErrModelUnavailable is returned when a model cannot be loaded or initialized.
var ErrModelUnavailable = errors.New("model unavailable")

// Forwarder runs a single forward pass. Implementations must be safe for
// concurrent use.
type Forwarder interface {
	Forward(input Tensor) (Tensor, error)
}

// ForwardFunc adapts a plain function to the Forwarder interface.
type ForwardFunc func(input Tensor) (Tensor, error)

// Forward calls f(input).
func (f ForwardFunc) Forward(input Tensor) (Tensor, error) { return f(input) }
