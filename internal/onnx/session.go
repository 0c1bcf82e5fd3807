package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// SessionConfig configures an ONNX Runtime session for a single model file.
type SessionConfig struct {
	ModelPath  string
	GPU        GPUConfig
	NumThreads int
}

// Session wraps an ONNX Runtime session with one input and one output and
// implements Forwarder.
type Session struct {
	modelPath  string
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.RWMutex
}

var envMu sync.Mutex

// setupEnvironment locates the shared library and initializes ONNX Runtime once per process.
func setupEnvironment(useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	if err := SetONNXLibraryPath(useGPU); err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

// NewSession loads a model file and creates an inference session for it.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if err := ValidateGPUConfig(cfg.GPU); err != nil {
		return nil, err
	}

	slog.Debug("Initializing ONNX session",
		"model_path", cfg.ModelPath,
		"gpu_enabled", cfg.GPU.UseGPU,
		"threads", cfg.NumThreads)

	if err := setupEnvironment(cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := modelIO(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	if err := ConfigureSessionForGPU(opts, cfg.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputInfo.Name}, []string{outputInfo.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("ONNX session ready",
		"model_path", cfg.ModelPath,
		"input", inputInfo.Name, "input_shape", inputInfo.Dimensions,
		"output", outputInfo.Name, "output_shape", outputInfo.Dimensions)

	return &Session{
		modelPath:  cfg.ModelPath,
		session:    session,
		inputInfo:  inputInfo,
		outputInfo: outputInfo,
	}, nil
}

func modelIO(modelPath string) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	var none onnxruntime_go.InputOutputInfo
	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return none, none, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return none, none, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) < 1 {
		return none, none, errors.New("model has no outputs")
	}
	if len(inputs[0].Dimensions) != 4 {
		return none, none, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}
	return inputs[0], outputs[0], nil
}

// Forward runs the model on input and returns a copy of the first output.
func (s *Session) Forward(input Tensor) (Tensor, error) {
	if err := ValidateImageShape(input.Shape); err != nil {
		return Tensor{}, fmt.Errorf("invalid input tensor: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Tensor{}, errors.New("session is closed")
	}

	in, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(input.Shape...), input.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := in.Destroy(); err != nil {
			slog.Warn("Error destroying input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := s.session.Run([]onnxruntime_go.Value{in}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}
	out := outputs[0]
	defer func() {
		if err := out.Destroy(); err != nil {
			slog.Warn("Error destroying output tensor", "error", err)
		}
	}()

	floatOut, ok := out.(*onnxruntime_go.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("expected float32 tensor, got %T", out)
	}

	// Output memory belongs to the runtime and is freed on Destroy.
	data := append([]float32(nil), floatOut.GetData()...)
	shape := append([]int64(nil), out.GetShape()...)
	return Tensor{Data: data, Shape: shape}, nil
}

// InputShape returns the model's declared input dimensions.
func (s *Session) InputShape() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.inputInfo.Dimensions...)
}

// OutputShape returns the model's declared output dimensions.
func (s *Session) OutputShape() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.outputInfo.Dimensions...)
}

// ModelPath returns the path the session was loaded from.
func (s *Session) ModelPath() string { return s.modelPath }

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
