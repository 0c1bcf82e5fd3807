package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/netthinne/internal/classifier"
	"github.com/MeKo-Tech/netthinne/internal/detector"
	"github.com/MeKo-Tech/netthinne/internal/labels"
	"github.com/MeKo-Tech/netthinne/internal/models"
	"github.com/MeKo-Tech/netthinne/internal/onnx"
)

// ClassifierConfig holds classifier model settings.
type ClassifierConfig struct {
	ModelPath  string
	Input      onnx.TensorSpec
	NumThreads int
	GPU        onnx.GPUConfig
}

// DefaultClassifierConfig returns the MobileNetV2 settings.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Input: onnx.ClassifierSpec(),
		GPU:   onnx.DefaultGPUConfig(),
	}
}

// Config holds configuration for the recognition pipeline and its components.
type Config struct {
	ModelsDir        string
	Detector         detector.Config
	Classifier       ClassifierConfig
	WarmupIterations int // optional forward passes per model right after Build
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	dir := models.GetModelsDir("")
	cfg := Config{
		ModelsDir:  dir,
		Detector:   detector.DefaultConfig(),
		Classifier: DefaultClassifierConfig(),
	}
	cfg.Detector.ModelPath = models.GetDetectorModelPath(dir)
	cfg.Classifier.ModelPath = models.GetClassifierModelPath(dir)
	return cfg
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg          Config
	detectorFwd  onnx.Forwarder
	classifyFwd  onnx.Forwarder
	labelSet     *labels.Set
	detectorPath bool
	classifyPath bool
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from an existing configuration.
func NewBuilderFromConfig(cfg Config) *Builder {
	return &Builder{cfg: cfg, detectorPath: cfg.Detector.ModelPath != "", classifyPath: cfg.Classifier.ModelPath != ""}
}

// WithModelsDir sets the models directory and updates model paths that were
// not set explicitly.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir == "" {
		return b
	}
	b.cfg.ModelsDir = dir
	if !b.detectorPath {
		b.cfg.Detector.ModelPath = models.GetDetectorModelPath(dir)
	}
	if !b.classifyPath {
		b.cfg.Classifier.ModelPath = models.GetClassifierModelPath(dir)
	}
	return b
}

// WithDetectorModelPath overrides the detector model path directly.
func (b *Builder) WithDetectorModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Detector.ModelPath = path
		b.detectorPath = true
	}
	return b
}

// WithClassifierModelPath overrides the classifier model path directly.
func (b *Builder) WithClassifierModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Classifier.ModelPath = path
		b.classifyPath = true
	}
	return b
}

// WithThresholds sets the detector confidence and IoU thresholds. Values
// outside (0,1] are ignored.
func (b *Builder) WithThresholds(conf float32, iou float64) *Builder {
	if conf > 0 && conf <= 1 {
		b.cfg.Detector.ConfThreshold = conf
	}
	if iou > 0 && iou <= 1 {
		b.cfg.Detector.IoUThreshold = iou
	}
	return b
}

// WithMaxDetections caps the number of objects per image; 0 removes the cap.
func (b *Builder) WithMaxDetections(n int) *Builder {
	if n >= 0 {
		b.cfg.Detector.MaxDetections = n
	}
	return b
}

// WithThreads sets intra-op thread counts for both models (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.NumThreads = n
		b.cfg.Classifier.NumThreads = n
	}
	return b
}

// WithGPU enables GPU acceleration for both models.
func (b *Builder) WithGPU(enabled bool) *Builder {
	b.cfg.Detector.GPU.UseGPU = enabled
	b.cfg.Classifier.GPU.UseGPU = enabled
	return b
}

// WithGPUDevice sets the CUDA device ID for both models.
func (b *Builder) WithGPUDevice(deviceID int) *Builder {
	b.cfg.Detector.GPU.DeviceID = deviceID
	b.cfg.Classifier.GPU.DeviceID = deviceID
	return b
}

// WithWarmupIterations sets model warmup runs to reduce first-request latency.
func (b *Builder) WithWarmupIterations(n int) *Builder {
	if n >= 0 {
		b.cfg.WarmupIterations = n
	}
	return b
}

// WithDetectorForwarder replaces the detector model with fwd.
func (b *Builder) WithDetectorForwarder(fwd onnx.Forwarder) *Builder {
	b.detectorFwd = fwd
	return b
}

// WithClassifierForwarder replaces the classifier model with fwd.
func (b *Builder) WithClassifierForwarder(fwd onnx.Forwarder) *Builder {
	b.classifyFwd = fwd
	return b
}

// WithLabels uses set instead of loading label tables from the models directory.
func (b *Builder) WithLabels(set labels.Set) *Builder {
	b.labelSet = &set
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration values. Model files are not required to
// exist; a missing model surfaces as onnx.ErrModelUnavailable on first use.
func (b *Builder) Validate() error {
	if err := b.cfg.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := b.cfg.Classifier.Input.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if b.detectorFwd == nil && b.cfg.Detector.ModelPath == "" {
		return errors.New("detector model path is empty")
	}
	if b.classifyFwd == nil && b.cfg.Classifier.ModelPath == "" {
		return errors.New("classifier model path is empty")
	}
	if b.cfg.WarmupIterations < 0 {
		return errors.New("warmup iterations cannot be negative")
	}
	return nil
}

// Pipeline wires together the detector, classifier and label tables.
// It is safe for concurrent use; each Run is sequential.
type Pipeline struct {
	cfg        Config
	Detector   *detector.Detector
	Classifier *classifier.Classifier
	Labels     labels.Set
}

// Build validates the configuration and creates the pipeline. Models are
// loaded lazily unless warmup iterations are configured.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	detModel := b.modelCache("detector", b.detectorFwd, onnx.SessionConfig{
		ModelPath:  b.cfg.Detector.ModelPath,
		GPU:        b.cfg.Detector.GPU,
		NumThreads: b.cfg.Detector.NumThreads,
	})
	det, err := detector.New(b.cfg.Detector, detModel)
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}

	clsModel := b.modelCache("classifier", b.classifyFwd, onnx.SessionConfig{
		ModelPath:  b.cfg.Classifier.ModelPath,
		GPU:        b.cfg.Classifier.GPU,
		NumThreads: b.cfg.Classifier.NumThreads,
	})
	cls, err := classifier.New(b.cfg.Classifier.Input, clsModel)
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}

	var set labels.Set
	if b.labelSet != nil {
		set = *b.labelSet
	} else {
		set, err = labels.LoadSet(b.cfg.ModelsDir)
		if err != nil {
			return nil, fmt.Errorf("load labels: %w", err)
		}
	}

	p := &Pipeline{cfg: b.cfg, Detector: det, Classifier: cls, Labels: set}

	if b.cfg.WarmupIterations > 0 {
		if err := p.Warmup(context.Background(), b.cfg.WarmupIterations); err != nil {
			_ = p.Close()
			return nil, err
		}
	}

	slog.Debug("Pipeline built",
		"models_dir", b.cfg.ModelsDir,
		"detector_model", b.cfg.Detector.ModelPath,
		"classifier_model", b.cfg.Classifier.ModelPath)
	return p, nil
}

func (b *Builder) modelCache(name string, fwd onnx.Forwarder, cfg onnx.SessionConfig) *onnx.ModelCache {
	if fwd != nil {
		return onnx.StaticModel(name, fwd)
	}
	return onnx.NewSessionCache(name, cfg)
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Warmup loads both models and runs iterations forward passes on blank input.
func (p *Pipeline) Warmup(ctx context.Context, iterations int) error {
	detInput, err := onnx.NewTensor(make([]float32, 3*p.cfg.Detector.Input.Width*p.cfg.Detector.Input.Height),
		p.cfg.Detector.Input.Shape()...)
	if err != nil {
		return err
	}
	clsSpec := p.Classifier.Spec
	clsInput, err := onnx.NewTensor(make([]float32, 3*clsSpec.Width*clsSpec.Height), clsSpec.Shape()...)
	if err != nil {
		return err
	}

	for i := range iterations {
		if _, err := p.Detector.Infer(ctx, detInput); err != nil {
			return fmt.Errorf("detector warmup %d: %w", i, err)
		}
		if _, err := p.Classifier.Run(ctx, clsInput); err != nil && !errors.Is(err, classifier.ErrEmptyOutput) {
			return fmt.Errorf("classifier warmup %d: %w", i, err)
		}
	}
	slog.Debug("Pipeline warmup complete", "iterations", iterations)
	return nil
}

// Info returns a summary of the pipeline configuration.
func (p *Pipeline) Info() map[string]interface{} {
	d := p.cfg.Detector
	return map[string]interface{}{
		"models_dir": p.cfg.ModelsDir,
		"detector": map[string]interface{}{
			"model_path":     d.ModelPath,
			"loaded":         p.Detector.Model().Loaded(),
			"input":          fmt.Sprintf("%dx%d %s %s", d.Input.Width, d.Input.Height, d.Input.Layout, d.Input.Order),
			"num_classes":    d.NumClasses,
			"conf_threshold": d.ConfThreshold,
			"iou_threshold":  d.IoUThreshold,
			"max_detections": d.MaxDetections,
		},
		"classifier": map[string]interface{}{
			"model_path": p.cfg.Classifier.ModelPath,
			"loaded":     p.Classifier.Model.Loaded(),
			"input": fmt.Sprintf("%dx%d %s %s", p.Classifier.Spec.Width, p.Classifier.Spec.Height,
				p.Classifier.Spec.Layout, p.Classifier.Spec.Order),
			"labels": p.Labels.ClassifierEN.Len(),
		},
	}
}

// Close releases model resources.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Detector != nil {
		errs = append(errs, p.Detector.Close())
	}
	if p.Classifier != nil {
		errs = append(errs, p.Classifier.Close())
	}
	return errors.Join(errs...)
}
