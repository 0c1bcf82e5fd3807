//nolint:lll
package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/MeKo-Tech/netthinne/internal/detector"
	"github.com/MeKo-Tech/netthinne/internal/models"
	"github.com/MeKo-Tech/netthinne/internal/onnx"
	"github.com/MeKo-Tech/netthinne/internal/pipeline"
)

// Config represents the complete configuration for netthinne.
// It covers the detect and serve commands and is loaded from configuration
// files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	GPU      GPUConfig      `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// PipelineConfig contains model and post-processing settings.
type PipelineConfig struct {
	Detector         DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Classifier       ClassifierConfig `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	WarmupIterations int              `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
}

// TensorConfig describes a model input tensor.
type TensorConfig struct {
	Size         int     `mapstructure:"size" yaml:"size" json:"size"`
	Layout       string  `mapstructure:"layout" yaml:"layout" json:"layout"`
	ChannelOrder string  `mapstructure:"channel_order" yaml:"channel_order" json:"channel_order"`
	Mean         float32 `mapstructure:"mean" yaml:"mean" json:"mean"`
	Scale        float32 `mapstructure:"scale" yaml:"scale" json:"scale"`
}

// DetectorConfig contains object detection settings.
type DetectorConfig struct {
	ModelPath     string       `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	Input         TensorConfig `mapstructure:"input" yaml:"input" json:"input"`
	NumClasses    int          `mapstructure:"num_classes" yaml:"num_classes" json:"num_classes"`
	ConfThreshold float32      `mapstructure:"conf_threshold" yaml:"conf_threshold" json:"conf_threshold"`
	IoUThreshold  float64      `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	MaxDetections int          `mapstructure:"max_detections" yaml:"max_detections" json:"max_detections"`
	NumThreads    int          `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// ClassifierConfig contains crop classification settings.
type ClassifierConfig struct {
	ModelPath  string       `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	Input      TensorConfig `mapstructure:"input" yaml:"input" json:"input"`
	NumThreads int          `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format          string `mapstructure:"format" yaml:"format" json:"format"`
	File            string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir      string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	OverlayBoxColor string `mapstructure:"overlay_box_color" yaml:"overlay_box_color" json:"overlay_box_color"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayEnabled  bool   `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds per-client traffic on /detect and /ws. Zero disables
// a limit.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerDay    int  `mapstructure:"requests_per_day" yaml:"requests_per_day" json:"requests_per_day"`
	MBPerDay          int  `mapstructure:"mb_per_day" yaml:"mb_per_day" json:"mb_per_day"`
	TrustProxy        bool `mapstructure:"trust_proxy" yaml:"trust_proxy" json:"trust_proxy"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// Output formats accepted by detect and the server.
var validFormats = []string{"text", "json", "csv", "yaml"}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	return Config{
		ModelsDir: models.GetModelsDir(""),
		LogLevel:  "info",
		Pipeline: PipelineConfig{
			Detector: DetectorConfig{
				Input:         tensorConfig(det.Input),
				NumClasses:    det.NumClasses,
				ConfThreshold: det.ConfThreshold,
				IoUThreshold:  det.IoUThreshold,
				MaxDetections: det.MaxDetections,
			},
			Classifier: ClassifierConfig{
				Input: tensorConfig(onnx.ClassifierSpec()),
			},
		},
		Output: OutputConfig{
			Format:          "text",
			OverlayBoxColor: "#ff0000",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  true,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				RequestsPerDay:    5000,
				MBPerDay:          1024,
			},
		},
		GPU: GPUConfig{
			MemoryLimit: "auto",
		},
	}
}

// tensorConfig flattens a spec with uniform per-channel normalization.
func tensorConfig(s onnx.TensorSpec) TensorConfig {
	return TensorConfig{
		Size:         s.Width,
		Layout:       s.Layout.String(),
		ChannelOrder: s.Order.String(),
		Mean:         s.Mean[0],
		Scale:        s.Scale[0],
	}
}

// Spec converts the tensor config into a square model input spec.
func (t TensorConfig) Spec() (onnx.TensorSpec, error) {
	layout, err := onnx.ParseLayout(t.Layout)
	if err != nil {
		return onnx.TensorSpec{}, err
	}
	order, err := onnx.ParseChannelOrder(t.ChannelOrder)
	if err != nil {
		return onnx.TensorSpec{}, err
	}
	spec := onnx.TensorSpec{
		Width:  t.Size,
		Height: t.Size,
		Layout: layout,
		Order:  order,
		Mean:   [3]float32{t.Mean, t.Mean, t.Mean},
		Scale:  [3]float32{t.Scale, t.Scale, t.Scale},
	}
	return spec, spec.Validate()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if _, err := ParseColor(c.Output.OverlayBoxColor); err != nil {
		return fmt.Errorf("invalid overlay box color: %w", err)
	}

	det := c.Pipeline.Detector
	if err := validateThreshold(float64(det.ConfThreshold), "detector.conf_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(det.IoUThreshold, "detector.iou_threshold"); err != nil {
		return err
	}
	if det.NumClasses <= 0 {
		return fmt.Errorf("invalid detector num_classes: %d (must be positive)", det.NumClasses)
	}
	if det.MaxDetections < 0 {
		return fmt.Errorf("invalid detector max_detections: %d (0 means unlimited)", det.MaxDetections)
	}
	if _, err := det.Input.Spec(); err != nil {
		return fmt.Errorf("invalid detector input: %w", err)
	}
	if _, err := c.Pipeline.Classifier.Input.Spec(); err != nil {
		return fmt.Errorf("invalid classifier input: %w", err)
	}
	if c.Pipeline.WarmupIterations < 0 {
		return fmt.Errorf("invalid warmup iterations: %d", c.Pipeline.WarmupIterations)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if rl := c.Server.RateLimit; rl.RequestsPerMinute < 0 || rl.RequestsPerDay < 0 || rl.MBPerDay < 0 {
		return fmt.Errorf("invalid rate limit: %+v (limits must not be negative)", rl)
	}

	if _, err := ParseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration.
// It assumes Validate has succeeded.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.ModelsDir = c.ModelsDir
	cfg.WarmupIterations = c.Pipeline.WarmupIterations

	gpu := c.toGPUConfig()

	det := c.Pipeline.Detector
	cfg.Detector.ModelPath = det.ModelPath
	if cfg.Detector.ModelPath == "" {
		cfg.Detector.ModelPath = models.GetDetectorModelPath(c.ModelsDir)
	}
	if spec, err := det.Input.Spec(); err == nil {
		cfg.Detector.Input = spec
	}
	cfg.Detector.NumClasses = det.NumClasses
	cfg.Detector.ConfThreshold = det.ConfThreshold
	cfg.Detector.IoUThreshold = det.IoUThreshold
	cfg.Detector.MaxDetections = det.MaxDetections
	cfg.Detector.NumThreads = det.NumThreads
	cfg.Detector.GPU = gpu

	cls := c.Pipeline.Classifier
	cfg.Classifier.ModelPath = cls.ModelPath
	if cfg.Classifier.ModelPath == "" {
		cfg.Classifier.ModelPath = models.GetClassifierModelPath(c.ModelsDir)
	}
	if spec, err := cls.Input.Spec(); err == nil {
		cfg.Classifier.Input = spec
	}
	cfg.Classifier.NumThreads = cls.NumThreads
	cfg.Classifier.GPU = gpu
	return cfg
}

func (c *Config) toGPUConfig() onnx.GPUConfig {
	gpu := onnx.DefaultGPUConfig()
	gpu.UseGPU = c.GPU.Enabled
	gpu.DeviceID = c.GPU.Device
	if limit, err := ParseMemoryLimit(c.GPU.MemoryLimit); err == nil {
		gpu.GPUMemLimit = limit
	}
	return gpu
}

// ParseColor parses a hex color such as "#ff0000". An empty string is red.
func ParseColor(s string) (colorful.Color, error) {
	if s == "" {
		s = "#ff0000"
	}
	return colorful.Hex(s)
}

func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// ParseMemoryLimit converts a GPU memory limit such as "512MB" or "2GB" to
// bytes. "" and "auto" mean unlimited (0).
func ParseMemoryLimit(limit string) (uint64, error) {
	limit = strings.ToUpper(strings.TrimSpace(limit))
	if limit == "" || limit == "AUTO" {
		return 0, nil
	}

	units := []struct {
		suffix string
		factor float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(limit, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(limit, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.factor), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB (got %s)", limit)
}
