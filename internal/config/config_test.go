package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/netthinne/internal/onnx"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 640, cfg.Pipeline.Detector.Input.Size)
	assert.Equal(t, 224, cfg.Pipeline.Classifier.Input.Size)
	assert.InDelta(t, 0.25, cfg.Pipeline.Detector.ConfThreshold, 1e-6)
	assert.InDelta(t, 0.45, cfg.Pipeline.Detector.IoUThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Pipeline.Detector.MaxDetections)
	assert.Equal(t, 80, cfg.Pipeline.Detector.NumClasses)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"format", func(c *Config) { c.Output.Format = "xml" }},
		{"color", func(c *Config) { c.Output.OverlayBoxColor = "red" }},
		{"conf threshold", func(c *Config) { c.Pipeline.Detector.ConfThreshold = 1.5 }},
		{"iou threshold", func(c *Config) { c.Pipeline.Detector.IoUThreshold = -0.1 }},
		{"num classes", func(c *Config) { c.Pipeline.Detector.NumClasses = 0 }},
		{"max detections", func(c *Config) { c.Pipeline.Detector.MaxDetections = -1 }},
		{"detector layout", func(c *Config) { c.Pipeline.Detector.Input.Layout = "chw" }},
		{"classifier order", func(c *Config) { c.Pipeline.Classifier.Input.ChannelOrder = "gbr" }},
		{"classifier scale", func(c *Config) { c.Pipeline.Classifier.Input.Scale = 0 }},
		{"warmup", func(c *Config) { c.Pipeline.WarmupIterations = -1 }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = 0 }},
		{"rate limit", func(c *Config) { c.Server.RateLimit.RequestsPerMinute = -1 }},
		{"memory limit", func(c *Config) { c.GPU.MemoryLimit = "lots" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = "/srv/models"
	cfg.Pipeline.Detector.ConfThreshold = 0.4
	cfg.Pipeline.Detector.MaxDetections = 0
	cfg.Pipeline.Classifier.ModelPath = "/opt/cls.onnx"
	cfg.Pipeline.Classifier.Input.ChannelOrder = "bgr"
	cfg.Pipeline.WarmupIterations = 2
	cfg.GPU.Enabled = true
	cfg.GPU.Device = 1
	cfg.GPU.MemoryLimit = "1GB"

	pc := cfg.ToPipelineConfig()
	assert.Equal(t, "/srv/models", pc.ModelsDir)
	assert.Equal(t, "/srv/models/detection/yolov8n.onnx", pc.Detector.ModelPath)
	assert.Equal(t, "/opt/cls.onnx", pc.Classifier.ModelPath)
	assert.InDelta(t, 0.4, pc.Detector.ConfThreshold, 1e-6)
	assert.Equal(t, 0, pc.Detector.MaxDetections)
	assert.Equal(t, onnx.OrderBGR, pc.Classifier.Input.Order)
	assert.Equal(t, [3]float32{0.5, 0.5, 0.5}, pc.Classifier.Input.Mean)
	assert.Equal(t, 640, pc.Detector.Input.Height)
	assert.Equal(t, 2, pc.WarmupIterations)
	assert.True(t, pc.Detector.GPU.UseGPU)
	assert.Equal(t, 1, pc.Classifier.GPU.DeviceID)
	assert.Equal(t, uint64(1<<30), pc.Detector.GPU.GPUMemLimit)
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		err  bool
	}{
		{"", 0, false},
		{"auto", 0, false},
		{"512MB", 512 << 20, false},
		{"2gb", 2 << 30, false},
		{"1.5KB", 1536, false},
		{"100B", 100, false},
		{"MB", 0, true},
		{"12", 0, true},
		{"-1GB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMemoryLimit(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#00ff00")
	require.NoError(t, err)
	r, g, b := c.RGB255()
	assert.Equal(t, [3]uint8{0, 255, 0}, [3]uint8{r, g, b})

	c, err = ParseColor("")
	require.NoError(t, err)
	r, _, _ = c.RGB255()
	assert.Equal(t, uint8(255), r)

	_, err = ParseColor("not-a-color")
	assert.Error(t, err)
}
