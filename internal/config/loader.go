package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "netthinne"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "NETTHINNE"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags
// bound by the root command are visible.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on an explicit viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{v: v}
}

// Load reads the config file from the search paths (if any), environment
// variables and defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// standard locations.
func (l *Loader) LoadFile(configFile string) (*Config, error) {
	cfg, err := l.LoadFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFileWithoutValidation loads configuration without validating it.
func (l *Loader) LoadFileWithoutValidation(configFile string) (*Config, error) {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
		if err := l.v.ReadInConfig(); err != nil {
			// A missing file is fine; defaults and env vars still apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps keys like server.port to NETTHINNE_SERVER_PORT.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can override it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	det := d.Pipeline.Detector
	l.v.SetDefault("pipeline.detector.model_path", det.ModelPath)
	l.setTensorDefaults("pipeline.detector.input", det.Input)
	l.v.SetDefault("pipeline.detector.num_classes", det.NumClasses)
	l.v.SetDefault("pipeline.detector.conf_threshold", det.ConfThreshold)
	l.v.SetDefault("pipeline.detector.iou_threshold", det.IoUThreshold)
	l.v.SetDefault("pipeline.detector.max_detections", det.MaxDetections)
	l.v.SetDefault("pipeline.detector.num_threads", det.NumThreads)

	cls := d.Pipeline.Classifier
	l.v.SetDefault("pipeline.classifier.model_path", cls.ModelPath)
	l.setTensorDefaults("pipeline.classifier.input", cls.Input)
	l.v.SetDefault("pipeline.classifier.num_threads", cls.NumThreads)

	l.v.SetDefault("pipeline.warmup_iterations", d.Pipeline.WarmupIterations)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.overlay_dir", d.Output.OverlayDir)
	l.v.SetDefault("output.overlay_box_color", d.Output.OverlayBoxColor)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.overlay_enabled", d.Server.OverlayEnabled)
	l.v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_day", d.Server.RateLimit.RequestsPerDay)
	l.v.SetDefault("server.rate_limit.mb_per_day", d.Server.RateLimit.MBPerDay)
	l.v.SetDefault("server.rate_limit.trust_proxy", d.Server.RateLimit.TrustProxy)

	l.v.SetDefault("gpu.enabled", d.GPU.Enabled)
	l.v.SetDefault("gpu.device", d.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", d.GPU.MemoryLimit)
}

func (l *Loader) setTensorDefaults(prefix string, t TensorConfig) {
	l.v.SetDefault(prefix+".size", t.Size)
	l.v.SetDefault(prefix+".layout", t.Layout)
	l.v.SetDefault(prefix+".channel_order", t.ChannelOrder)
	l.v.SetDefault(prefix+".mean", t.Mean)
	l.v.SetDefault(prefix+".scale", t.Scale)
}

// GetResolvedConfig returns the current resolved settings for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// GenerateDefaultConfigFile writes the default configuration as YAML.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	data, err := MarshalYAML(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o600)
}

// MarshalYAML renders cfg in the config file format.
func MarshalYAML(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}
