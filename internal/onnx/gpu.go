package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"

	// EnvLibraryPath overrides the ONNX Runtime shared library location.
	EnvLibraryPath = "NETTHINNE_ONNXRUNTIME_LIB"
)

var (
	arenaStrategies = []string{"kNextPowerOfTwo", "kSameAsRequested"}
	convAlgoSearch  = []string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
)

// GPUConfig selects the CUDA execution provider and its options. With UseGPU
// false the session runs on the CPU provider and the other fields are ignored.
type GPUConfig struct {
	UseGPU                bool
	DeviceID              int
	GPUMemLimit           uint64 // bytes, 0 = unlimited
	ArenaExtendStrategy   string
	CUDNNConvAlgoSearch   string
	DoCopyInDefaultStream bool
}

// DefaultGPUConfig returns a CPU-only configuration with CUDA defaults filled
// in for when UseGPU is switched on.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{
		ArenaExtendStrategy:   "kNextPowerOfTwo",
		CUDNNConvAlgoSearch:   "DEFAULT",
		DoCopyInDefaultStream: true,
	}
}

// ValidateGPUConfig reports option values the CUDA provider would reject.
func ValidateGPUConfig(cfg GPUConfig) error {
	if !cfg.UseGPU {
		return nil
	}
	if cfg.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", cfg.DeviceID)
	}
	if cfg.ArenaExtendStrategy != "" && !slices.Contains(arenaStrategies, cfg.ArenaExtendStrategy) {
		return fmt.Errorf("invalid arena extend strategy %q (want one of %s)",
			cfg.ArenaExtendStrategy, strings.Join(arenaStrategies, ", "))
	}
	if cfg.CUDNNConvAlgoSearch != "" && !slices.Contains(convAlgoSearch, cfg.CUDNNConvAlgoSearch) {
		return fmt.Errorf("invalid cuDNN conv algo search %q (want one of %s)",
			cfg.CUDNNConvAlgoSearch, strings.Join(convAlgoSearch, ", "))
	}
	return nil
}

// providerOptions renders cfg as CUDA provider key/value settings.
func (cfg GPUConfig) providerOptions() map[string]string {
	opts := map[string]string{
		"device_id":                 strconv.Itoa(cfg.DeviceID),
		"do_copy_in_default_stream": "0",
	}
	if cfg.DoCopyInDefaultStream {
		opts["do_copy_in_default_stream"] = "1"
	}
	if cfg.GPUMemLimit > 0 {
		opts["gpu_mem_limit"] = strconv.FormatUint(cfg.GPUMemLimit, 10)
	}
	if cfg.ArenaExtendStrategy != "" {
		opts["arena_extend_strategy"] = cfg.ArenaExtendStrategy
	}
	if cfg.CUDNNConvAlgoSearch != "" {
		opts["cudnn_conv_algo_search"] = cfg.CUDNNConvAlgoSearch
	}
	return opts
}

// ConfigureSessionForGPU appends the CUDA execution provider to opts when
// cfg.UseGPU is set. It is a no-op otherwise.
func ConfigureSessionForGPU(opts *onnxruntime_go.SessionOptions, cfg GPUConfig) error {
	if !cfg.UseGPU {
		return nil
	}

	cuda, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("CUDA provider unavailable: %w", err)
	}
	defer func() {
		if err := cuda.Destroy(); err != nil {
			slog.Warn("Failed to destroy CUDA provider options", "error", err)
		}
	}()

	if err := cuda.Update(cfg.providerOptions()); err != nil {
		return fmt.Errorf("failed to set CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	slog.Debug("CUDA execution provider enabled", "device", cfg.DeviceID)
	return nil
}

func getLibraryName() (string, error) {
	switch runtime.GOOS {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// libraryCandidates lists where the shared library is looked for, in order:
// system locations, then onnxruntime/ next to the executable, then
// onnxruntime/ in the enclosing Go module. GPU builds come first when useGPU
// is set.
func libraryCandidates(libName string, useGPU bool) []string {
	var dirs []string
	if useGPU {
		dirs = append(dirs, "/opt/onnxruntime/gpu/lib")
	}
	dirs = append(dirs, "/usr/local/lib", "/usr/lib", "/opt/onnxruntime/cpu/lib")

	var roots []string
	if exe, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}
	if root, err := findModuleRoot(); err == nil {
		roots = append(roots, root)
	}
	for _, root := range roots {
		if useGPU {
			dirs = append(dirs, filepath.Join(root, "onnxruntime", "gpu", "lib"))
		}
		dirs = append(dirs, filepath.Join(root, "onnxruntime", "lib"))
	}

	paths := make([]string, len(dirs))
	for i, d := range dirs {
		paths[i] = filepath.Join(d, libName)
	}
	return paths
}

func findModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no go.mod above working directory")
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SetONNXLibraryPath points onnxruntime_go at the shared library. The
// EnvLibraryPath variable wins; otherwise the first existing entry of the
// search list is used.
func SetONNXLibraryPath(useGPU bool) error {
	if p := os.Getenv(EnvLibraryPath); p != "" {
		if !fileExists(p) {
			return fmt.Errorf("%s points to missing library %s", EnvLibraryPath, p)
		}
		onnxruntime_go.SetSharedLibraryPath(p)
		return nil
	}

	libName, err := getLibraryName()
	if err != nil {
		return err
	}
	candidates := libraryCandidates(libName, useGPU)
	for _, p := range candidates {
		if fileExists(p) {
			slog.Debug("Using ONNX Runtime library", "path", p)
			onnxruntime_go.SetSharedLibraryPath(p)
			return nil
		}
	}
	return fmt.Errorf("ONNX Runtime library %s not found (searched %d locations, set %s to override)",
		libName, len(candidates), EnvLibraryPath)
}
