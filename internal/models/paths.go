package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model and label file names.
const (
	// DetectorYOLOv8n is the COCO-80 object detector.
	DetectorYOLOv8n = "yolov8n.onnx"
	// ClassifierMobileNetV2 is the ImageNet-1k classifier.
	ClassifierMobileNetV2 = "mobilenetv2.onnx"

	LabelsImageNet          = "labels_in1k.txt"
	LabelsImageNetNorwegian = "labels_in1k_norsk.txt"
)

// Model type categories for organized directory structure.
const (
	TypeDetection      = "detection"
	TypeClassification = "classification"
	TypeLabels         = "labels"
)

// Default models directory.
const DefaultModelsDir = "models"

// Environment variable for models directory override.
const EnvModelsDir = "NETTHINNE_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
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
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// ModelInfo contains metadata about a model or label file.
type ModelInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	Required    bool   `json:"required"`
}

// GetModelsDir returns the models directory path from various sources.
// Priority: 1. Explicit modelsDir parameter, 2. Environment variable, 3. Project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath resolves a filename to its full path. The organized
// layout <dir>/<type>/<file> is preferred; a flat <dir>/<file> is returned
// only when it exists and the organized path does not.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	baseDir := GetModelsDir(modelsDir)
	organized := filepath.Join(baseDir, modelType, filename)
	if modelType == "" {
		return filepath.Join(baseDir, filename)
	}
	if _, err := os.Stat(organized); err == nil {
		return organized
	}
	flat := filepath.Join(baseDir, filename)
	if _, err := os.Stat(flat); err == nil {
		return flat
	}
	return organized
}

// GetDetectorModelPath returns the path for the detector model.
func GetDetectorModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeDetection, DetectorYOLOv8n)
}

// GetClassifierModelPath returns the path for the classifier model.
func GetClassifierModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeClassification, ClassifierMobileNetV2)
}

// GetLabelsPath returns the path for a label file.
func GetLabelsPath(modelsDir, filename string) string {
	return ResolveModelPath(modelsDir, TypeLabels, filename)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAvailableModels returns information about the files the pipeline uses.
func ListAvailableModels() []ModelInfo {
	return []ModelInfo{
		{
			Name:        "yolov8n",
			Type:        TypeDetection,
			Description: "YOLOv8n COCO object detector",
			Filename:    DetectorYOLOv8n,
			Required:    true,
		},
		{
			Name:        "mobilenetv2",
			Type:        TypeClassification,
			Description: "MobileNetV2 ImageNet-1k classifier",
			Filename:    ClassifierMobileNetV2,
			Required:    true,
		},
		{
			Name:        "labels-in1k",
			Type:        TypeLabels,
			Description: "ImageNet-1k English class names",
			Filename:    LabelsImageNet,
		},
		{
			Name:        "labels-in1k-norsk",
			Type:        TypeLabels,
			Description: "ImageNet-1k Norwegian class names",
			Filename:    LabelsImageNetNorwegian,
		},
	}
}

// ModelStatus reports where a model file resolves to and whether it exists.
type ModelStatus struct {
	ModelInfo
	Path      string `json:"path"`
	Available bool   `json:"available"`
}

// Status resolves every known file under modelsDir.
func Status(modelsDir string) []ModelStatus {
	infos := ListAvailableModels()
	out := make([]ModelStatus, 0, len(infos))
	for _, info := range infos {
		path := ResolveModelPath(modelsDir, info.Type, info.Filename)
		out = append(out, ModelStatus{
			ModelInfo: info,
			Path:      path,
			Available: ValidateModelExists(path) == nil,
		})
	}
	return out
}
