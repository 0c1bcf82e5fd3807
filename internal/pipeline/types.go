package pipeline

import "github.com/MeKo-Tech/netthinne/internal/utils"

// DetectedObject is one recognized object: a display crop plus the detector
// and classifier labels in English and Norwegian.
type DetectedObject struct {
	ImageDataURL      string `json:"image_data_url" yaml:"image_data_url"`
	DetectorLabelEN   string `json:"detector_label_en" yaml:"detector_label_en"`
	DetectorLabelNO   string `json:"detector_label_no" yaml:"detector_label_no"`
	ClassifierLabelEN string `json:"classifier_label_en" yaml:"classifier_label_en"`
	ClassifierLabelNO string `json:"classifier_label_no" yaml:"classifier_label_no"`

	Box                  utils.Box `json:"box" yaml:"box"`
	DetectorClass        int       `json:"detector_class" yaml:"detector_class"`
	DetectorConfidence   float32   `json:"detector_confidence" yaml:"detector_confidence"`
	ClassifierClass      int       `json:"classifier_class" yaml:"classifier_class"`
	ClassifierConfidence float32   `json:"classifier_confidence" yaml:"classifier_confidence"`
}

// ImageResult is the per-image output with timing information.
type ImageResult struct {
	Width   int              `json:"width" yaml:"width"`
	Height  int              `json:"height" yaml:"height"`
	Objects []DetectedObject `json:"objects" yaml:"objects"`
	// Dropped counts detections discarded because their crop could not be prepared.
	Dropped    int `json:"dropped" yaml:"dropped"`
	Processing struct {
		PreprocessNs     int64 `json:"preprocess_ns" yaml:"preprocess_ns"`
		DetectionNs      int64 `json:"detection_ns" yaml:"detection_ns"`
		ClassificationNs int64 `json:"classification_ns" yaml:"classification_ns"`
		TotalNs          int64 `json:"total_ns" yaml:"total_ns"`
	} `json:"processing" yaml:"processing"`
}
