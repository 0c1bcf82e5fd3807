package labels

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/netthinne/internal/models"
)

var (
	//go:embed data/coco_en.txt
	cocoEN []byte
	//go:embed data/coco_no.txt
	cocoNO []byte
)

// COCO returns the embedded 80-class COCO table for lang.
func COCO(lang Language) *Table {
	src := cocoEN
	if lang == Norwegian {
		src = cocoNO
	}
	t, err := Parse(bytes.NewReader(src), lang)
	if err != nil {
		// The embedded data is fixed at build time.
		panic(fmt.Sprintf("embedded COCO labels: %v", err))
	}
	return t
}

// Set holds the four tables used to label a detection.
// A nil ClassifierNO makes Classifier translate the English label instead.
type Set struct {
	DetectorEN   *Table
	DetectorNO   *Table
	ClassifierEN *Table
	ClassifierNO *Table
}

// Pair is an English/Norwegian label pair.
type Pair struct {
	EN string `json:"en" yaml:"en"`
	NO string `json:"no" yaml:"no"`
}

// Detector resolves a detector class index in both languages.
func (s Set) Detector(idx int) Pair {
	return Pair{EN: s.DetectorEN.Resolve(idx), NO: resolveIn(s.DetectorNO, Norwegian, idx)}
}

// Classifier resolves a classifier class index in both languages.
func (s Set) Classifier(idx int) Pair {
	en, ok := s.ClassifierEN.Lookup(idx)
	if !ok {
		en = Sentinel(English)
	}
	if s.ClassifierNO != nil {
		return Pair{EN: en, NO: s.ClassifierNO.Resolve(idx)}
	}
	if !ok {
		return Pair{EN: en, NO: Sentinel(Norwegian)}
	}
	return Pair{EN: en, NO: Translate(en)}
}

func resolveIn(t *Table, lang Language, idx int) string {
	if label, ok := t.Lookup(idx); ok {
		return label
	}
	return Sentinel(lang)
}

// LoadSet builds a set with the embedded COCO tables for the detector and
// ImageNet tables read from modelsDir for the classifier. A missing English
// ImageNet file yields an empty table (every class resolves to the sentinel);
// a missing Norwegian file enables dictionary translation.
func LoadSet(modelsDir string) (Set, error) {
	s := Set{
		DetectorEN: COCO(English),
		DetectorNO: COCO(Norwegian),
	}

	enPath := models.GetLabelsPath(modelsDir, models.LabelsImageNet)
	en, err := loadOptional(enPath, English)
	if err != nil {
		return Set{}, err
	}
	if en == nil {
		slog.Warn("Classifier label file not found, classes will resolve to sentinel", "path", enPath)
		en = NewTable(English, nil)
	}
	s.ClassifierEN = en

	no, err := loadOptional(models.GetLabelsPath(modelsDir, models.LabelsImageNetNorwegian), Norwegian)
	if err != nil {
		return Set{}, err
	}
	if no == nil {
		slog.Debug("Norwegian classifier labels not found, using dictionary translation")
	}
	s.ClassifierNO = no
	return s, nil
}

func loadOptional(path string, lang Language) (*Table, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return LoadTable(path, lang)
}
