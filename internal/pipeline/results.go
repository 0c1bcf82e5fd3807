package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/netthinne/internal/region"
)

var errNilResult = errors.New("nil result")

// ToJSONImage serializes a single ImageResult to pretty JSON.
func ToJSONImage(res *ImageResult) (string, error) {
	if res == nil {
		return "", errNilResult
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONImages serializes multiple ImageResult entries to pretty JSON.
func ToJSONImages(results []*ImageResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAMLImage serializes a single ImageResult to YAML.
func ToYAMLImage(res *ImageResult) (string, error) {
	if res == nil {
		return "", errNilResult
	}
	b, err := yaml.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainTextImage writes one line per object: the Norwegian and English
// classifier labels followed by the detector labels.
func ToPlainTextImage(res *ImageResult) (string, error) {
	if res == nil {
		return "", errNilResult
	}
	lines := make([]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		lines = append(lines, fmt.Sprintf("%s (%s) [%s / %s] %.2f",
			o.ClassifierLabelNO, o.ClassifierLabelEN,
			o.DetectorLabelNO, o.DetectorLabelEN,
			o.ClassifierConfidence))
	}
	return strings.Join(lines, "\n"), nil
}

// ToCSVImage exports per-object data as CSV with header. The crop data URL
// is left out.
func ToCSVImage(res *ImageResult) (string, error) {
	if res == nil {
		return "", errNilResult
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"x1", "y1", "x2", "y2",
		"det_class", "det_conf", "det_en", "det_no",
		"cls_class", "cls_conf", "cls_en", "cls_no",
	})
	for _, o := range res.Objects {
		_ = w.Write([]string{
			fmt.Sprintf("%.1f", o.Box.MinX),
			fmt.Sprintf("%.1f", o.Box.MinY),
			fmt.Sprintf("%.1f", o.Box.MaxX),
			fmt.Sprintf("%.1f", o.Box.MaxY),
			fmt.Sprint(o.DetectorClass),
			fmt.Sprintf("%.3f", o.DetectorConfidence),
			o.DetectorLabelEN,
			o.DetectorLabelNO,
			fmt.Sprint(o.ClassifierClass),
			fmt.Sprintf("%.3f", o.ClassifierConfidence),
			o.ClassifierLabelEN,
			o.ClassifierLabelNO,
		})
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ValidateImageResult performs simple consistency checks.
func ValidateImageResult(res *ImageResult) error {
	if res == nil {
		return errNilResult
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	w, h := float64(res.Width), float64(res.Height)
	for i, o := range res.Objects {
		b := o.Box
		if !b.IsFinite() {
			return fmt.Errorf("object %d has a non-finite box", i)
		}
		if b.MinX < 0 || b.MinY < 0 || b.MaxX > w || b.MaxY > h {
			return fmt.Errorf("object %d box exceeds image bounds", i)
		}
		if b.MinX > b.MaxX || b.MinY > b.MaxY {
			return fmt.Errorf("object %d box corners are not ordered", i)
		}
		if o.DetectorConfidence < 0 || o.DetectorConfidence > 1 {
			return fmt.Errorf("object %d detector confidence out of range", i)
		}
		if o.ClassifierConfidence < 0 || o.ClassifierConfidence > 1 {
			return fmt.Errorf("object %d classifier confidence out of range", i)
		}
		if !strings.HasPrefix(o.ImageDataURL, region.DataURLPrefix) {
			return fmt.Errorf("object %d has no PNG data URL", i)
		}
	}
	return nil
}
