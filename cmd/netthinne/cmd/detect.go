package cmd

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/netthinne/internal/config"
	"github.com/MeKo-Tech/netthinne/internal/pipeline"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
	outputFormatYAML = "yaml"
)

func newDetectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <images...>",
		Short: "Detect and classify objects in images",
		Long: `Detect objects in one or more image files, classify each detected object
and print the labels in Norwegian and English.

Supported formats: JPEG, PNG, BMP

Examples:
  netthinne detect photo.jpg
  netthinne detect *.png --format json
  netthinne detect street.jpg --overlay-dir out/ --max-detections 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runDetect,
	}

	f := cmd.Flags()
	f.StringP("format", "f", outputFormatText, "output format: text, json, csv or yaml")
	f.StringP("output", "o", "", "write results to a file instead of stdout")
	f.String("overlay-dir", "", "write a PNG with boxes and labels per image to this directory")
	f.String("overlay-box-color", "#ff0000", "overlay box color (hex)")
	f.Float32("conf", 0.25, "detector confidence threshold (0..1)")
	f.Float64("iou", 0.45, "IoU threshold for non-maximum suppression (0..1)")
	f.Int("max-detections", 3, "maximum objects per image (0 = unlimited)")
	f.String("detector-model", "", "override detector model path")
	f.String("classifier-model", "", "override classifier model path")
	f.Bool("gpu", false, "run inference with CUDA")

	a.bind(f.Lookup("format"), "output.format")
	a.bind(f.Lookup("output"), "output.file")
	a.bind(f.Lookup("overlay-dir"), "output.overlay_dir")
	a.bind(f.Lookup("overlay-box-color"), "output.overlay_box_color")
	a.bind(f.Lookup("conf"), "pipeline.detector.conf_threshold")
	a.bind(f.Lookup("iou"), "pipeline.detector.iou_threshold")
	a.bind(f.Lookup("max-detections"), "pipeline.detector.max_detections")
	a.bind(f.Lookup("detector-model"), "pipeline.detector.model_path")
	a.bind(f.Lookup("classifier-model"), "pipeline.classifier.model_path")
	a.bind(f.Lookup("gpu"), "gpu.enabled")
	return cmd
}

func (a *app) runDetect(cmd *cobra.Command, args []string) error {
	cfg := a.cfg
	format := cfg.Output.Format
	if format == "" {
		format = outputFormatText
	}

	pl, err := buildPipeline(cfg.ToPipelineConfig())
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			slog.Warn("Error closing pipeline", "error", err)
		}
	}()

	results := make([]*pipeline.ImageResult, 0, len(args))
	for _, path := range args {
		res, err := a.detectFile(cmd, pl, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, res)
	}

	out, err := formatResults(format, args, results)
	if err != nil {
		return err
	}
	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, []byte(out), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		slog.Info("Results written", "file", cfg.Output.File, "images", len(results))
		return nil
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func (a *app) detectFile(cmd *cobra.Command, pl *pipeline.Pipeline, path string) (*pipeline.ImageResult, error) {
	img, meta, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("Image loaded", "path", path, "format", meta.Format, "width", meta.Width, "height", meta.Height)

	res, err := pl.ProcessImage(cmd.Context(), img)
	if err != nil {
		return nil, err
	}

	if dir := a.cfg.Output.OverlayDir; dir != "" {
		col, err := config.ParseColor(a.cfg.Output.OverlayBoxColor)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create overlay dir: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_overlay.png"
		if err := writePNG(filepath.Join(dir, name), pipeline.RenderOverlay(img, res, col)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func writePNG(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	slog.Debug("Overlay written", "path", path)
	return nil
}

// formatResults renders all results in one document. JSON is an array when
// more than one image was processed; the other formats get a header per image.
func formatResults(format string, paths []string, results []*pipeline.ImageResult) (string, error) {
	if format == outputFormatJSON {
		if len(results) == 1 {
			return withNewline(pipeline.ToJSONImage(results[0]))
		}
		return withNewline(pipeline.ToJSONImages(results))
	}

	var render func(*pipeline.ImageResult) (string, error)
	switch format {
	case outputFormatText:
		render = pipeline.ToPlainTextImage
	case outputFormatCSV:
		render = pipeline.ToCSVImage
	case outputFormatYAML:
		render = pipeline.ToYAMLImage
	default:
		return "", fmt.Errorf("invalid output format: %s", format)
	}

	var sb strings.Builder
	for i, res := range results {
		s, err := render(res)
		if err != nil {
			return "", err
		}
		if len(results) > 1 {
			if format == outputFormatYAML {
				sb.WriteString("---\n")
			}
			fmt.Fprintf(&sb, "# %s\n", paths[i])
		}
		sb.WriteString(s)
		if s != "" && !strings.HasSuffix(s, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

func withNewline(s string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return s + "\n", nil
}
