package pipeline

import (
	"context"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/netthinne/internal/common"
	"github.com/MeKo-Tech/netthinne/internal/detector"
	"github.com/MeKo-Tech/netthinne/internal/region"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// Run detects objects in pixels, classifies each crop and returns the
// labelled objects in detection order. A buffer the detector cannot
// preprocess yields an empty list. Model failures abort the run; a single
// detection whose crop cannot be prepared is dropped.
func (p *Pipeline) Run(ctx context.Context, pixels utils.PixelBuffer) ([]DetectedObject, error) {
	res, err := p.ProcessPixels(ctx, pixels)
	if err != nil {
		return nil, err
	}
	return res.Objects, nil
}

// ProcessImage runs the pipeline on a decoded image.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image) (*ImageResult, error) {
	pixels, err := utils.PixelBufferFromImage(img)
	if err != nil {
		return nil, err
	}
	return p.ProcessPixels(ctx, pixels)
}

// ProcessPixels runs the pipeline and reports per-stage timings.
func (p *Pipeline) ProcessPixels(ctx context.Context, pixels utils.PixelBuffer) (*ImageResult, error) {
	var stages common.Stages
	total := stages.Start("total")
	res := &ImageResult{Width: pixels.Width, Height: pixels.Height, Objects: []DetectedObject{}}

	prep := stages.Start("preprocess")
	input, err := p.Detector.Preprocess(pixels)
	res.Processing.PreprocessNs = prep.Stop().Nanoseconds()
	if err != nil {
		slog.Warn("Skipping image the detector cannot preprocess",
			"width", pixels.Width, "height", pixels.Height, "error", err)
		res.Processing.TotalNs = total.Stop().Nanoseconds()
		return res, nil
	}

	det := stages.Start("detection")
	raw, err := p.Detector.Infer(ctx, input)
	input.Release()
	if err != nil {
		return nil, err
	}
	detections := p.Detector.Postprocess(raw, pixels.Width, pixels.Height)
	res.Processing.DetectionNs = det.Stop().Nanoseconds()

	if len(detections) > 0 {
		cls := stages.Start("classification")
		rgb, err := pixels.RGB()
		if err != nil {
			return nil, err
		}
		for i, d := range detections {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			obj, ok, err := p.describe(ctx, rgb, d)
			if err != nil {
				return nil, err
			}
			if !ok {
				res.Dropped++
				continue
			}
			slog.Debug("Object recognized",
				"index", i,
				"detector", obj.DetectorLabelEN,
				"classifier", obj.ClassifierLabelEN,
				"confidence", obj.ClassifierConfidence)
			res.Objects = append(res.Objects, obj)
		}
		res.Processing.ClassificationNs = cls.Stop().Nanoseconds()
	}

	res.Processing.TotalNs = total.Stop().Nanoseconds()
	slog.Debug("Image processed", append([]any{
		"width", res.Width,
		"height", res.Height,
		"detections", len(detections),
		"objects", len(res.Objects),
		"dropped", res.Dropped,
	}, stages.Attrs()...)...)
	return res, nil
}

// describe crops, encodes and classifies one detection. ok is false when the
// detection has to be dropped; err is set only for run-fatal failures.
func (p *Pipeline) describe(ctx context.Context, rgb *image.NRGBA, d detector.Detection) (DetectedObject, bool, error) {
	crop, err := region.CropImage(rgb, d.Box)
	if err != nil {
		p.warnDropped(d, err)
		return DetectedObject{}, false, nil
	}
	url, err := region.EncodeDataURL(crop)
	if err != nil {
		p.warnDropped(d, err)
		return DetectedObject{}, false, nil
	}
	input, err := p.Classifier.Prepare(crop)
	if err != nil {
		p.warnDropped(d, err)
		return DetectedObject{}, false, nil
	}
	result, err := p.Classifier.Run(ctx, input)
	input.Release()
	if err != nil {
		return DetectedObject{}, false, err
	}

	detLabel := p.Labels.Detector(d.ClassIndex)
	clsLabel := p.Labels.Classifier(result.ClassIndex)
	return DetectedObject{
		ImageDataURL:         url,
		DetectorLabelEN:      detLabel.EN,
		DetectorLabelNO:      detLabel.NO,
		ClassifierLabelEN:    clsLabel.EN,
		ClassifierLabelNO:    clsLabel.NO,
		Box:                  d.Box,
		DetectorClass:        d.ClassIndex,
		DetectorConfidence:   d.Confidence,
		ClassifierClass:      result.ClassIndex,
		ClassifierConfidence: result.Confidence,
	}, true, nil
}

func (p *Pipeline) warnDropped(d detector.Detection, err error) {
	slog.Warn("Dropping detection",
		"class", d.ClassIndex,
		"confidence", d.Confidence,
		"box", d.Box,
		"error", err)
}
