package support

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/netthinne/internal/onnx"
	"github.com/MeKo-Tech/netthinne/internal/pipeline"
	"github.com/MeKo-Tech/netthinne/internal/region"
)

// RegisterResultSteps registers assertions on the pipeline result.
func (testCtx *TestContext) RegisterResultSteps(sc *godog.ScenarioContext) {
	sc.Step(`^(\d+) objects? (?:is|are) found$`, testCtx.objectsAreFound)
	sc.Step(`^no objects are found$`, testCtx.noObjectsAreFound)
	sc.Step(`^object (\d+) is detected as "([^"]*)" \/ "([^"]*)"$`, testCtx.objectIsDetectedAs)
	sc.Step(`^object (\d+) is classified as "([^"]*)" \/ "([^"]*)"$`, testCtx.objectIsClassifiedAs)
	sc.Step(`^object (\d+) has a (\d+)x(\d+) PNG crop$`, testCtx.objectHasCrop)
	sc.Step(`^object (\d+) has box (\d+),(\d+) to (\d+),(\d+)$`, testCtx.objectHasBox)
	sc.Step(`^the objects are ordered by decreasing detector confidence$`, testCtx.objectsAreOrdered)
	sc.Step(`^the result is valid$`, testCtx.theResultIsValid)
	sc.Step(`^the run fails because a model is unavailable$`, testCtx.theRunFailsUnavailable)
	sc.Step(`^the run fails$`, testCtx.theRunFails)
	sc.Step(`^the run is cancelled$`, testCtx.theRunIsCancelled)
	sc.Step(`^the same objects are found when I run the pipeline again$`, testCtx.runIsIdempotent)
}

func (testCtx *TestContext) objectsAreFound(n int) error {
	if testCtx.LastError != nil {
		return fmt.Errorf("run failed: %w", testCtx.LastError)
	}
	if len(testCtx.Objects) != n {
		return fmt.Errorf("expected %d objects, got %d", n, len(testCtx.Objects))
	}
	return nil
}

func (testCtx *TestContext) noObjectsAreFound() error {
	return testCtx.objectsAreFound(0)
}

func (testCtx *TestContext) objectIsDetectedAs(n int, no, en string) error {
	obj, err := testCtx.object(n)
	if err != nil {
		return err
	}
	if obj.DetectorLabelNO != no || obj.DetectorLabelEN != en {
		return fmt.Errorf("detector labels %q / %q, want %q / %q", obj.DetectorLabelNO, obj.DetectorLabelEN, no, en)
	}
	return nil
}

func (testCtx *TestContext) objectIsClassifiedAs(n int, no, en string) error {
	obj, err := testCtx.object(n)
	if err != nil {
		return err
	}
	if obj.ClassifierLabelNO != no || obj.ClassifierLabelEN != en {
		return fmt.Errorf("classifier labels %q / %q, want %q / %q", obj.ClassifierLabelNO, obj.ClassifierLabelEN, no, en)
	}
	return nil
}

func (testCtx *TestContext) objectHasCrop(n, width, height int) error {
	obj, err := testCtx.object(n)
	if err != nil {
		return err
	}
	img, err := region.DecodeDataURL(obj.ImageDataURL)
	if err != nil {
		return fmt.Errorf("crop is not a PNG data URL: %w", err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("crop is %dx%d, want %dx%d", b.Dx(), b.Dy(), width, height)
	}
	return nil
}

func (testCtx *TestContext) objectHasBox(n, x1, y1, x2, y2 int) error {
	obj, err := testCtx.object(n)
	if err != nil {
		return err
	}
	want := [4]float64{float64(x1), float64(y1), float64(x2), float64(y2)}
	got := [4]float64{obj.Box.MinX, obj.Box.MinY, obj.Box.MaxX, obj.Box.MaxY}
	for i := range want {
		if math.Abs(want[i]-got[i]) > 0.5 {
			return fmt.Errorf("box %v, want %v", got, want)
		}
	}
	return nil
}

func (testCtx *TestContext) objectsAreOrdered() error {
	for i := 1; i < len(testCtx.Objects); i++ {
		if testCtx.Objects[i].DetectorConfidence > testCtx.Objects[i-1].DetectorConfidence {
			return fmt.Errorf("object %d (%.2f) ranks above object %d (%.2f)",
				i+1, testCtx.Objects[i].DetectorConfidence, i, testCtx.Objects[i-1].DetectorConfidence)
		}
	}
	return nil
}

func (testCtx *TestContext) theResultIsValid() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("run failed: %w", testCtx.LastError)
	}
	return pipeline.ValidateImageResult(testCtx.Result)
}

func (testCtx *TestContext) theRunFailsUnavailable() error {
	if !errors.Is(testCtx.LastError, onnx.ErrModelUnavailable) {
		return fmt.Errorf("expected a model unavailable error, got %v", testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theRunFails() error {
	if testCtx.LastError == nil {
		return errors.New("expected the run to fail")
	}
	if testCtx.Result != nil {
		return errors.New("a failed run returned a result")
	}
	return nil
}

func (testCtx *TestContext) theRunIsCancelled() error {
	if !errors.Is(testCtx.LastError, context.Canceled) {
		return fmt.Errorf("expected context.Canceled, got %v", testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) runIsIdempotent(ctx context.Context) error {
	first := testCtx.Objects
	if err := testCtx.runPipeline(ctx); err != nil {
		return err
	}
	if testCtx.LastError != nil {
		return testCtx.LastError
	}
	if len(first) != len(testCtx.Objects) {
		return fmt.Errorf("first run found %d objects, second %d", len(first), len(testCtx.Objects))
	}
	for i := range first {
		if first[i] != testCtx.Objects[i] {
			return fmt.Errorf("object %d differs between runs", i+1)
		}
	}
	return nil
}
