package support

import (
	"context"
	"fmt"
	"slices"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/netthinne/internal/labels"
	"github.com/MeKo-Tech/netthinne/internal/onnx"
	"github.com/MeKo-Tech/netthinne/internal/testutil"
)

// RegisterModelSteps registers the steps that script the stub models and
// run the pipeline.
func (testCtx *TestContext) RegisterModelSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the detector sees a "([^"]*)" at (\d+),(\d+) sized (\d+)x(\d+) with score ([0-9.]+)$`,
		testCtx.theDetectorSees)
	sc.Step(`^the detector sees nothing$`, testCtx.theDetectorSeesNothing)
	sc.Step(`^the classifier predicts "([^"]*)"$`, testCtx.theClassifierPredicts)
	sc.Step(`^the (detector|classifier) model is unavailable$`, testCtx.theModelIsUnavailable)
	sc.Step(`^the (detector|classifier) model fails$`, testCtx.theModelFails)
	sc.Step(`^at most (\d+) objects are kept$`, testCtx.atMostObjectsAreKept)
	sc.Step(`^I run the pipeline$`, testCtx.iRunThePipeline)
	sc.Step(`^I run the pipeline with a cancelled context$`, testCtx.iRunThePipelineCancelled)
}

// cocoIndex finds an English COCO class name.
func cocoIndex(name string) (int, error) {
	idx := slices.Index(labels.COCO(labels.English).Labels(), name)
	if idx < 0 {
		return 0, fmt.Errorf("%q is not a COCO class", name)
	}
	return idx, nil
}

// theDetectorSees adds one detector column in model-input pixels (640x640).
func (testCtx *TestContext) theDetectorSees(class string, cx, cy, w, h int, score float64) error {
	idx, err := cocoIndex(class)
	if err != nil {
		return err
	}
	testCtx.Boxes = append(testCtx.Boxes, testutil.StubBox{
		CX: float32(cx), CY: float32(cy), W: float32(w), H: float32(h),
		Class: idx, Score: float32(score),
	})
	return nil
}

func (testCtx *TestContext) theDetectorSeesNothing() error {
	testCtx.Boxes = nil
	return nil
}

func (testCtx *TestContext) theClassifierPredicts(class string) error {
	idx := slices.Index(classifierClasses, class)
	if idx < 0 {
		return fmt.Errorf("%q is not a stub classifier class", class)
	}
	testCtx.ClassIndex = idx
	return nil
}

func (testCtx *TestContext) theModelIsUnavailable(model string) error {
	return testCtx.failModel(model, fmt.Errorf("%w: %s model missing", onnx.ErrModelUnavailable, model))
}

func (testCtx *TestContext) theModelFails(model string) error {
	return testCtx.failModel(model, fmt.Errorf("%s forward pass failed", model))
}

func (testCtx *TestContext) failModel(model string, err error) error {
	if model == "detector" {
		testCtx.DetectorFw = testutil.FailingForwarder(err)
	} else {
		testCtx.ClassifyFw = testutil.FailingForwarder(err)
	}
	return nil
}

func (testCtx *TestContext) atMostObjectsAreKept(n int) error {
	testCtx.MaxDetect = &n
	return nil
}

func (testCtx *TestContext) iRunThePipeline(ctx context.Context) error {
	return testCtx.runPipeline(ctx)
}

func (testCtx *TestContext) iRunThePipelineCancelled(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	return testCtx.runPipeline(ctx)
}
