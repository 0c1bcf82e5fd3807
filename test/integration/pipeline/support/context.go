// Package support holds the godog step definitions for the pipeline
// integration tests. Models are replaced by stub forwarders so the suite runs
// without ONNX Runtime.
package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http/httptest"

	"github.com/MeKo-Tech/netthinne/internal/labels"
	"github.com/MeKo-Tech/netthinne/internal/onnx"
	"github.com/MeKo-Tech/netthinne/internal/pipeline"
	"github.com/MeKo-Tech/netthinne/internal/testutil"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// classifierClasses is the label table of the stub classifier.
var classifierClasses = []string{"bird", "cat", "dog", "car", "boat", "banana"}

// TestContext holds the state of one scenario.
type TestContext struct {
	// Inputs
	Image      image.Image
	Pixels     *utils.PixelBuffer
	Boxes      []testutil.StubBox
	ClassIndex int
	MaxDetect  *int
	DetectorFw onnx.Forwarder
	ClassifyFw onnx.Forwarder

	// Outputs
	Pipeline  *pipeline.Pipeline
	Result    *pipeline.ImageResult
	Objects   []pipeline.DetectedObject
	LastError error

	// Server state
	Server             *httptest.Server
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastContentType    string
}

// NewTestContext creates an empty scenario context.
func NewTestContext() *TestContext {
	return &TestContext{ClassIndex: 2}
}

// Cleanup releases the pipeline and stops the server.
func (testCtx *TestContext) Cleanup() {
	if testCtx.Server != nil {
		testCtx.Server.Close()
		testCtx.Server = nil
	}
	if testCtx.Pipeline != nil {
		_ = testCtx.Pipeline.Close()
		testCtx.Pipeline = nil
	}
}

// buildPipeline wires the stub models into a pipeline once per scenario.
func (testCtx *TestContext) buildPipeline() (*pipeline.Pipeline, error) {
	if testCtx.Pipeline != nil {
		return testCtx.Pipeline, nil
	}

	det := testCtx.DetectorFw
	if det == nil {
		det = testutil.StubDetector(80, testCtx.Boxes...)
	}
	cls := testCtx.ClassifyFw
	if cls == nil {
		cls = testutil.StubClassifier(testutil.OneHot(len(classifierClasses), testCtx.ClassIndex)...)
	}

	b := pipeline.NewBuilder().
		WithDetectorForwarder(det).
		WithClassifierForwarder(cls).
		WithLabels(labels.Set{
			DetectorEN:   labels.COCO(labels.English),
			DetectorNO:   labels.COCO(labels.Norwegian),
			ClassifierEN: labels.NewTable(labels.English, classifierClasses),
		})
	if testCtx.MaxDetect != nil {
		b = b.WithMaxDetections(*testCtx.MaxDetect)
	}
	pl, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	testCtx.Pipeline = pl
	return pl, nil
}

func (testCtx *TestContext) runPipeline(ctx context.Context) error {
	pl, err := testCtx.buildPipeline()
	if err != nil {
		return err
	}
	switch {
	case testCtx.Pixels != nil:
		testCtx.Result, testCtx.LastError = pl.ProcessPixels(ctx, *testCtx.Pixels)
	case testCtx.Image != nil:
		testCtx.Result, testCtx.LastError = pl.ProcessImage(ctx, testCtx.Image)
	default:
		return errors.New("no image given")
	}
	if testCtx.Result != nil {
		testCtx.Objects = testCtx.Result.Objects
	}
	return nil
}

func (testCtx *TestContext) object(n int) (pipeline.DetectedObject, error) {
	if testCtx.LastError != nil {
		return pipeline.DetectedObject{}, fmt.Errorf("run failed: %w", testCtx.LastError)
	}
	if n < 1 || n > len(testCtx.Objects) {
		return pipeline.DetectedObject{}, fmt.Errorf("object %d requested, %d found", n, len(testCtx.Objects))
	}
	return testCtx.Objects[n-1], nil
}
