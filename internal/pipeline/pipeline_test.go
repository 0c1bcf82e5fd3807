package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/netthinne/internal/labels"
	"github.com/MeKo-Tech/netthinne/internal/onnx"
	"github.com/MeKo-Tech/netthinne/internal/region"
	"github.com/MeKo-Tech/netthinne/internal/testutil"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// The scene square spans 96..192 on both axes of a 640x480 image. In the
// 640x640 detector input that is x 96..192 and y 128..256.
var squareBox = testutil.StubBox{CX: 144, CY: 192, W: 96, H: 128, Class: 15, Score: 0.9}

func testLabels() labels.Set {
	return labels.Set{
		DetectorEN:   labels.COCO(labels.English),
		DetectorNO:   labels.COCO(labels.Norwegian),
		ClassifierEN: labels.NewTable(labels.English, []string{"tabby", "boat", "banana"}),
	}
}

func squareScene() *image.RGBA {
	return testutil.GenerateScene(testutil.SceneConfig{
		Size:       testutil.MediumSize,
		Background: color.Black,
		Objects:    []testutil.SceneObject{{Rect: image.Rect(96, 96, 192, 192), Color: color.White}},
	})
}

func buildStub(t *testing.T, det, cls onnx.Forwarder) *Pipeline {
	t.Helper()
	p, err := NewBuilder().
		WithDetectorForwarder(det).
		WithClassifierForwarder(cls).
		WithLabels(testLabels()).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRun_SingleObjectEndToEnd(t *testing.T) {
	det := testutil.StubDetector(80, squareBox)
	cls := testutil.StubClassifier(testutil.OneHot(3, 1)...)
	p := buildStub(t, det, cls)

	objs, err := p.Run(context.Background(), testutil.Pixels(t, squareScene()))
	require.NoError(t, err)
	require.Len(t, objs, 1)

	o := objs[0]
	assert.Equal(t, "cat", o.DetectorLabelEN)
	assert.Equal(t, "katt", o.DetectorLabelNO)
	assert.Equal(t, "boat", o.ClassifierLabelEN)
	assert.Equal(t, "båt", o.ClassifierLabelNO)
	assert.Equal(t, 15, o.DetectorClass)
	assert.InDelta(t, 0.9, o.DetectorConfidence, 1e-6)
	assert.Equal(t, 1, o.ClassifierClass)
	assert.Greater(t, o.ClassifierConfidence, float32(0.99))

	assert.InDelta(t, 96, o.Box.MinX, 1e-3)
	assert.InDelta(t, 96, o.Box.MinY, 1e-3)
	assert.InDelta(t, 192, o.Box.MaxX, 1e-3)
	assert.InDelta(t, 192, o.Box.MaxY, 1e-3)

	crop, err := region.DecodeDataURL(o.ImageDataURL)
	require.NoError(t, err)
	assert.Equal(t, 96, crop.Bounds().Dx())
	assert.Equal(t, 96, crop.Bounds().Dy())
	assert.True(t, testutil.CompareImages(crop, testutil.SolidImage(96, 96, color.White), 0.001))

	assert.Equal(t, 1, det.Calls())
	assert.Equal(t, 1, cls.Calls())
	assert.Equal(t, []int64{1, 3, 640, 640}, det.LastInput().Shape)
	assert.Equal(t, []int64{1, 3, 224, 224}, cls.LastInput().Shape)
}

func TestRun_Idempotent(t *testing.T) {
	p := buildStub(t, testutil.StubDetector(80, squareBox), testutil.StubClassifier(testutil.OneHot(3, 0)...))
	pixels := testutil.Pixels(t, squareScene())

	first, err := p.Run(context.Background(), pixels)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), pixels)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_NoDetections(t *testing.T) {
	cls := testutil.StubClassifier(1, 2, 3)
	p := buildStub(t, testutil.StubDetector(80), cls)

	objs, err := p.Run(context.Background(), testutil.Pixels(t, squareScene()))
	require.NoError(t, err)
	assert.Empty(t, objs)
	assert.Equal(t, 0, cls.Calls())
}

func TestRun_BadPixelsYieldEmpty(t *testing.T) {
	det := testutil.StubDetector(80, squareBox)
	p := buildStub(t, det, testutil.StubClassifier(1))

	objs, err := p.Run(context.Background(), utils.PixelBuffer{Width: 4, Height: 4, Pix: make([]byte, 3)})
	require.NoError(t, err)
	assert.Empty(t, objs)
	assert.Equal(t, 0, det.Calls())
}

func TestRun_OrderAndCap(t *testing.T) {
	boxes := []testutil.StubBox{
		{CX: 50, CY: 50, W: 40, H: 40, Class: 0, Score: 0.5},
		{CX: 300, CY: 300, W: 40, H: 40, Class: 2, Score: 0.95},
		{CX: 500, CY: 500, W: 40, H: 40, Class: 16, Score: 0.7},
		{CX: 200, CY: 500, W: 40, H: 40, Class: 1, Score: 0.6},
	}
	p := buildStub(t, testutil.StubDetector(80, boxes...), testutil.StubClassifier(testutil.OneHot(3, 2)...))

	objs, err := p.Run(context.Background(), testutil.Pixels(t, testutil.SolidImage(640, 640, color.Gray{128})))
	require.NoError(t, err)
	require.Len(t, objs, 3)
	assert.Equal(t, []string{"car", "dog", "bicycle"},
		[]string{objs[0].DetectorLabelEN, objs[1].DetectorLabelEN, objs[2].DetectorLabelEN})
	for _, o := range objs {
		assert.Equal(t, "banana", o.ClassifierLabelEN)
		assert.Equal(t, "(banana)", o.ClassifierLabelNO)
	}
}

func TestRun_ClassifierUnavailable(t *testing.T) {
	p, err := NewBuilder().
		WithModelsDir(t.TempDir()).
		WithDetectorForwarder(testutil.StubDetector(80, squareBox)).
		WithLabels(testLabels()).
		Build()
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Run(context.Background(), testutil.Pixels(t, squareScene()))
	require.ErrorIs(t, err, onnx.ErrModelUnavailable)
	assert.False(t, p.Classifier.Model.Loaded())
}

func TestRun_DetectorUnavailable(t *testing.T) {
	p, err := NewBuilder().
		WithDetectorModelPath(filepath.Join(t.TempDir(), "missing.onnx")).
		WithClassifierForwarder(testutil.StubClassifier(1)).
		WithLabels(testLabels()).
		Build()
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Run(context.Background(), testutil.Pixels(t, squareScene()))
	require.ErrorIs(t, err, onnx.ErrModelUnavailable)
}

func TestRun_ForwardErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	p := buildStub(t, testutil.StubDetector(80, squareBox), testutil.FailingForwarder(boom))

	_, err := p.Run(context.Background(), testutil.Pixels(t, squareScene()))
	require.ErrorIs(t, err, boom)
}

func TestRun_CancelledContext(t *testing.T) {
	p := buildStub(t, testutil.StubDetector(80, squareBox), testutil.StubClassifier(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, testutil.Pixels(t, squareScene()))
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessImage_Result(t *testing.T) {
	p := buildStub(t, testutil.StubDetector(80, squareBox), testutil.StubClassifier(testutil.OneHot(3, 0)...))

	res, err := p.ProcessImage(context.Background(), squareScene())
	require.NoError(t, err)
	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 480, res.Height)
	assert.Len(t, res.Objects, 1)
	assert.Zero(t, res.Dropped)
	assert.Positive(t, res.Processing.TotalNs)
	require.NoError(t, ValidateImageResult(res))

	_, err = p.ProcessImage(context.Background(), nil)
	assert.Error(t, err)
}

func TestProcessImage_BadCropDropsOnlyThatDetection(t *testing.T) {
	broken := testutil.StubBox{CX: float32(math.NaN()), CY: 100, W: 50, H: 50, Class: 16, Score: 0.95}
	p := buildStub(t, testutil.StubDetector(80, broken, squareBox), testutil.StubClassifier(testutil.OneHot(3, 1)...))

	res, err := p.ProcessImage(context.Background(), squareScene())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Objects, 1)

	o := res.Objects[0]
	assert.Equal(t, "katt", o.DetectorLabelNO)
	assert.Equal(t, "boat", o.ClassifierLabelEN)
	assert.InDelta(t, 0.9, o.DetectorConfidence, 1e-6)
	assert.InDelta(t, 96, o.Box.MinX, 1e-3)
	assert.InDelta(t, 192, o.Box.MaxY, 1e-3)
	crop, err := region.DecodeDataURL(o.ImageDataURL)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 96, 96), crop.Bounds())
	require.NoError(t, ValidateImageResult(res))
}

func TestBuilder_Paths(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder().WithModelsDir(dir)
	assert.Equal(t, filepath.Join(dir, "detection", "yolov8n.onnx"), b.Config().Detector.ModelPath)
	assert.Equal(t, dir, b.Config().ModelsDir)

	b = NewBuilder().WithDetectorModelPath("/x/det.onnx").WithModelsDir(dir)
	assert.Equal(t, "/x/det.onnx", b.Config().Detector.ModelPath)
	assert.Equal(t, filepath.Join(dir, "classification", "mobilenetv2.onnx"), b.Config().Classifier.ModelPath)
}

func TestBuilder_Options(t *testing.T) {
	cfg := NewBuilder().
		WithThresholds(0.5, 0.6).
		WithThresholds(2, -1).
		WithMaxDetections(0).
		WithThreads(4).
		WithGPU(true).
		WithGPUDevice(1).
		WithWarmupIterations(2).
		Config()
	assert.InDelta(t, 0.5, cfg.Detector.ConfThreshold, 1e-6)
	assert.InDelta(t, 0.6, cfg.Detector.IoUThreshold, 1e-9)
	assert.Equal(t, 0, cfg.Detector.MaxDetections)
	assert.Equal(t, 4, cfg.Detector.NumThreads)
	assert.Equal(t, 4, cfg.Classifier.NumThreads)
	assert.True(t, cfg.Detector.GPU.UseGPU)
	assert.Equal(t, 1, cfg.Classifier.GPU.DeviceID)
	assert.Equal(t, 2, cfg.WarmupIterations)
}

func TestBuilder_ValidateRejectsBadConfig(t *testing.T) {
	b := NewBuilder()
	b.cfg.Detector.NumClasses = 0
	_, err := b.Build()
	assert.Error(t, err)

	b = NewBuilder()
	b.cfg.Classifier.Input.Width = 0
	assert.Error(t, b.Validate())
}

func TestBuild_WarmupRunsModels(t *testing.T) {
	det := testutil.StubDetector(80)
	cls := testutil.StubClassifier(1, 2)
	p, err := NewBuilder().
		WithDetectorForwarder(det).
		WithClassifierForwarder(cls).
		WithLabels(testLabels()).
		WithWarmupIterations(2).
		Build()
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, 2, det.Calls())
	assert.Equal(t, 2, cls.Calls())
}

func TestBuild_LoadsLabelsFromModelsDir(t *testing.T) {
	dir := t.TempDir()
	p, err := NewBuilder().
		WithModelsDir(dir).
		WithDetectorForwarder(testutil.StubDetector(80)).
		WithClassifierForwarder(testutil.StubClassifier(1)).
		Build()
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, 80, p.Labels.DetectorEN.Len())
	assert.Equal(t, 0, p.Labels.ClassifierEN.Len())
}

func TestInfo(t *testing.T) {
	p := buildStub(t, testutil.StubDetector(80), testutil.StubClassifier(1))
	info := p.Info()
	det, ok := info["detector"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, det["loaded"])
	assert.Equal(t, "640x640 nchw rgb", det["input"])
}
