package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
	SquareSize = ImageSize{640, 640}
)

// SceneObject is a filled rectangle with an optional caption drawn inside.
type SceneObject struct {
	Rect    image.Rectangle
	Color   color.Color
	Caption string
}

// SceneConfig describes a synthetic photo: a background with objects on it.
type SceneConfig struct {
	Size       ImageSize
	Background color.Color
	Objects    []SceneObject
}

// DefaultSceneConfig returns a black 640x480 scene with one bright square.
func DefaultSceneConfig() SceneConfig {
	return SceneConfig{
		Size:       MediumSize,
		Background: color.Black,
		Objects: []SceneObject{
			{Rect: image.Rect(100, 100, 200, 200), Color: color.White},
		},
	}
}

// GenerateScene renders the configured scene.
func GenerateScene(config SceneConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, config.Size.Width, config.Size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{config.Background}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	for _, obj := range config.Objects {
		draw.Draw(img, obj.Rect, &image.Uniform{obj.Color}, image.Point{}, draw.Src)
		if obj.Caption == "" {
			continue
		}
		d := &font.Drawer{Dst: img, Src: image.Black, Face: face}
		w := font.MeasureString(face, obj.Caption).Ceil()
		x := obj.Rect.Min.X + (obj.Rect.Dx()-w)/2
		y := obj.Rect.Min.Y + (obj.Rect.Dy()+face.Ascent)/2
		d.Dot = fixed.P(x, y)
		d.DrawString(obj.Caption)
	}
	return img
}

// SolidImage creates an image with the specified dimensions and color.
func SolidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// Pixels converts img into a pixel buffer, failing the test on error.
func Pixels(t *testing.T, img image.Image) utils.PixelBuffer {
	t.Helper()

	pb, err := utils.PixelBufferFromImage(img)
	require.NoError(t, err)
	return pb
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// CompareImages reports whether two images have equal bounds and an average
// per-pixel RGBA distance within tolerance (0..1).
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b := img1.Bounds()
	if b != img2.Bounds() {
		return false
	}
	if b.Empty() {
		return true
	}

	var total float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()
			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)
			total += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
		}
	}

	avg := total / float64(b.Dx()*b.Dy())
	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return avg/maxDiff <= tolerance
}

// Scenes returns the named synthetic scenes used by the integration tests and
// written to testdata by generate-test-data.
func Scenes() map[string]SceneConfig {
	return map[string]SceneConfig{
		"empty":  {Size: SmallSize, Background: color.Gray{Y: 40}},
		"single": DefaultSceneConfig(),
		"street": {
			Size:       MediumSize,
			Background: color.RGBA{90, 90, 90, 255},
			Objects: []SceneObject{
				{Rect: image.Rect(40, 200, 280, 330), Color: color.RGBA{200, 30, 30, 255}, Caption: "car"},
				{Rect: image.Rect(360, 150, 440, 400), Color: color.RGBA{230, 200, 160, 255}, Caption: "person"},
				{Rect: image.Rect(480, 300, 620, 420), Color: color.RGBA{30, 30, 200, 255}, Caption: "bicycle"},
			},
		},
		"square": {
			Size:       SquareSize,
			Background: color.White,
			Objects: []SceneObject{
				{Rect: image.Rect(256, 256, 384, 384), Color: color.RGBA{120, 80, 40, 255}, Caption: "dog"},
			},
		},
	}
}
