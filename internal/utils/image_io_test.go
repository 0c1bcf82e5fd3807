package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedImage(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"a.jpg", true},
		{"b.JPEG", true},
		{"c.png", true},
		{"d.bmp", true},
		{"e.tiff", false},
		{"f.gif", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, IsSupportedImage(c.path), c.path)
	}
}

func writeTempPNG(t *testing.T, dir string, w, h int, col color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, col)
		}
	}
	path := filepath.Join(dir, "test.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestLoadImageAndMetadata(t *testing.T) {
	dir := t.TempDir()
	p := writeTempPNG(t, dir, 10, 20, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	img, meta, err := LoadImage(p)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 10, meta.Width)
	assert.Equal(t, 20, meta.Height)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoadImage_Errors(t *testing.T) {
	_, _, err := LoadImage("")
	require.Error(t, err)

	_, _, err = LoadImage("file.gif")
	require.Error(t, err)

	_, _, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "load", ipe.Operation)
}

func TestDecodeImageBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))

	img, format, err := DecodeImageBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 3, img.Bounds().Dx())

	_, _, err = DecodeImageBytes(nil)
	require.Error(t, err)
	_, _, err = DecodeImageBytes([]byte("not an image"))
	require.Error(t, err)
}
