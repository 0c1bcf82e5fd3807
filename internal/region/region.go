// Package region cuts detected boxes out of the source image and encodes
// them for display.
package region

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/MeKo-Tech/netthinne/internal/utils"
	"github.com/disintegration/imaging"
)

var (
	// ErrCropFailure is returned for box geometry that cannot be mapped to pixels.
	ErrCropFailure = errors.New("crop failure")
	// ErrEncodeFailure is returned when a crop cannot be encoded for display.
	ErrEncodeFailure = errors.New("encode failure")
)

// DataURLPrefix precedes the base64 payload of every encoded crop.
const DataURLPrefix = "data:image/png;base64,"

// Rect maps a float box onto integer pixel bounds.
// Corners round outward, the minimum corner is kept inside the image and the
// resulting width and height are at least one pixel, so even a zero-area box
// maps to a 1x1 region.
func Rect(bounds image.Rectangle, box utils.Box) (image.Rectangle, error) {
	if !box.IsFinite() {
		return image.Rectangle{}, fmt.Errorf("%w: non-finite box %+v", ErrCropFailure, box)
	}
	if bounds.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: empty image", ErrCropFailure)
	}
	box = utils.NewBox(box.MinX, box.MinY, box.MaxX, box.MaxY)

	x1 := clamp(math.Floor(box.MinX), bounds.Min.X, bounds.Max.X-1)
	y1 := clamp(math.Floor(box.MinY), bounds.Min.Y, bounds.Max.Y-1)
	x2 := clamp(math.Ceil(box.MaxX), bounds.Min.X, bounds.Max.X)
	y2 := clamp(math.Ceil(box.MaxY), bounds.Min.Y, bounds.Max.Y)

	w := max(x2-x1, 1)
	h := max(y2-y1, 1)
	return image.Rect(x1, y1, x1+w, y1+h), nil
}

func clamp(v float64, lo, hi int) int {
	if v < float64(lo) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int(v)
}

// Crop returns the opaque RGB region of pixels covered by box. Alpha is
// discarded the same way the model preprocessor discards it.
func Crop(pixels utils.PixelBuffer, box utils.Box) (*image.NRGBA, error) {
	rgb, err := pixels.RGB()
	if err != nil {
		return nil, err
	}
	return CropImage(rgb, box)
}

// CropImage crops an already decoded image. The result's bounds start at (0,0).
func CropImage(img image.Image, box utils.Box) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrCropFailure)
	}
	rect, err := Rect(img.Bounds(), box)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, rect), nil
}

// EncodeDataURL encodes img as PNG and wraps it in a base64 data URL.
func EncodeDataURL(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("%w: nil image", ErrEncodeFailure)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncodeFailure, err)
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL reverses EncodeDataURL.
func DecodeDataURL(url string) (image.Image, error) {
	if len(url) < len(DataURLPrefix) || url[:len(DataURLPrefix)] != DataURLPrefix {
		return nil, errors.New("not a PNG data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(url[len(DataURLPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return png.Decode(bytes.NewReader(raw))
}
