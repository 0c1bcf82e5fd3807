package utils

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ResizeExact stretches an image to exactly width x height using a triangle
// (bilinear) filter. Aspect ratio is not preserved.
func ResizeExact(img image.Image, width, height int) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if width <= 0 || height <= 0 {
		return nil, &ImageProcessingError{
			Operation: "resize",
			Err:       fmt.Errorf("invalid target dimensions: %dx%d", width, height),
		}
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return imaging.Clone(img), nil
	}
	return imaging.Resize(img, width, height, imaging.Linear), nil
}
