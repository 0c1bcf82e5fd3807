package utils

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
)

// ErrBadDimensions is returned when a pixel buffer's length does not match
// its declared width and height.
var ErrBadDimensions = errors.New("bad dimensions")

// PixelBuffer is a packed RGBA8 image, row-major with the origin at the top-left.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixelBuffer wraps raw RGBA bytes after checking the length.
func NewPixelBuffer(width, height int, pix []byte) (PixelBuffer, error) {
	pb := PixelBuffer{Width: width, Height: height, Pix: pix}
	if err := pb.Validate(); err != nil {
		return PixelBuffer{}, err
	}
	return pb, nil
}

// PixelBufferFromImage copies any decoded image into a PixelBuffer.
// The image is re-based so that its bounds start at (0,0).
func PixelBufferFromImage(img image.Image) (PixelBuffer, error) {
	if img == nil {
		return PixelBuffer{}, &ImageProcessingError{Operation: "convert", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return NewPixelBuffer(b.Dx(), b.Dy(), rgba.Pix)
}

// Validate checks that the buffer describes a non-empty image of exactly
// Width*Height*4 bytes.
func (p PixelBuffer) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return &ImageProcessingError{
			Operation: "validate",
			Err:       fmt.Errorf("%w: %dx%d", ErrBadDimensions, p.Width, p.Height),
		}
	}
	if len(p.Pix) != p.Width*p.Height*4 {
		return &ImageProcessingError{
			Operation: "validate",
			Err:       fmt.Errorf("%w: %d bytes for %dx%d", ErrBadDimensions, len(p.Pix), p.Width, p.Height),
		}
	}
	return nil
}

// Bounds returns the rectangle covered by the buffer.
func (p PixelBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// RGB returns an opaque copy of the buffer with the alpha channel dropped.
// Color channels are kept verbatim; no alpha premultiplication takes place.
func (p PixelBuffer) RGB() (*image.NRGBA, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := image.NewNRGBA(p.Bounds())
	for i := 0; i < len(p.Pix); i += 4 {
		out.Pix[i] = p.Pix[i]
		out.Pix[i+1] = p.Pix[i+1]
		out.Pix[i+2] = p.Pix[i+2]
		out.Pix[i+3] = 0xff
	}
	return out, nil
}
