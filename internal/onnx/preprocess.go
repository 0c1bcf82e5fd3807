package onnx

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/netthinne/internal/mempool"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// Preprocess converts an RGBA pixel buffer into a model input tensor.
// Alpha is discarded (no premultiplication), the image is stretched to the
// spec's size with a triangle filter and normalized per channel.
// The result always holds exactly 3*Width*Height values.
func Preprocess(pixels utils.PixelBuffer, spec TensorSpec) (Tensor, error) {
	rgb, err := pixels.RGB()
	if err != nil {
		return Tensor{}, err
	}
	return preprocessRGB(rgb, spec)
}

// PreprocessImage is Preprocess for an already decoded image. Colors are taken
// un-premultiplied and alpha is then discarded, as Preprocess does.
func PreprocessImage(img image.Image, spec TensorSpec) (Tensor, error) {
	if img == nil {
		return Tensor{}, &utils.ImageProcessingError{Operation: "preprocess", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Tensor{}, &utils.ImageProcessingError{Operation: "preprocess", Err: utils.ErrBadDimensions}
	}
	rgb := imaging.Clone(img)
	for i := 3; i < len(rgb.Pix); i += 4 {
		rgb.Pix[i] = 0xff
	}
	return preprocessRGB(rgb, spec)
}

func preprocessRGB(rgb *image.NRGBA, spec TensorSpec) (Tensor, error) {
	if err := spec.Validate(); err != nil {
		return Tensor{}, &utils.ImageProcessingError{Operation: "preprocess", Err: err}
	}

	resized, err := utils.ResizeExact(rgb, spec.Width, spec.Height)
	if err != nil {
		return Tensor{}, err
	}

	w, h := spec.Width, spec.Height
	cs, ps := spec.strides()
	src := spec.sources()

	// Every element is written below, so a recycled buffer needs no clearing.
	data := mempool.GetFloat32(3 * w * h)
	for y := range h {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+w*4]
		for x := range w {
			px := row[x*4 : x*4+3]
			base := (y*w + x) * ps
			for c := range 3 {
				data[base+c*cs] = (float32(px[src[c]])/255 - spec.Mean[c]) / spec.Scale[c]
			}
		}
	}

	return Tensor{Data: data, Shape: spec.Shape()}, nil
}
