package pipeline

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// RenderOverlay draws object boxes and their Norwegian classifier labels over
// the image and returns an RGBA copy.
func RenderOverlay(img image.Image, res *ImageResult, boxColor color.Color) *image.RGBA {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	if res == nil {
		return dst
	}

	face := basicfont.Face7x13
	for _, o := range res.Objects {
		rect := o.Box.ToRect(dst.Bounds())
		utils.DrawRect(dst, rect, boxColor, 2)

		label := o.ClassifierLabelNO
		if label == "" {
			label = o.DetectorLabelNO
		}
		if label == "" {
			continue
		}
		// label background sits above the box, or inside it at the image top
		tw := font.MeasureString(face, label).Ceil() + 4
		th := face.Height + 2
		top := rect.Min.Y - th
		if top < 0 {
			top = rect.Min.Y
		}
		bg := image.Rect(rect.Min.X, top, rect.Min.X+tw, top+th)
		utils.FillRect(dst, bg, boxColor)

		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  fixed.P(bg.Min.X+2, bg.Min.Y+face.Ascent+1),
		}
		d.DrawString(label)
	}
	return dst
}
