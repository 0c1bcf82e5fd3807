package utils

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Box represents an axis-aligned bounding box in float pixel coordinates.
type Box struct {
	MinX float64 `json:"x1" yaml:"x1"`
	MinY float64 `json:"y1" yaml:"y1"`
	MaxX float64 `json:"x2" yaml:"x2"`
	MaxY float64 `json:"y2" yaml:"y2"`
}

// NewBox constructs a Box from min/max coordinates ensuring ordering.
func NewBox(x1, y1, x2, y2 float64) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}
}

// Width returns the box width.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the box height.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Area returns the box area, or 0 for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Clamp limits all coordinates to [0,width] x [0,height].
func (b Box) Clamp(width, height float64) Box {
	return Box{
		MinX: clampFloat(b.MinX, 0, width),
		MinY: clampFloat(b.MinY, 0, height),
		MaxX: clampFloat(b.MaxX, 0, width),
		MaxY: clampFloat(b.MaxY, 0, height),
	}
}

// IsFinite reports whether no coordinate is NaN or infinite.
func (b Box) IsFinite() bool {
	for _, v := range [...]float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ToRect converts a Box to an image.Rectangle, clamped to image bounds.
// Coordinates round outward: floor for the minimum corner, ceil for the maximum.
func (b Box) ToRect(bounds image.Rectangle) image.Rectangle {
	x1 := clampInt(int(math.Floor(b.MinX)), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(math.Floor(b.MinY)), bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(int(math.Ceil(b.MaxX)), bounds.Min.X, bounds.Max.X)
	y2 := clampInt(int(math.Ceil(b.MaxY)), bounds.Min.Y, bounds.Max.Y)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return image.Rect(x1, y1, x2, y2)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// DrawRect outlines rect in dst with edges thickness pixels wide, drawn
// inside rect and clipped to dst.
func DrawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	t := max(thickness, 1)
	r := rect
	FillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, min(r.Min.Y+t, r.Max.Y)), col)
	FillRect(dst, image.Rect(r.Min.X, max(r.Max.Y-t, r.Min.Y), r.Max.X, r.Max.Y), col)
	FillRect(dst, image.Rect(r.Min.X, r.Min.Y, min(r.Min.X+t, r.Max.X), r.Max.Y), col)
	FillRect(dst, image.Rect(max(r.Max.X-t, r.Min.X), r.Min.Y, r.Max.X, r.Max.Y), col)
}

// FillRect fills rect with col, clipped to dst.
func FillRect(dst *image.RGBA, rect image.Rectangle, col color.Color) {
	draw.Draw(dst, rect.Intersect(dst.Bounds()), image.NewUniform(col), image.Point{}, draw.Src)
}
