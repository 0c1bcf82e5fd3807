package onnx

import (
	"fmt"
	"strings"
)

// Layout is the memory order of an image tensor.
type Layout int

const (
	// LayoutChannelMajor is NCHW: all of channel 0, then channel 1, then channel 2.
	LayoutChannelMajor Layout = iota
	// LayoutPixelMajor is NHWC: three interleaved values per pixel.
	LayoutPixelMajor
)

func (l Layout) String() string {
	switch l {
	case LayoutChannelMajor:
		return "nchw"
	case LayoutPixelMajor:
		return "nhwc"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout accepts "nchw"/"channel-major" and "nhwc"/"pixel-major".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nchw", "channel-major", "":
		return LayoutChannelMajor, nil
	case "nhwc", "pixel-major":
		return LayoutPixelMajor, nil
	default:
		return 0, fmt.Errorf("unknown tensor layout %q", s)
	}
}

// ChannelOrder is the order the three color channels are written in.
type ChannelOrder int

const (
	OrderRGB ChannelOrder = iota
	OrderBGR
)

func (o ChannelOrder) String() string {
	switch o {
	case OrderRGB:
		return "rgb"
	case OrderBGR:
		return "bgr"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseChannelOrder accepts "rgb" or "bgr".
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgb", "":
		return OrderRGB, nil
	case "bgr":
		return OrderBGR, nil
	default:
		return 0, fmt.Errorf("unknown channel order %q", s)
	}
}

// TensorSpec describes the image tensor a model expects.
// Each channel value v in [0,255] is written as (v/255 - Mean[c]) / Scale[c],
// where c is the output channel position.
type TensorSpec struct {
	Width  int
	Height int
	Layout Layout
	Order  ChannelOrder
	Mean   [3]float32
	Scale  [3]float32
}

// DetectorSpec is the YOLOv8 input: 640x640, NCHW, RGB, scaled to [0,1].
func DetectorSpec() TensorSpec {
	return TensorSpec{
		Width:  640,
		Height: 640,
		Layout: LayoutChannelMajor,
		Order:  OrderRGB,
		Scale:  [3]float32{1, 1, 1},
	}
}

// ClassifierSpec is the MobileNetV2 input: 224x224, NCHW, RGB, mapped to [-1,1].
func ClassifierSpec() TensorSpec {
	return TensorSpec{
		Width:  224,
		Height: 224,
		Layout: LayoutChannelMajor,
		Order:  OrderRGB,
		Mean:   [3]float32{0.5, 0.5, 0.5},
		Scale:  [3]float32{0.5, 0.5, 0.5},
	}
}

// Validate checks that dimensions are positive and no scale is zero.
func (s TensorSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("tensor spec dimensions must be positive, got %dx%d", s.Width, s.Height)
	}
	if s.Layout != LayoutChannelMajor && s.Layout != LayoutPixelMajor {
		return fmt.Errorf("invalid tensor layout %v", s.Layout)
	}
	if s.Order != OrderRGB && s.Order != OrderBGR {
		return fmt.Errorf("invalid channel order %v", s.Order)
	}
	for c, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("scale for channel %d must be non-zero", c)
		}
	}
	return nil
}

// Shape returns [1,3,H,W] or [1,H,W,3].
func (s TensorSpec) Shape() []int64 {
	if s.Layout == LayoutPixelMajor {
		return []int64{1, int64(s.Height), int64(s.Width), 3}
	}
	return []int64{1, 3, int64(s.Height), int64(s.Width)}
}

// strides resolves the layout into the distance between two channels of the
// same pixel and between two consecutive pixels of the same channel.
func (s TensorSpec) strides() (channel, pixel int) {
	if s.Layout == LayoutPixelMajor {
		return 1, 3
	}
	return s.Width * s.Height, 1
}

// sources maps each output channel position to its RGB source index.
func (s TensorSpec) sources() [3]int {
	if s.Order == OrderBGR {
		return [3]int{2, 1, 0}
	}
	return [3]int{0, 1, 2}
}
