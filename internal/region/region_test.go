package region

import (
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/MeKo-Tech/netthinne/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buffer(t *testing.T, w, h int) utils.PixelBuffer {
	t.Helper()
	pix := make([]byte, w*h*4)
	for y := range h {
		for x := range w {
			i := (y*w + x) * 4
			pix[i] = byte(x)
			pix[i+1] = byte(y)
			pix[i+2] = 7
			pix[i+3] = 100
		}
	}
	pb, err := utils.NewPixelBuffer(w, h, pix)
	require.NoError(t, err)
	return pb
}

func TestRect(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 80)
	tests := []struct {
		name string
		box  utils.Box
		want image.Rectangle
	}{
		{"rounds outward", utils.Box{MinX: 10.6, MinY: 20.2, MaxX: 30.1, MaxY: 40.9}, image.Rect(10, 20, 31, 41)},
		{"zero area", utils.Box{MinX: 10, MinY: 10, MaxX: 10, MaxY: 10}, image.Rect(10, 10, 11, 11)},
		{"clamped", utils.Box{MinX: -20, MinY: -5, MaxX: 500, MaxY: 500}, bounds},
		{"at right edge", utils.Box{MinX: 100, MinY: 80, MaxX: 100, MaxY: 80}, image.Rect(99, 79, 100, 80)},
		{"inverted", utils.Box{MinX: 30, MinY: 30, MaxX: 20, MaxY: 20}, image.Rect(20, 20, 30, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rect(bounds, tt.box)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRect_Errors(t *testing.T) {
	_, err := Rect(image.Rect(0, 0, 10, 10), utils.Box{MinX: math.NaN()})
	require.ErrorIs(t, err, ErrCropFailure)
	_, err = Rect(image.Rectangle{}, utils.Box{})
	require.ErrorIs(t, err, ErrCropFailure)
}

func TestCrop_ZeroAreaBoxGivesOnePixel(t *testing.T) {
	pb := buffer(t, 20, 20)
	crop, err := Crop(pb, utils.Box{MinX: 10, MinY: 10, MaxX: 10, MaxY: 10})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1, 1), crop.Bounds())
	assert.Equal(t, color.NRGBA{R: 10, G: 10, B: 7, A: 255}, crop.NRGBAAt(0, 0))
}

func TestCrop_CopiesRegion(t *testing.T) {
	pb := buffer(t, 20, 20)
	crop, err := Crop(pb, utils.Box{MinX: 2.5, MinY: 3, MaxX: 6, MaxY: 8.2})
	require.NoError(t, err)
	assert.Equal(t, 4, crop.Bounds().Dx())
	assert.Equal(t, 6, crop.Bounds().Dy())
	assert.Equal(t, color.NRGBA{R: 2, G: 3, B: 7, A: 255}, crop.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 5, G: 8, B: 7, A: 255}, crop.NRGBAAt(3, 5))
}

func TestCrop_BadBuffer(t *testing.T) {
	_, err := Crop(utils.PixelBuffer{Width: 2, Height: 2, Pix: []byte{1}}, utils.Box{})
	require.ErrorIs(t, err, utils.ErrBadDimensions)

	_, err = CropImage(nil, utils.Box{})
	require.ErrorIs(t, err, ErrCropFailure)
}

func TestEncodeDataURL_RoundTrip(t *testing.T) {
	pb := buffer(t, 8, 8)
	crop, err := Crop(pb, utils.NewBox(1, 1, 5, 4))
	require.NoError(t, err)

	url, err := EncodeDataURL(crop)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	decoded, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, crop.Bounds(), decoded.Bounds())
	r, g, b, a := decoded.At(2, 1).RGBA()
	assert.Equal(t, []uint32{3, 2, 7, 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
}

func TestEncodeDataURL_Errors(t *testing.T) {
	_, err := EncodeDataURL(nil)
	require.ErrorIs(t, err, ErrEncodeFailure)

	// png rejects images with non-positive dimensions
	_, err = EncodeDataURL(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	require.ErrorIs(t, err, ErrEncodeFailure)

	_, err = DecodeDataURL("data:text/plain,hi")
	require.Error(t, err)
}
