package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	return img
}

func TestJPEGEncoderProducesJPEG(t *testing.T) {
	b, err := JPEGEncoder{}.Encode(frame(40, 20))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestJPEGEncoderFitsCanvas(t *testing.T) {
	b, err := JPEGEncoder{Quality: 90, Width: 20, Height: 20}.Encode(frame(40, 20))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())
}

func TestJPEGEncoderRejectsNil(t *testing.T) {
	_, err := JPEGEncoder{}.Encode(nil)
	assert.Error(t, err)
}
