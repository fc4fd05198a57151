package render

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

const DefaultQuality = 75

// JPEGEncoder turns environment frames into JPEG bytes. When Width and Height
// are set the frame is scaled to fit inside that box first.
type JPEGEncoder struct {
	Quality int
	Width   int
	Height  int
}

func (e JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil frame")
	}
	if e.Width > 0 && e.Height > 0 {
		img = imaging.Fit(img, e.Width, e.Height, imaging.NearestNeighbor)
	}
	q := e.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
