package processor

import (
	"math"

	"github.com/disintegration/imaging"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

// Transcoder resizes an image into a bounding box and re-encodes it as JPEG.
type Transcoder struct{}

func NewTranscoder() *Transcoder {
	return &Transcoder{}
}

// Transcode fits src inside maxWidth x maxHeight, keeping its aspect ratio.
// An image that already fits is returned as is, without a lossy round trip.
func (t *Transcoder) Transcode(src entity.EncodedImage, maxWidth, maxHeight int, quality float64) (entity.EncodedImage, error) {
	buf, err := Decode(src)
	if err != nil {
		return entity.EncodedImage{}, err
	}

	width, height := FitWithin(buf.Width, buf.Height, maxWidth, maxHeight)
	if width == buf.Width && height == buf.Height {
		return src, nil
	}

	resized := imaging.Resize(buf.Image, width, height, imaging.Lanczos)
	buf.Image = nil

	return encodeFlattenedJPEG(resized, quality)
}

// FitWithin scales width x height down so that both fit their bounds. The
// more constrained axis decides the scale factor.
func FitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}

	ratio := float64(width) / float64(height)
	if float64(width)/float64(maxWidth) >= float64(height)/float64(maxHeight) {
		width = maxWidth
		height = int(math.Round(float64(maxWidth) / ratio))
	} else {
		height = maxHeight
		width = int(math.Round(float64(maxHeight) * ratio))
	}

	return max(width, 1), max(height, 1)
}
