package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// solidImage returns an RGBA image filled with one colour
func solidImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// noiseImage fills 2x2 blocks with seeded random colours, which JPEG cannot compress well
func noiseImage(width, height int, seed int64) *image.RGBA {
	rnd := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x += 2 {
			c := color.RGBA{R: uint8(rnd.Intn(256)), G: uint8(rnd.Intn(256)), B: uint8(rnd.Intn(256)), A: 255}
			img.SetRGBA(x, y, c)
			img.SetRGBA(x+1, y, c)
			img.SetRGBA(x, y+1, c)
			img.SetRGBA(x+1, y+1, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image, quality int) entity.EncodedImage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return entity.EncodedImage{MIMEType: entity.MIMEJPEG, Data: buf.Bytes()}
}

func encodePNG(t *testing.T, img image.Image) entity.EncodedImage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return entity.EncodedImage{MIMEType: entity.MIMEPNG, Data: buf.Bytes()}
}

func decodeForTest(t *testing.T, img entity.EncodedImage) image.Image {
	t.Helper()
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	return decoded
}
