package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"

	"github.com/disintegration/imaging"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	_ "golang.org/x/image/webp"
)

// Decode turns an encoded payload into a raster, applying EXIF orientation so
// that phone captures come out upright once their metadata is gone.
func Decode(src entity.EncodedImage) (entity.ImageBuffer, error) {
	if src.Size() == 0 {
		return entity.ImageBuffer{}, &entity.EncodingError{Op: "decode", Err: fmt.Errorf("empty payload")}
	}

	img, err := imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(true))
	if err != nil {
		return entity.ImageBuffer{}, &entity.EncodingError{Op: "decode", Err: err}
	}

	buf := entity.NewImageBuffer(img)
	if buf.Width <= 0 || buf.Height <= 0 {
		return entity.ImageBuffer{}, &entity.EncodingError{Op: "decode", Err: fmt.Errorf("empty raster %dx%d", buf.Width, buf.Height)}
	}
	return buf, nil
}

// DecodeConfig reads only the header of the payload.
func DecodeConfig(src entity.EncodedImage) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(src.Data))
}

// encodeFlattenedJPEG paints img over an opaque white canvas and encodes the
// result. The canvas is returned to the pool before this function exits.
func encodeFlattenedJPEG(img image.Image, quality float64) (entity.EncodedImage, error) {
	bounds := img.Bounds()
	canvas, release := acquireCanvas(bounds.Dx(), bounds.Dy())
	defer release()

	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Over)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
		return entity.EncodedImage{}, &entity.EncodingError{Op: "encode", Err: err}
	}

	return entity.EncodedImage{MIMEType: entity.MIMEJPEG, Data: out.Bytes()}, nil
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
