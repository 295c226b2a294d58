package entity

import (
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
	MIMEGIF  = "image/gif"
)

var supportedMIMETypes = map[string]bool{
	MIMEPNG:  true,
	MIMEJPEG: true,
	MIMEWebP: true,
	MIMEGIF:  true,
}

// IsSupportedMIME reports whether the MIME type is one the pipeline can decode.
func IsSupportedMIME(mime string) bool {
	return supportedMIMETypes[strings.ToLower(mime)]
}

// EncodedImage is a compressed image payload tagged with its MIME type.
type EncodedImage struct {
	MIMEType string
	Data     []byte
}

// NewEncodedImage sniffs the MIME type of raw bytes.
func NewEncodedImage(data []byte) EncodedImage {
	return EncodedImage{
		MIMEType: mimetype.Detect(data).String(),
		Data:     data,
	}
}

// ParseEncodedImage accepts either a data URL or bare base64 text and returns
// the decoded payload. The declared MIME type of a data URL is ignored in
// favour of the sniffed one, since browsers routinely mislabel captures.
func ParseEncodedImage(s string) (EncodedImage, error) {
	payload := StripDataURLPrefix(strings.TrimSpace(s))
	if payload == "" {
		return EncodedImage{}, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("%w: decode base64: %v", ErrInvalidImage, err)
	}

	img := NewEncodedImage(data)
	if isHEIF(img.MIMEType) {
		return EncodedImage{}, fmt.Errorf("%w: %s cannot be decoded, convert it to JPEG first", ErrUnsupportedFormat, img.MIMEType)
	}
	if !IsSupportedMIME(img.MIMEType) {
		return EncodedImage{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, img.MIMEType)
	}
	return img, nil
}

func isHEIF(mime string) bool {
	return strings.HasPrefix(mime, "image/heic") || strings.HasPrefix(mime, "image/heif")
}

// StripDataURLPrefix removes a leading "data:<mime>;base64," header if present.
func StripDataURLPrefix(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if idx := strings.Index(s, ";base64,"); idx >= 0 {
		return s[idx+len(";base64,"):]
	}
	if idx := strings.IndexByte(s, ','); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

func (e EncodedImage) Size() int {
	return len(e.Data)
}

func (e EncodedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(e.Data)
}

func (e EncodedImage) DataURL() string {
	return "data:" + e.MIMEType + ";base64," + e.Base64()
}

// Extension returns the file extension conventionally used for the MIME type.
func (e EncodedImage) Extension() string {
	switch e.MIMEType {
	case MIMEPNG:
		return ".png"
	case MIMEWebP:
		return ".webp"
	case MIMEGIF:
		return ".gif"
	default:
		return ".jpg"
	}
}

// ImageBuffer is a decoded raster.
type ImageBuffer struct {
	Image  image.Image
	Width  int
	Height int
}

func NewImageBuffer(img image.Image) ImageBuffer {
	b := img.Bounds()
	return ImageBuffer{Image: img, Width: b.Dx(), Height: b.Dy()}
}

func (b ImageBuffer) Pixels() int {
	return b.Width * b.Height
}
