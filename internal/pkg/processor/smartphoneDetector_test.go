package processor

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

func TestSmartphoneDetector(t *testing.T) {
	grey := color.RGBA{R: 128, G: 128, B: 128, A: 255}

	tests := []struct {
		name           string
		image          func(t *testing.T) entity.EncodedImage
		wantSmartphone bool
		wantConfidence int
	}{
		{
			name:           "12MP 4:3 capture",
			image:          func(t *testing.T) entity.EncodedImage { return encodeJPEG(t, solidImage(4032, 3024, grey), 80) },
			wantSmartphone: true,
			wantConfidence: 70,
		},
		{
			name:           "16:9 small screenshot",
			image:          func(t *testing.T) entity.EncodedImage { return encodeJPEG(t, solidImage(1280, 720, grey), 80) },
			wantSmartphone: false,
			wantConfidence: 30,
		},
		{
			name:           "square high resolution",
			image:          func(t *testing.T) entity.EncodedImage { return encodeJPEG(t, solidImage(2000, 2000, grey), 80) },
			wantSmartphone: false,
			wantConfidence: 40,
		},
		{
			name:           "9:16 portrait 8MP",
			image:          func(t *testing.T) entity.EncodedImage { return encodeJPEG(t, solidImage(2160, 3840, grey), 80) },
			wantSmartphone: true,
			wantConfidence: 70,
		},
		{
			name: "heic container",
			image: func(t *testing.T) entity.EncodedImage {
				return entity.EncodedImage{MIMEType: "image/heic", Data: []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic")}
			},
			wantSmartphone: true,
			wantConfidence: 20,
		},
		{
			name: "garbage",
			image: func(t *testing.T) entity.EncodedImage {
				return entity.EncodedImage{MIMEType: entity.MIMEJPEG, Data: []byte("definitely not an image")}
			},
			wantSmartphone: false,
			wantConfidence: 0,
		},
	}

	detector := NewSmartphoneDetector(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.Detect(tt.image(t))
			assert.Equal(t, tt.wantSmartphone, got.IsSmartphone)
			assert.Equal(t, tt.wantConfidence, got.Confidence)
		})
	}
}

func TestSmartphoneDetectorCountsLargeFiles(t *testing.T) {
	src := encodeJPEG(t, noiseImage(2000, 1500, 7), 100)
	if !assert.Greater(t, src.Size(), smartphoneMinBytes) {
		return
	}

	got := NewSmartphoneDetector(testLogger()).Detect(src)
	assert.True(t, got.IsSmartphone)
	assert.Equal(t, 100, got.Confidence)
	assert.Equal(t, 2000, got.Details.Width)
	assert.Equal(t, 1500, got.Details.Height)
}

func TestIsHEIC(t *testing.T) {
	assert.True(t, IsHEIC([]byte("\x00\x00\x00\x18ftypmif1")))
	assert.False(t, IsHEIC([]byte("\x00\x00\x00\x18ftypisom")))
	assert.False(t, IsHEIC([]byte("short")))
}
