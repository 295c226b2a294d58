package processor

import (
	"bytes"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const (
	smartphoneMinPixels   = 3_000_000
	smartphoneMinBytes    = 2 * 1024 * 1024
	aspectRatioTolerance  = 0.1
	smartphoneThreshold   = 60
	resolutionConfidence  = 40
	aspectRatioConfidence = 30
	fileSizeConfidence    = 30
	heicConfidence        = 20
)

var phoneAspectRatios = []float64{4.0 / 3.0, 16.0 / 9.0, 9.0 / 16.0}

// ISO-BMFF brands written by phone cameras for HEIC/HEIF stills.
var heicBrands = [][]byte{
	[]byte("heic"), []byte("heix"), []byte("hevc"), []byte("hevx"),
	[]byte("heim"), []byte("heis"), []byte("mif1"), []byte("msf1"),
}

// SmartphoneDetector guesses whether an image is a high-resolution phone photo.
type SmartphoneDetector struct {
	logger logrus.FieldLogger
}

func NewSmartphoneDetector(logger logrus.FieldLogger) *SmartphoneDetector {
	return &SmartphoneDetector{logger: logger}
}

// Detect never fails: an unreadable image is reported as not a smartphone
// capture, unless its container is HEIC, which alone is conclusive.
func (d *SmartphoneDetector) Detect(src entity.EncodedImage) entity.SmartphoneDetection {
	details := entity.SmartphoneDetails{
		SizeBytes:    src.Size(),
		HEICDetected: IsHEIC(src.Data),
	}

	confidence := 0
	if details.HEICDetected {
		confidence += heicConfidence
	}
	if details.SizeBytes > smartphoneMinBytes {
		confidence += fileSizeConfidence
	}

	cfg, _, err := DecodeConfig(src)
	if err != nil {
		if details.HEICDetected {
			return entity.SmartphoneDetection{IsSmartphone: true, Confidence: min(confidence, 100), Details: details}
		}
		d.logger.WithError(err).Debug("smartphone detection skipped: image header unreadable")
		return entity.SmartphoneDetection{Details: details}
	}

	details.Width = cfg.Width
	details.Height = cfg.Height
	if cfg.Height > 0 {
		details.AspectRatio = float64(cfg.Width) / float64(cfg.Height)
	}
	pixels := cfg.Width * cfg.Height
	details.Megapixels = math.Round(float64(pixels)/1e4) / 100

	if pixels >= smartphoneMinPixels {
		confidence += resolutionConfidence
	}
	if matchesPhoneAspect(details.AspectRatio) {
		confidence += aspectRatioConfidence
	}
	confidence = min(confidence, 100)

	return entity.SmartphoneDetection{
		IsSmartphone: confidence >= smartphoneThreshold || details.HEICDetected,
		Confidence:   confidence,
		Details:      details,
	}
}

func matchesPhoneAspect(ratio float64) bool {
	for _, r := range phoneAspectRatios {
		if math.Abs(ratio-r) <= aspectRatioTolerance {
			return true
		}
	}
	return false
}

// IsHEIC looks for an ftyp box carrying a HEIC/HEIF brand.
func IsHEIC(data []byte) bool {
	if len(data) < 12 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return false
	}
	brand := data[8:12]
	for _, b := range heicBrands {
		if bytes.Equal(brand, b) {
			return true
		}
	}
	return false
}
