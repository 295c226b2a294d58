package processor

import (
	"github.com/sirupsen/logrus"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const strippedQuality = 0.9

// MetadataStripper redraws an image on a white canvas at its own size. The Go
// encoders write no EXIF, ICC or text chunks, so the output carries pixels only.
type MetadataStripper struct {
	logger logrus.FieldLogger
}

func NewMetadataStripper(logger logrus.FieldLogger) *MetadataStripper {
	return &MetadataStripper{logger: logger}
}

// Strip returns src unchanged when anything goes wrong.
func (s *MetadataStripper) Strip(src entity.EncodedImage) entity.EncodedImage {
	buf, err := Decode(src)
	if err != nil {
		s.logger.WithError(err).Warn("metadata stripping failed, keeping original")
		return src
	}

	out, err := encodeFlattenedJPEG(buf.Image, strippedQuality)
	if err != nil {
		s.logger.WithError(err).Warn("metadata stripping failed, keeping original")
		return src
	}

	s.logger.WithFields(logrus.Fields{
		"before": src.Size(),
		"after":  out.Size(),
	}).Debug("metadata stripped")
	return out
}
