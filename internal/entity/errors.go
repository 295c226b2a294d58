package entity

import (
	"errors"
	"fmt"
)

var (
	// Image errors
	ErrInvalidImage      = errors.New("invalid image")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrImageTooLarge     = errors.New("image too large")

	// Provider errors
	ErrMissingAPIKey     = errors.New("replicate api token is not configured")
	ErrUnknownModel      = errors.New("unknown model")
	ErrPredictionFailed  = errors.New("prediction failed")
	ErrPredictionTimeout = errors.New("prediction timed out")
	ErrEmptyOutput       = errors.New("prediction returned no output")
	ErrDownloadTooLarge  = errors.New("generated image exceeds download limit")
	ErrUploadFailed      = errors.New("input image upload failed")

	// Job errors
	ErrJobNotFound      = errors.New("optimization job not found")
	ErrQueueUnavailable = errors.New("optimization queue unavailable")
)

// EncodingError is returned when an image cannot be decoded or re-encoded.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error during %s: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

type GenerationErrorKind string

const (
	KindValidation    GenerationErrorKind = "validation"
	KindNotConfigured GenerationErrorKind = "not_configured"
	KindUpload        GenerationErrorKind = "upload"
	KindProvider      GenerationErrorKind = "provider"
	KindOutOfMemory   GenerationErrorKind = "oom"
	KindTimeout       GenerationErrorKind = "timeout"
	KindDownload      GenerationErrorKind = "download"
)

// GenerationError classifies a terminal failure of a generation request.
type GenerationError struct {
	Kind        GenerationErrorKind
	Message     string
	Suggestions []string
	Cause       error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

func NewGenerationError(kind GenerationErrorKind, message string, cause error) *GenerationError {
	return &GenerationError{Kind: kind, Message: message, Cause: cause}
}

// IsGenerationKind reports whether err is a GenerationError of the given kind.
func IsGenerationKind(err error, kind GenerationErrorKind) bool {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind == kind
	}
	return false
}
