// Package imagesize estimates and formats image payload sizes without decoding them.
package imagesize

import (
	"math"
	"strconv"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

var units = []string{"Bytes", "KB", "MB", "GB"}

// EstimateByteSize returns the decoded byte length of base64 text, with or
// without a data URL prefix.
func EstimateByteSize(encoded string) int {
	payload := entity.StripDataURLPrefix(encoded)
	return int(math.Ceil(float64(len(payload)) * 3 / 4))
}

// FormatHumanSize renders a byte count on a log-1024 scale, e.g. "1.5 KB".
func FormatHumanSize(bytes int) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}

	value := float64(bytes) / math.Pow(1024, float64(i))
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + units[i]
}

// ValidateSizeUnder reports whether the payload decodes to at most maxMB megabytes.
func ValidateSizeUnder(encoded string, maxMB float64) bool {
	return float64(EstimateByteSize(encoded)) <= maxMB*1024*1024
}

// KB converts a byte count to kibibytes for comparisons against stage targets.
func KB(bytes int) float64 {
	return float64(bytes) / 1024
}
