package service

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const (
	cacheKeyPrefix = "replicate-i2i:"

	fingerprintSample = 16 * 1024

	// Multiple of 3 so every chunk encodes without padding.
	base64ChunkSize = 3 * 32 * 1024
)

// Fingerprint hashes the length of the payload plus samples from its head,
// middle and tail. Large inputs are never hashed in full.
func Fingerprint(data []byte) string {
	h := sha256.New()

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(data)))
	h.Write(size[:])

	if len(data) <= 3*fingerprintSample {
		h.Write(data)
	} else {
		mid := len(data)/2 - fingerprintSample/2
		h.Write(data[:fingerprintSample])
		h.Write(data[mid : mid+fingerprintSample])
		h.Write(data[len(data)-fingerprintSample:])
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

type cacheKeyFields struct {
	Fingerprint string                      `json:"fingerprint"`
	Prompt      string                      `json:"prompt"`
	Model       string                      `json:"model"`
	Parameters  entity.GenerationParameters `json:"parameters"`
}

// CacheKey derives the generation cache key from the input fingerprint,
// prompt, model and the requested parameters.
func CacheKey(img entity.EncodedImage, prompt, model string, params entity.GenerationParameters) string {
	payload, _ := json.Marshal(cacheKeyFields{
		Fingerprint: Fingerprint(img.Data),
		Prompt:      prompt,
		Model:       model,
		Parameters:  params,
	})
	sum := sha256.Sum256(append([]byte(cacheKeyPrefix), payload...))
	return hex.EncodeToString(sum[:])
}

// encodeBase64Chunked produces the same text as StdEncoding in bounded
// slices of the input.
func encodeBase64Chunked(data []byte) string {
	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(data)))

	buf := make([]byte, base64.StdEncoding.EncodedLen(base64ChunkSize))
	for start := 0; start < len(data); start += base64ChunkSize {
		end := min(start+base64ChunkSize, len(data))
		n := base64.StdEncoding.EncodedLen(end - start)
		base64.StdEncoding.Encode(buf[:n], data[start:end])
		b.Write(buf[:n])
	}
	return b.String()
}
