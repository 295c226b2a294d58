package transport

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/database"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
)

// Only images meant for the provider or the caller are served; job records
// and queued optimize inputs stay private.
var publicPrefixes = []string{
	database.PrefixGenerated + "/",
	database.PrefixReplicateInput + "/",
	database.PrefixOptimized + "/",
}

func isPublicKey(key string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// GetObject serves stored images to the generation provider and to clients.
// Expired objects are reported missing even before the purge removes them.
func (h *ObjectHandler) GetObject(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !isPublicKey(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return
	}

	obj, err := h.storage.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer obj.Body.Close()

	if exp, err := time.Parse(time.RFC3339, obj.Metadata[storage.MetaExpiresAt]); err == nil && !exp.After(time.Now()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj.Body, nil)
}
