package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

func (h *GenerationHandler) Generate(c *gin.Context) {
	var req entity.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.Generate(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// writeError answers validation failures with 400, a server without provider
// credentials with 501, GPU exhaustion with 507 and suggestions, and
// everything else with 500.
func (h *GenerationHandler) writeError(c *gin.Context, err error) {
	var genErr *entity.GenerationError
	if !errors.As(err, &genErr) {
		genErr = entity.NewGenerationError(entity.KindProvider, "image generation failed", err)
	}

	switch genErr.Kind {
	case entity.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": genErr.Error()})
	case entity.KindNotConfigured:
		c.JSON(http.StatusNotImplemented, gin.H{"error": genErr.Message})
	case entity.KindOutOfMemory:
		c.JSON(http.StatusInsufficientStorage, entity.OOMErrorResponse{
			Error:       genErr.Message,
			Suggestions: genErr.Suggestions,
		})
	default:
		body := gin.H{"error": genErr.Message}
		if !h.production {
			body["name"] = fmt.Sprintf("%T", errors.Unwrap(genErr))
			body["kind"] = genErr.Kind
			body["details"] = genErr.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}
