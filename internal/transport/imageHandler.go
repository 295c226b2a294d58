package transport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

func (h *ImageHandler) Optimize(c *gin.Context) {
	var req entity.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.Optimize(c.Request.Context(), &req)
	if err != nil {
		c.JSON(imageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ImageHandler) SubmitOptimizeJob(c *gin.Context) {
	var req entity.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.SubmitOptimizeJob(c.Request.Context(), &req)
	if err != nil {
		c.JSON(imageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

func (h *ImageHandler) GetOptimizeJob(c *gin.Context) {
	job, err := h.service.GetOptimizeJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(imageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *ImageHandler) AssessRisk(c *gin.Context) {
	var req entity.RiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assessment, err := h.service.AssessRisk(c.Request.Context(), &req)
	if err != nil {
		c.JSON(imageErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, assessment)
}

func imageErrorStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidImage),
		errors.Is(err, entity.ErrUnsupportedFormat),
		errors.Is(err, entity.ErrImageTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
