package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/metrics"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/transport/middleware"
)

func InitRoutes(imgHandler *ImageHandler, genHandler *GenerationHandler, objHandler *ObjectHandler, timeout time.Duration, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
	router.Use(middleware.Logger(logger))
	router.Use(metrics.Middleware())

	api := router.Group("/api/image")
	api.Use(middleware.Timeout(timeout))
	{
		api.POST("/generate", genHandler.Generate)
		api.POST("/risk", imgHandler.AssessRisk)
		api.POST("/optimize", imgHandler.Optimize)

		jobs := api.Group("/optimize/jobs")
		{
			jobs.POST("", imgHandler.SubmitOptimizeJob)
			jobs.GET("/:id", imgHandler.GetOptimizeJob)
		}
	}

	router.GET("/objects/*key", objHandler.GetObject)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "visual-prompt-builder",
		})
	})
	return router
}
