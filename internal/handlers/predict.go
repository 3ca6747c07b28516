package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/example/freshcheck/internal/repository"
	"github.com/example/freshcheck/internal/usecase"
)

// MaxUploadSize bounds the request body accepted by POST /predict.
const MaxUploadSize = 16 << 20

// Messages returned by the gateway for malformed uploads.
const (
	MsgNoFile        = "Tidak ada file yang dikirim"
	MsgEmptyFilename = "Nama file kosong"
	MsgTooLarge      = "Ukuran file terlalu besar"
)

const fileField = "file"

// PredictionService is the gateway use case consumed by the HTTP layer.
type PredictionService interface {
	Predict(ctx context.Context, filename string, image []byte) (*usecase.PredictionResult, error)
	GetPrediction(ctx context.Context, requestID string) (*repository.PredictionLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// NewCORS allows browser front ends on other origins. An empty list or "*" allows all.
func NewCORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && strings.TrimSpace(origins[0]) == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// RegisterGatewayRoutes wires the classifier endpoint to the Gin router.
func RegisterGatewayRoutes(router *gin.Engine, svc PredictionService) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/predict", func(c *gin.Context) {
		if c.Request.ContentLength > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": MsgTooLarge})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)

		file, err := c.FormFile(fileField)
		if err != nil {
			var maxErr *http.MaxBytesError
			switch {
			case errors.As(err, &maxErr):
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": MsgTooLarge})
			case hasEmptyFilePart(c):
				c.JSON(http.StatusBadRequest, gin.H{"error": MsgEmptyFilename})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": MsgNoFile})
			}
			return
		}
		if file.Filename == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": MsgEmptyFilename})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		result, err := svc.Predict(c.Request.Context(), file.Filename, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	})

	router.GET("/predictions/:id", func(c *gin.Context) {
		log, err := svc.GetPrediction(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, usecase.ErrMetricsUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "prediction not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":  log.RequestID,
			"filename":    log.Filename,
			"label":       log.Label,
			"class_index": log.ClassIndex,
			"confidence":  log.Confidence,
			"sha1_hash":   log.SHA1Hash,
			"cached":      log.Cached,
			"latency_ms":  log.LatencyMs,
			"created_at":  log.CreatedAt,
		})
	})

	router.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, usecase.ErrMetricsUnavailable) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// hasEmptyFilePart reports whether the form carried the file field without a filename,
// which the multipart parser stores as a plain value.
func hasEmptyFilePart(c *gin.Context) bool {
	form := c.Request.MultipartForm
	return form != nil && len(form.Value[fileField]) > 0
}
