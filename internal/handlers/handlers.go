package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/example/nutriscan/internal/auth"
	"github.com/example/nutriscan/internal/nutrition"
	"github.com/example/nutriscan/internal/usecase"
)

const (
	// MaxUploadSize bounds the size of an uploaded label image.
	MaxUploadSize = 5 << 20
	// maxJSONBodySize bounds /analyze/text and /score payloads.
	maxJSONBodySize = 1 << 20
	// multipartOverhead leaves room for form boundaries and headers.
	multipartOverhead = 1 << 20
)

var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
}

// Analyzer runs the label pipeline.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte) (*usecase.Report, error)
	AnalyzeText(ctx context.Context, text string) (*usecase.Report, error)
}

// textRequest requires the text key; blank text is left to the analyzer.
type textRequest struct {
	Text *string `json:"text" binding:"required"`
}

type scoreResponse struct {
	Nutrients      nutrition.Record         `json:"nutrients"`
	Score          float64                  `json:"score"`
	Classification nutrition.Classification `json:"classification"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, analyzer Analyzer, authMiddleware gin.HandlerFunc, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	if authMiddleware != nil {
		protected.Use(authMiddleware)
	}

	protected.POST("/analyze/image", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}

		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}

		if _, ok := allowedImageTypes[file.Header.Get("Content-Type")]; !ok {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image must be png or jpeg"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		if _, ok := allowedImageTypes[mimetype.Detect(data).String()]; !ok {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image must be png or jpeg"})
			return
		}

		report, err := analyzer.AnalyzeImage(c.Request.Context(), data)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		logReport(c, logger, report)
		c.JSON(http.StatusOK, report)
	})

	protected.POST("/analyze/text", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodySize)

		var req textRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}

		report, err := analyzer.AnalyzeText(c.Request.Context(), *req.Text)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		logReport(c, logger, report)
		c.JSON(http.StatusOK, report)
	})

	protected.POST("/score", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodySize)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
			return
		}

		record := nutrition.ParseRecord(body)
		result := nutrition.Evaluate(record)
		c.JSON(http.StatusOK, scoreResponse{
			Nutrients:      record,
			Score:          result.Score,
			Classification: result.Classification,
		})
	})
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, usecase.ErrEmptyInput):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, usecase.ErrExtraction):
		status = http.StatusBadGateway
	case errors.Is(err, usecase.ErrOCRUnavailable):
		status = http.StatusServiceUnavailable
	}

	fields := []zap.Field{zap.Int("status", status), zap.Error(err)}
	if clientID, ok := auth.GetClientID(c.Request.Context()); ok {
		fields = append(fields, zap.String("client_id", clientID))
	}
	logger.Warn("analysis request failed", fields...)

	c.JSON(status, gin.H{"error": err.Error()})
}

func logReport(c *gin.Context, logger *zap.Logger, report *usecase.Report) {
	fields := []zap.Field{
		zap.String("request_id", report.RequestID),
		zap.String("path", c.FullPath()),
		zap.Float64("score", report.Score),
	}
	if clientID, ok := auth.GetClientID(c.Request.Context()); ok {
		fields = append(fields, zap.String("client_id", clientID))
	}
	logger.Info("analysis served", fields...)
}
