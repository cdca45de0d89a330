package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sentinel/internal/models"
)

// Classifier is the model-backed side of the API.
type Classifier interface {
	Loaded() bool
	ModelInfo() (model, device string)
	ClassifyOne(ctx context.Context, text string) (models.Prediction, error)
	ClassifyBatch(ctx context.Context, texts []string) ([]models.Prediction, error)
}

// ReportStore persists user feedback.
type ReportStore interface {
	InsertReport(ctx context.Context, text, reportType string) (*models.Report, error)
}

// Handler handles HTTP requests
type Handler struct {
	classifier Classifier
	store      ReportStore
	logger     *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(classifier Classifier, store ReportStore, logger *zap.Logger) *Handler {
	return &Handler{
		classifier: classifier,
		store:      store,
		logger:     logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Classification
	r.POST("/predict", h.Predict)
	r.POST("/predict/batch", h.PredictBatch)

	// Feedback
	r.POST("/report", h.Report)

	// Operations
	r.GET("/", h.Index)
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Predict classifies a single text
func (h *Handler) Predict(c *gin.Context) {
	if !h.classifier.Loaded() {
		respondError(c, http.StatusInternalServerError, msgModelNotLoaded)
		return
	}

	var req models.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == nil {
		respondError(c, http.StatusBadRequest, msgInvalidText)
		return
	}

	pred, err := h.classifier.ClassifyOne(c.Request.Context(), *req.Text)
	if err != nil {
		h.handleError(c, "Prediction", err)
		return
	}

	c.JSON(http.StatusOK, pred)
}

// PredictBatch classifies several texts in one model call
func (h *Handler) PredictBatch(c *gin.Context) {
	if !h.classifier.Loaded() {
		respondError(c, http.StatusInternalServerError, msgModelNotLoaded)
		return
	}

	var req models.BatchPredictRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Texts) == 0 {
		respondError(c, http.StatusBadRequest, msgInvalidTexts)
		return
	}

	texts := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		if text == nil {
			respondError(c, http.StatusBadRequest, msgInvalidTexts)
			return
		}
		texts[i] = *text
	}

	results, err := h.classifier.ClassifyBatch(c.Request.Context(), texts)
	if err != nil {
		h.handleError(c, "Batch prediction", err)
		return
	}

	c.JSON(http.StatusOK, models.BatchPredictResponse{Results: results})
}

// Report stores one piece of user feedback
func (h *Handler) Report(c *gin.Context) {
	var req models.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == nil || req.ReportType == nil {
		respondError(c, http.StatusBadRequest, msgInvalidReport)
		return
	}

	report, err := h.store.InsertReport(c.Request.Context(), *req.Text, *req.ReportType)
	if err != nil {
		h.handleError(c, "Report", err)
		return
	}

	h.logger.Debug("Report stored",
		zap.Int64("id", report.ID),
		zap.String("report_type", report.ReportType))

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// HealthCheck returns service health. A missing model is reported, not failed.
func (h *Handler) HealthCheck(c *gin.Context) {
	model, device := h.classifier.ModelInfo()
	status := "ok"
	if !h.classifier.Loaded() {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"model_loaded": h.classifier.Loaded(),
		"model":        model,
		"device":       device,
	})
}

// Index lets a browser open the origin once to accept the local certificate.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "sentinel",
		"message": "Hate speech classifier is running.",
	})
}
