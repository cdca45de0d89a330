package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"sentinel/internal/inference"
	"sentinel/internal/models"
)

var (
	ErrInvalidInput   = errors.New("invalid classification input")
	ErrModelNotLoaded = errors.New("model is not loaded")
	ErrInference      = errors.New("model inference failed")
	ErrBatchInference = errors.New("batch model inference failed")
)

var predictionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sentinel_predictions_total",
		Help: "Predictions returned, by normalized label",
	},
	[]string{"label"},
)

// Classifier handles classification business logic. It holds an immutable
// model handle, so concurrent calls need no locking. A nil handle means the
// model failed to load and every call reports ErrModelNotLoaded.
type Classifier struct {
	handle inference.Handle
	logger *zap.Logger
}

// New creates a classifier over a loaded model. handle may be nil.
func New(handle inference.Handle, logger *zap.Logger) *Classifier {
	return &Classifier{
		handle: handle,
		logger: logger,
	}
}

// Load asks the runtime for repoID. A load failure is logged and yields a
// degraded classifier rather than an error.
func Load(ctx context.Context, runtime inference.Runtime, repoID string, logger *zap.Logger) *Classifier {
	logger.Info("Loading model", zap.String("model", repoID))

	handle, err := runtime.Load(ctx, repoID)
	if err != nil {
		logger.Error("Could not load model, classification endpoints disabled",
			zap.String("model", repoID),
			zap.Error(err))
		return New(nil, logger)
	}

	logger.Info("Model loaded",
		zap.String("model", handle.ModelID()),
		zap.String("device", handle.Device()))

	return New(handle, logger)
}

// Loaded reports whether a model is available.
func (c *Classifier) Loaded() bool {
	return c.handle != nil
}

// ModelInfo returns model id and compute device, empty when degraded.
func (c *Classifier) ModelInfo() (model, device string) {
	if c.handle == nil {
		return "", ""
	}
	return c.handle.ModelID(), c.handle.Device()
}

// ClassifyOne runs the model once for text.
func (c *Classifier) ClassifyOne(ctx context.Context, text string) (models.Prediction, error) {
	if c.handle == nil {
		return models.Prediction{}, ErrModelNotLoaded
	}

	raw, err := c.handle.Infer(ctx, []string{text})
	if err != nil {
		return models.Prediction{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(raw) != 1 {
		return models.Prediction{}, fmt.Errorf("%w: expected 1 result, got %d", ErrInference, len(raw))
	}

	pred := Normalize(raw[0])
	predictionsTotal.WithLabelValues(string(pred.Label)).Inc()

	return pred, nil
}

// ClassifyBatch runs the model once over texts and returns results in input
// order. Any failure aborts the whole batch.
func (c *Classifier) ClassifyBatch(ctx context.Context, texts []string) ([]models.Prediction, error) {
	if c.handle == nil {
		return nil, ErrModelNotLoaded
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}

	raw, err := c.handle.Infer(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchInference, err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d results, got %d", ErrBatchInference, len(texts), len(raw))
	}

	results := make([]models.Prediction, len(raw))
	for i, r := range raw {
		results[i] = Normalize(r)
		predictionsTotal.WithLabelValues(string(results[i].Label)).Inc()
	}

	c.logger.Debug("Batch classified", zap.Int("size", len(results)))

	return results, nil
}

// Normalize maps a raw runtime prediction onto the domain contract. Unknown or
// missing labels become UNKNOWN; a missing score becomes 0.
func Normalize(raw inference.RawPrediction) models.Prediction {
	label := models.LabelUnknown
	if raw.Label != nil {
		if mapped, ok := models.RawLabels[*raw.Label]; ok {
			label = mapped
		}
	}

	var score float64
	if raw.Score != nil {
		score = *raw.Score
	}

	return models.Prediction{Label: label, Score: RoundScore(score)}
}

// RoundScore clamps to [0,1] and rounds to 4 decimal places.
func RoundScore(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	}
	return math.Round(score*1e4) / 1e4
}
