package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/backoff"
	"github.com/example/freshcheck/internal/logging"
	"github.com/example/freshcheck/internal/model"
	"github.com/example/freshcheck/internal/repository"
)

// CacheTTL is how long a prediction for identical image bytes is reused.
const CacheTTL = 10 * time.Minute

// PredictionRepository defines the persistence operations needed by the use case.
type PredictionRepository interface {
	SaveLog(ctx context.Context, log *repository.PredictionLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.PredictionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// ErrMetricsUnavailable is returned when no repository is configured.
var ErrMetricsUnavailable = errors.New("prediction log is not configured")

// PredictionResult is the gateway answer for one image.
type PredictionResult struct {
	RequestID  string  `json:"request_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	ClassIndex int     `json:"class_index"`
	Cached     bool    `json:"-"`
}

// PredictionUseCase runs the model call behind the cache and records every answer.
// repo and cache may be nil, in which case that step is skipped.
type PredictionUseCase struct {
	repo    PredictionRepository
	cache   Cache
	model   model.Client
	decoder *model.Decoder
	logger  *zap.Logger
	policy  backoff.Policy
	now     func() time.Time
}

type cachedPrediction struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	ClassIndex int       `json:"class_index"`
	Hash       string    `json:"sha1_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewPredictionUseCase constructs a new use case instance.
func NewPredictionUseCase(repo PredictionRepository, cache Cache, client model.Client, decoder *model.Decoder, logger *zap.Logger) *PredictionUseCase {
	return &PredictionUseCase{
		repo:    repo,
		cache:   cache,
		model:   client,
		decoder: decoder,
		logger:  logger.Named("prediction_usecase"),
		policy:  backoff.DefaultPolicy,
		now:     time.Now,
	}
}

// Predict classifies the image, reusing a cached answer for identical bytes.
func (uc *PredictionUseCase) Predict(ctx context.Context, filename string, image []byte) (*PredictionResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)
	started := uc.now()

	hash := sha1.Sum(image)
	hashHex := hex.EncodeToString(hash[:])
	cacheKey := "prediction:" + hashHex

	result, cached := uc.lookup(ctx, requestID, cacheKey)
	if !cached {
		scores, err := uc.model.Predict(ctx, requestID, image)
		if err != nil {
			wrapped := logging.NewOperationError("usecase.model_predict", requestID, err)
			opLogger.Error("model call failed", logging.ErrorFields(wrapped)...)
			return nil, wrapped
		}
		prediction, err := uc.decoder.Decode(scores)
		if err != nil {
			wrapped := logging.NewOperationError("usecase.decode_scores", requestID, err)
			opLogger.Error("failed to decode model output", zap.Error(wrapped), zap.Int("scores", len(scores)))
			return nil, wrapped
		}
		result = &PredictionResult{
			Label:      prediction.Label,
			Confidence: prediction.Confidence,
			ClassIndex: prediction.ClassIndex,
		}
		uc.store(ctx, requestID, cacheKey, hashHex, result)
	}
	result.RequestID = requestID
	result.Cached = cached

	latency := uc.now().Sub(started)
	if uc.repo != nil {
		log := &repository.PredictionLog{
			RequestID:  requestID,
			Filename:   filename,
			Label:      result.Label,
			ClassIndex: result.ClassIndex,
			Confidence: result.Confidence,
			SHA1Hash:   hashHex,
			Cached:     cached,
			LatencyMs:  latency.Milliseconds(),
			CreatedAt:  started.UTC(),
		}
		if err := uc.repo.SaveLog(ctx, log); err != nil {
			opLogger.Warn("failed to persist prediction log", zap.Error(err))
		}
	}

	opLogger.Info("prediction served",
		zap.String("label", result.Label),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("cached", cached),
		zap.Duration("latency", latency),
	)
	return result, nil
}

// GetPrediction loads a logged prediction by request id.
func (uc *PredictionUseCase) GetPrediction(ctx context.Context, requestID string) (*repository.PredictionLog, error) {
	if uc.repo == nil {
		return nil, ErrMetricsUnavailable
	}
	return uc.repo.FindByRequestID(ctx, requestID)
}

func (uc *PredictionUseCase) lookup(ctx context.Context, requestID, cacheKey string) (*PredictionResult, bool) {
	if uc.cache == nil {
		return nil, false
	}

	var raw string
	err := backoff.Do(ctx, uc.logger, uc.policy, "cache.get.prediction", requestID, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "usecase.predict", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var payload cachedPrediction
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		logging.WithOperation(uc.logger, "usecase.predict", requestID).Warn("failed to decode cached prediction", zap.Error(err))
		return nil, false
	}
	return &PredictionResult{
		Label:      payload.Label,
		Confidence: payload.Confidence,
		ClassIndex: payload.ClassIndex,
	}, true
}

func (uc *PredictionUseCase) store(ctx context.Context, requestID, cacheKey, hashHex string, result *PredictionResult) {
	if uc.cache == nil {
		return
	}

	serialized, err := json.Marshal(cachedPrediction{
		Label:      result.Label,
		Confidence: result.Confidence,
		ClassIndex: result.ClassIndex,
		Hash:       hashHex,
		CreatedAt:  uc.now().UTC(),
	})
	if err != nil {
		return
	}
	if err := backoff.Do(ctx, uc.logger, uc.policy, "cache.set.prediction", requestID, func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), CacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.predict", requestID).Warn("failed to cache prediction", zap.Error(err))
	}
}
