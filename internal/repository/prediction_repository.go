package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcheck/internal/backoff"
)

// PredictionLog represents a persisted classification served by the gateway.
type PredictionLog struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Filename   string    `gorm:"column:filename;size:255"`
	Label      string    `gorm:"column:label;size:64;index"`
	ClassIndex int       `gorm:"column:class_index"`
	Confidence float64   `gorm:"column:confidence"`
	SHA1Hash   string    `gorm:"column:sha1_hash;size:40;index"`
	Cached     bool      `gorm:"column:cached"`
	LatencyMs  int64     `gorm:"column:latency_ms"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (PredictionLog) TableName() string {
	return "prediction_logs"
}

// LabelCount is the number of predictions per label.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// MetricsAggregation holds raw aggregate values over all prediction logs.
type MetricsAggregation struct {
	TotalCount        int64
	CachedCount       int64
	AverageConfidence float64
	AverageLatencyMs  float64
	LabelCounts       []LabelCount
}

// PredictionRepository provides persistence APIs for prediction logs.
type PredictionRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewPredictionRepository creates a new repository instance.
func NewPredictionRepository(db *gorm.DB, logger *zap.Logger) *PredictionRepository {
	return &PredictionRepository{
		db:             db,
		logger:         logger.Named("prediction_repository"),
		retryAttempts:  backoff.DefaultPolicy.Attempts,
		initialBackoff: backoff.DefaultPolicy.Initial,
		maxBackoff:     backoff.DefaultPolicy.Max,
	}
}

// AutoMigrate ensures the schema is available.
func (r *PredictionRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&PredictionLog{})
	})
}

// SaveLog persists a prediction log entry.
func (r *PredictionRepository) SaveLog(ctx context.Context, log *PredictionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID retrieves the prediction log for a request.
func (r *PredictionRepository) FindByRequestID(ctx context.Context, requestID string) (*PredictionLog, error) {
	var log PredictionLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics summarises all persisted predictions.
func (r *PredictionRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var totals struct {
		TotalCount        int64
		CachedCount       int64
		AverageConfidence float64
		AverageLatencyMs  float64
	}
	var labels []LabelCount

	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		db := r.db.WithContext(ctx).Model(&PredictionLog{})
		if err := db.Select(
			"COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) AS cached_count, " +
				"COALESCE(AVG(confidence), 0) AS average_confidence, " +
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms",
		).Scan(&totals).Error; err != nil {
			return err
		}
		labels = labels[:0]
		return r.db.WithContext(ctx).Model(&PredictionLog{}).
			Select("label, COUNT(*) AS count").
			Group("label").
			Order("label").
			Scan(&labels).Error
	})
	if err != nil {
		return nil, err
	}

	return &MetricsAggregation{
		TotalCount:        totals.TotalCount,
		CachedCount:       totals.CachedCount,
		AverageConfidence: totals.AverageConfidence,
		AverageLatencyMs:  totals.AverageLatencyMs,
		LabelCounts:       labels,
	}, nil
}

func (r *PredictionRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	policy := backoff.Policy{Attempts: r.retryAttempts, Initial: r.initialBackoff, Max: r.maxBackoff}
	return backoff.Do(ctx, r.logger, policy, operation, requestID, fn)
}
