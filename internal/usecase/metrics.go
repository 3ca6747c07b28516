package usecase

import (
	"context"

	"github.com/example/freshcheck/internal/repository"
)

// MetricsSummary represents aggregated prediction insights.
type MetricsSummary struct {
	TotalRequests     int64                   `json:"total_requests"`
	CachedRequests    int64                   `json:"cached_requests"`
	CacheHitRate      float64                 `json:"cache_hit_rate"`
	AverageConfidence float64                 `json:"average_confidence"`
	AverageLatencyMs  float64                 `json:"average_latency_ms"`
	Labels            []repository.LabelCount `json:"labels"`
}

// GetMetricsSummary aggregates prediction metrics from persisted logs.
func (uc *PredictionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrMetricsUnavailable
	}

	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:     aggregation.TotalCount,
		CachedRequests:    aggregation.CachedCount,
		AverageConfidence: aggregation.AverageConfidence,
		AverageLatencyMs:  aggregation.AverageLatencyMs,
		Labels:            aggregation.LabelCounts,
	}
	if summary.Labels == nil {
		summary.Labels = []repository.LabelCount{}
	}

	if aggregation.TotalCount > 0 {
		summary.CacheHitRate = float64(aggregation.CachedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
