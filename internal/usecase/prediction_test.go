package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/freshcheck/internal/logging"
	"github.com/example/freshcheck/internal/model"
	"github.com/example/freshcheck/internal/repository"
)

type stubRepository struct {
	savedLogs   []*repository.PredictionLog
	saveErr     error
	findLog     *repository.PredictionLog
	findErr     error
	aggregation *repository.MetricsAggregation
	aggErr      error
}

func (s *stubRepository) SaveLog(ctx context.Context, log *repository.PredictionLog) error {
	s.savedLogs = append(s.savedLogs, log)
	return s.saveErr
}

func (s *stubRepository) FindByRequestID(ctx context.Context, requestID string) (*repository.PredictionLog, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.findLog, nil
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	if s.aggErr != nil {
		return nil, s.aggErr
	}
	return s.aggregation, nil
}

type stubCache struct {
	values  map[string]string
	setErrs []error
	getErrs []error
	setKeys []string
	getKeys []string
	ttls    []time.Duration
}

func newStubCache() *stubCache {
	return &stubCache{values: map[string]string{}}
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	s.ttls = append(s.ttls, expiration)
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		if err != nil {
			return err
		}
	}
	s.values[key] = value.(string)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		if err != nil {
			return "", err
		}
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

type stubModel struct {
	scores []float64
	err    error
	calls  int
}

func (s *stubModel) Predict(ctx context.Context, requestID string, image []byte) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func newTestUseCase(t *testing.T, repo PredictionRepository, cache Cache, client model.Client) *PredictionUseCase {
	t.Helper()
	decoder, err := model.NewDecoder([]string{"Busuk", "Segar"})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	uc := NewPredictionUseCase(repo, cache, client, decoder, zap.NewNop())
	uc.policy.Initial = time.Millisecond
	uc.policy.Max = 2 * time.Millisecond
	return uc
}

func TestPredictDecodesAndLogs(t *testing.T) {
	repo := &stubRepository{}
	cache := newStubCache()
	client := &stubModel{scores: []float64{0.07, 0.93}}
	uc := newTestUseCase(t, repo, cache, client)

	result, err := uc.Predict(context.Background(), "apple.jpg", []byte("image"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Label != "Segar" || result.ClassIndex != 1 || result.Confidence != 0.93 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.RequestID == "" || result.Cached {
		t.Fatalf("unexpected metadata %+v", result)
	}
	if len(repo.savedLogs) != 1 {
		t.Fatalf("expected one log, got %d", len(repo.savedLogs))
	}
	log := repo.savedLogs[0]
	if log.Filename != "apple.jpg" || log.RequestID != result.RequestID || log.SHA1Hash == "" || log.Cached {
		t.Fatalf("unexpected log %+v", log)
	}
	if len(cache.ttls) != 1 || cache.ttls[0] != CacheTTL {
		t.Fatalf("expected one cache write with ttl %v, got %v", CacheTTL, cache.ttls)
	}
}

func TestPredictServesIdenticalBytesFromCache(t *testing.T) {
	repo := &stubRepository{}
	cache := newStubCache()
	client := &stubModel{scores: []float64{0.8}}
	uc := newTestUseCase(t, repo, cache, client)

	first, err := uc.Predict(context.Background(), "a.jpg", []byte("same"))
	if err != nil {
		t.Fatalf("first predict: %v", err)
	}
	second, err := uc.Predict(context.Background(), "b.jpg", []byte("same"))
	if err != nil {
		t.Fatalf("second predict: %v", err)
	}

	if client.calls != 1 {
		t.Fatalf("expected one model call, got %d", client.calls)
	}
	if !second.Cached || second.Label != first.Label || second.Confidence != first.Confidence {
		t.Fatalf("expected cached copy of %+v, got %+v", first, second)
	}
	if first.RequestID == second.RequestID {
		t.Fatal("expected distinct request ids")
	}
	if len(repo.savedLogs) != 2 || !repo.savedLogs[1].Cached {
		t.Fatalf("expected second log to be flagged cached, got %+v", repo.savedLogs)
	}
}

func TestPredictRetriesTransientCacheRead(t *testing.T) {
	cache := newStubCache()
	cache.getErrs = []error{transientRedisError{}}
	client := &stubModel{scores: []float64{0.2}}
	uc := newTestUseCase(t, nil, cache, client)

	result, err := uc.Predict(context.Background(), "x.jpg", []byte("image"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(cache.getKeys) != 2 || cache.getKeys[0] != cache.getKeys[1] {
		t.Fatalf("expected retried read of the same key, got %v", cache.getKeys)
	}
	if result.Label != "Segar" || result.ClassIndex != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestPredictToleratesCacheAndLogFailures(t *testing.T) {
	repo := &stubRepository{saveErr: errors.New("db down")}
	cache := newStubCache()
	cache.getErrs = []error{errors.New("connection refused")}
	cache.setErrs = []error{errors.New("connection refused")}
	client := &stubModel{scores: []float64{0.9, 0.1}}
	uc := newTestUseCase(t, repo, cache, client)

	result, err := uc.Predict(context.Background(), "x.jpg", []byte("image"))
	if err != nil {
		t.Fatalf("expected success despite infrastructure failures, got %v", err)
	}
	if result.Label != "Busuk" {
		t.Fatalf("unexpected label %q", result.Label)
	}
}

func TestPredictIgnoresCorruptCacheEntry(t *testing.T) {
	cache := newStubCache()
	client := &stubModel{scores: []float64{0.1, 0.9}}
	uc := newTestUseCase(t, nil, cache, client)

	if _, err := uc.Predict(context.Background(), "x.jpg", []byte("image")); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	for key := range cache.values {
		cache.values[key] = "{not json"
	}

	if _, err := uc.Predict(context.Background(), "x.jpg", []byte("image")); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected model to be called again, got %d calls", client.calls)
	}
}

func TestPredictReturnsOperationErrorOnModelFailure(t *testing.T) {
	repo := &stubRepository{}
	uc := newTestUseCase(t, repo, nil, &stubModel{err: errors.New("model unavailable")})

	_, err := uc.Predict(context.Background(), "x.jpg", []byte("image"))
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "usecase.model_predict" {
		t.Fatalf("unexpected operation %s", opErr.Operation)
	}
	if len(repo.savedLogs) != 0 {
		t.Fatal("failed predictions must not be logged")
	}
}

func TestPredictRejectsEmptyModelOutput(t *testing.T) {
	uc := newTestUseCase(t, nil, nil, &stubModel{scores: nil})

	_, err := uc.Predict(context.Background(), "x.jpg", []byte("image"))
	if !errors.Is(err, model.ErrNoScores) {
		t.Fatalf("expected ErrNoScores, got %v", err)
	}
}

func TestCachedPayloadShape(t *testing.T) {
	cache := newStubCache()
	uc := newTestUseCase(t, nil, cache, &stubModel{scores: []float64{0.3, 0.7}})
	if _, err := uc.Predict(context.Background(), "x.jpg", []byte("image")); err != nil {
		t.Fatalf("predict: %v", err)
	}

	var payload map[string]interface{}
	for _, raw := range cache.values {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			t.Fatalf("cached value is not json: %v", err)
		}
	}
	if payload["label"] != "Segar" || payload["sha1_hash"] == "" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestGetMetricsSummary(t *testing.T) {
	repo := &stubRepository{aggregation: &repository.MetricsAggregation{
		TotalCount:        4,
		CachedCount:       1,
		AverageConfidence: 0.8,
		AverageLatencyMs:  12,
		LabelCounts:       []repository.LabelCount{{Label: "Busuk", Count: 1}, {Label: "Segar", Count: 3}},
	}}
	uc := newTestUseCase(t, repo, nil, &stubModel{})

	summary, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if summary.CacheHitRate != 0.25 || summary.TotalRequests != 4 || len(summary.Labels) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestGetMetricsSummaryWithoutRepository(t *testing.T) {
	uc := newTestUseCase(t, nil, nil, &stubModel{})

	if _, err := uc.GetMetricsSummary(context.Background()); !errors.Is(err, ErrMetricsUnavailable) {
		t.Fatalf("expected ErrMetricsUnavailable, got %v", err)
	}
}
