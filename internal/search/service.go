// Package search answers free-text similarity queries against the scenario index.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/suggest/internal/config"
	"github.com/hyperjump/suggest/internal/embedding"
	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/internal/storage"
	"github.com/hyperjump/suggest/internal/vector"
)

// ErrStoreUnavailable wraps failures to hydrate search hits from the store.
var ErrStoreUnavailable = errors.New("scenario store unavailable")

// Service runs suggest queries: encode, search the index, hydrate from the store.
type Service struct {
	store    storage.Storage
	embedder embedding.Embedder
	index    vector.VectorIndex
	config   *config.SearchConfig
	ready    func() bool
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithReadiness reports whether the index has finished its bulk load. Responses produced
// while it returns false are marked partial.
func WithReadiness(ready func() bool) Option {
	return func(s *Service) { s.ready = ready }
}

// NewService creates a search service with the given dependencies.
func NewService(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.VectorIndex,
	cfg *config.SearchConfig,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		embedder: embedder,
		index:    index,
		config:   cfg,
		ready:    func() bool { return true },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest returns up to k scenarios most similar to query. k <= 0 selects the default limit
// and values above the maximum are clamped. Hits whose record no longer exists are dropped.
func (s *Service) Suggest(ctx context.Context, query string, k int) (*models.SuggestResponse, error) {
	startTime := time.Now()
	q := &models.SuggestQuery{Query: query, K: k}
	if err := ProcessQuery(q, s.config); err != nil {
		return nil, err
	}
	partial := !s.ready()

	vec, err := embedding.Encode(ctx, s.embedder, q.Query)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Search(ctx, vec, q.K)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	response := &models.SuggestResponse{
		Query:   q.Query,
		Results: make([]*models.Suggestion, 0, len(hits)),
		Partial: partial,
	}
	if len(hits) == 0 {
		response.QueryTime = time.Since(startTime).Milliseconds()
		return response, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	scenarios, err := s.store.GetScenariosByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	byID := make(map[int64]*models.Scenario, len(scenarios))
	for _, sc := range scenarios {
		byID[sc.ID] = sc
	}

	for _, h := range hits {
		sc, ok := byID[h.ID]
		if !ok {
			s.logger.Debug("dropping hit missing from store", zap.Int64("id", h.ID))
			continue
		}
		response.Results = append(response.Results, &models.Suggestion{
			ID:          sc.ID,
			Title:       sc.Title,
			Description: sc.Description,
			Similarity:  h.Score,
		})
	}
	sort.SliceStable(response.Results, func(i, j int) bool {
		return response.Results[i].Similarity > response.Results[j].Similarity
	})

	response.QueryTime = time.Since(startTime).Milliseconds()
	s.logger.Debug("suggest",
		zap.String("query", q.Query), zap.Int("k", q.K), zap.Int("results", len(response.Results)),
		zap.Bool("partial", partial), zap.Int64("query_time_ms", response.QueryTime))
	return response, nil
}

// Get returns a scenario by ID or an error wrapping storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*models.Scenario, error) {
	sc, err := s.store.GetScenario(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sc, nil
}
