// Package indexer stores new and edited scenarios together with their title embeddings and
// pushes them into the vector index without waiting for the change feed.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/suggest/internal/embedding"
	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/internal/storage"
)

// MaxTitleLength is the longest accepted title, in characters.
const MaxTitleLength = 500

// ErrInvalidInput is returned for scenarios that cannot be stored.
var ErrInvalidInput = errors.New("invalid scenario")

// RecordHook receives records right after they are committed.
type RecordHook interface {
	OnRecordCreated(ctx context.Context, id int64, title string, vec []float32) error
	OnRecordUpdated(ctx context.Context, id int64, title string, vec []float32) error
}

// Indexer writes scenarios to the store and warms the index.
type Indexer struct {
	storage  storage.Storage
	embedder embedding.Embedder
	hook     RecordHook
	logger   *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. hook may be nil, in which case new records reach the index
// only through the change feed.
func NewIndexer(store storage.Storage, embedder embedding.Embedder, hook RecordHook, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		storage:  store,
		embedder: embedder,
		hook:     hook,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func validateInput(input *models.ScenarioInput) error {
	input.Title = Preprocess(input.Title)
	input.Description = Preprocess(input.Description)
	if input.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(input.Title); n > MaxTitleLength {
		return fmt.Errorf("%w: title is %d characters, maximum is %d", ErrInvalidInput, n, MaxTitleLength)
	}
	return nil
}

// CreateScenario encodes the title, stores the record with its embedding and adds it to the index.
// Nothing is stored when encoding fails.
func (idx *Indexer) CreateScenario(ctx context.Context, input *models.ScenarioInput) (*models.Scenario, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	vec, err := embedding.Encode(ctx, idx.embedder, input.Title)
	if err != nil {
		return nil, err
	}
	sc := &models.Scenario{Title: input.Title, Description: input.Description}
	if err := idx.storage.CreateScenario(ctx, sc, vec); err != nil {
		return nil, fmt.Errorf("failed to store scenario: %w", err)
	}
	idx.logger.Debug("scenario created", zap.Int64("id", sc.ID), zap.String("title", sc.Title))

	if idx.hook != nil {
		if err := idx.hook.OnRecordCreated(ctx, sc.ID, sc.Title, vec); err != nil {
			// The change feed still carries the record.
			idx.logger.Warn("index warm-up failed", zap.Int64("id", sc.ID), zap.Error(err))
		}
	}
	return sc, nil
}

// UpdateScenario re-encodes the title and replaces the stored record and its indexed vector.
func (idx *Indexer) UpdateScenario(ctx context.Context, id int64, input *models.ScenarioInput) (*models.Scenario, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	vec, err := embedding.Encode(ctx, idx.embedder, input.Title)
	if err != nil {
		return nil, err
	}
	sc := &models.Scenario{ID: id, Title: input.Title, Description: input.Description}
	if err := idx.storage.UpdateScenario(ctx, sc, vec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update scenario: %w", err)
	}
	idx.logger.Debug("scenario updated", zap.Int64("id", sc.ID), zap.String("title", sc.Title))

	if idx.hook != nil {
		if err := idx.hook.OnRecordUpdated(ctx, sc.ID, sc.Title, vec); err != nil {
			idx.logger.Warn("index warm-up failed", zap.Int64("id", sc.ID), zap.Error(err))
		}
	}
	return idx.storage.GetScenario(ctx, id)
}
