package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/suggest/internal/changefeed"
	"github.com/hyperjump/suggest/internal/config"
	"github.com/hyperjump/suggest/internal/embedding"
	"github.com/hyperjump/suggest/internal/indexer"
	"github.com/hyperjump/suggest/internal/indexsync"
	"github.com/hyperjump/suggest/internal/search"
	"github.com/hyperjump/suggest/internal/storage"
	"github.com/hyperjump/suggest/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage      *storage.SQLiteStorage
	Embedder     embedding.Embedder
	VectorIndex  vector.VectorIndex
	Feed         changefeed.Feed
	Synchronizer *indexsync.Synchronizer
	Search       *search.Service
	Indexer      *indexer.Indexer
}

// Close releases every component. The feed goes first so listeners stop before the database closes.
func (c *Components) Close() {
	if c.Synchronizer != nil {
		c.Synchronizer.Stop()
	}
	if c.Feed != nil {
		_ = c.Feed.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
}

// feedMode selects the change feed backing the synchronizer.
type feedMode int

const (
	// feedSQLite follows the database change log; used by the long-running server.
	feedSQLite feedMode = iota
	// feedLocal is an in-process hub; one-shot commands only need the bulk load.
	feedLocal
)

func initializeComponents(cfg *config.Config, logger *zap.Logger, mode feedMode) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath, storage.WithChangeChannel(cfg.Sync.Channel))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Embedder = embedder
	if embedder.Dimensions() != cfg.Embedding.Dimensions {
		return nil, fmt.Errorf("embedder produces %d dimensions, config expects %d",
			embedder.Dimensions(), cfg.Embedding.Dimensions)
	}

	index, err := newVectorIndex(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.VectorIndex = index

	switch mode {
	case feedLocal:
		c.Feed = changefeed.NewHub(changefeed.WithHubLogger(logger))
	default:
		dbPath := cfg.Storage.DatabasePath
		c.Feed = changefeed.NewSQLiteFeed(store.DB(),
			changefeed.WithLogger(logger),
			changefeed.WithPollInterval(cfg.Sync.PollInterval),
			changefeed.WithPollRate(cfg.Sync.PollRate),
			changefeed.WithWatchFiles(dbPath, dbPath+"-wal"),
		)
	}

	c.Synchronizer = indexsync.New(store, index, embedder, c.Feed, indexsync.Options{
		Channel:         store.Channel(),
		PageSize:        cfg.Sync.PageSize,
		TrainSampleSize: cfg.Index.TrainSampleSize,
		RetryInitial:    cfg.Sync.RetryInitial,
		RetryMax:        cfg.Sync.RetryMax,
		RetryAttempts:   cfg.Sync.RetryAttempts,
		Seed:            cfg.Index.Seed,
	}, indexsync.WithLogger(logger))

	synchronizer := c.Synchronizer
	c.Search = search.NewService(store, embedder, index, &cfg.Search,
		search.WithLogger(logger),
		search.WithReadiness(func() bool { return synchronizer.State() == indexsync.StateLive }),
	)
	c.Indexer = indexer.NewIndexer(store, embedder, synchronizer, indexer.WithLogger(logger))

	ok = true
	return c, nil
}

// newEmbedder loads the ONNX model. When the model cannot be loaded and embedding.allow_mock is
// set, the deterministic mock embedder is used instead.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	onnxEmbedder, err := embedding.NewONNXEmbedder(embedding.ONNXOptions{
		ModelPath:   cfg.Embedding.ModelPath,
		LibraryPath: cfg.Embedding.LibraryPath,
		VocabPath:   cfg.Embedding.VocabPath,
		Dimensions:  cfg.Embedding.Dimensions,
		MaxTokens:   cfg.Embedding.MaxTokens,
		CacheSize:   cfg.Embedding.CacheSize,
	})
	if err == nil {
		return onnxEmbedder, nil
	}
	if !cfg.Embedding.AllowMock {
		return nil, fmt.Errorf("failed to load embedding model: %w", err)
	}
	logger.Warn("embedding model unavailable, using mock embedder",
		zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
	return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
}

// newVectorIndex builds the configured index and restores the saved snapshot if there is one.
// An unreadable snapshot is discarded; the bulk load rebuilds the index from the store.
func newVectorIndex(cfg *config.Config, logger *zap.Logger) (vector.VectorIndex, error) {
	opts := vector.IndexOptions{
		Type:       cfg.Index.Type,
		Dimensions: cfg.Embedding.Dimensions,
		NumLists:   cfg.Index.NumLists,
		NumProbes:  cfg.Index.NumProbes,
		Seed:       cfg.Index.Seed,
	}
	index, err := vector.NewVectorIndex(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	path := cfg.Storage.IndexPath
	if path == "" {
		return index, nil
	}
	if err := index.Load(path); err != nil {
		logger.Warn("discarding unreadable index snapshot", zap.String("path", path), zap.Error(err))
		_ = index.Close()
		return vector.NewVectorIndex(opts)
	}
	logger.Info("index snapshot loaded",
		zap.String("path", path), zap.Int("size", index.Size()), zap.Stringer("state", index.State()))
	return index, nil
}

// saveVectorIndex writes the index snapshot when a path is configured. Failures are logged only.
func saveVectorIndex(cfg *config.Config, index vector.VectorIndex, logger *zap.Logger) {
	path := cfg.Storage.IndexPath
	if path == "" || index == nil {
		return
	}
	if err := index.Save(path); err != nil {
		logger.Warn("vector index save failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("vector index saved", zap.String("path", path), zap.Int("size", index.Size()))
}

// warmIndex runs the synchronizer until its bulk load completes so one-shot commands search a
// populated index. The returned stop function ends the synchronizer.
func warmIndex(ctx context.Context, c *Components) (func(), error) {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Synchronizer.Run(ctx) }()
	select {
	case <-c.Synchronizer.Ready():
		return c.Synchronizer.Stop, nil
	case err := <-errCh:
		if err == nil {
			err = ctx.Err()
		}
		return func() {}, fmt.Errorf("index load failed: %w", err)
	}
}
