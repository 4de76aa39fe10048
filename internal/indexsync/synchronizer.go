package indexsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/suggest/internal/changefeed"
	"github.com/hyperjump/suggest/internal/embedding"
	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/internal/storage"
	"github.com/hyperjump/suggest/internal/vector"
)

// ErrAlreadyStarted is returned when Run is called more than once.
var ErrAlreadyStarted = errors.New("synchronizer already started")

// Options tunes the bulk load and retry behaviour.
type Options struct {
	Channel         string
	PageSize        int
	TrainSampleSize int
	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryAttempts   int
	Seed            int64
}

func (o Options) withDefaults() Options {
	if o.Channel == "" {
		o.Channel = storage.DefaultChangeChannel
	}
	if o.PageSize <= 0 {
		o.PageSize = 200
	}
	if o.TrainSampleSize <= 0 {
		o.TrainSampleSize = 5000
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = 500 * time.Millisecond
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 30 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 5
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the synchronizer logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// Synchronizer populates a VectorIndex from the store and then follows the change feed.
// The feed is subscribed before the bulk load starts, so changes committed during the load
// are applied afterwards instead of being lost.
type Synchronizer struct {
	store    storage.Storage
	index    vector.VectorIndex
	embedder embedding.Embedder
	feed     changefeed.Feed
	opts     Options
	logger   *zap.Logger

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	loaded  atomic.Int64
	skipped atomic.Int64
	applied atomic.Int64
	dropped atomic.Int64
	ignored atomic.Int64
}

// New creates a synchronizer in StateNotStarted.
func New(store storage.Storage, index vector.VectorIndex, embedder embedding.Embedder, feed changefeed.Feed, opts Options, options ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		index:    index,
		embedder: embedder,
		feed:     feed,
		opts:     opts.withDefaults(),
		logger:   zap.NewNop(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	return State(s.state.Load())
}

func (s *Synchronizer) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Info("index synchronizer state", zap.Stringer("state", st))
}

// Ready is closed when the bulk load has finished and live updates are being applied.
func (s *Synchronizer) Ready() <-chan struct{} {
	return s.ready
}

// Stats returns a snapshot of the counters.
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Loaded:  s.loaded.Load(),
		Skipped: s.skipped.Load(),
		Applied: s.applied.Load(),
		Dropped: s.dropped.Load(),
		Ignored: s.ignored.Load(),
	}
}

// Run subscribes to the change feed, bulk loads the store into the index and then applies
// notifications until ctx is cancelled or Stop is called. It returns nil on a requested stop
// and an error when the subscription or the bulk load fails.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()
	defer s.setState(StateStopped)

	listener, err := s.feed.Listen(ctx, s.opts.Channel)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.opts.Channel, err)
	}
	defer listener.Close()

	s.setState(StateBulkLoading)
	start := time.Now()
	if err := s.bulkLoad(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("bulk load: %w", err)
	}
	s.logger.Info("bulk load complete",
		zap.Int64("loaded", s.loaded.Load()),
		zap.Int64("skipped", s.skipped.Load()),
		zap.Int("index_size", s.index.Size()),
		zap.Duration("elapsed", time.Since(start)))

	s.setState(StateLive)
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-listener.C():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("change feed listener %s closed", listener.ID())
			}
			s.apply(ctx, payload)
		}
	}
}

// Stop cancels Run and waits for it to return. Safe to call before or without Run.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	started, cancel := s.started, s.cancel
	s.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-s.done
}

func (s *Synchronizer) bulkLoad(ctx context.Context) error {
	sample := newReservoir(s.opts.TrainSampleSize, s.opts.Seed)
	var afterID int64
	for {
		page, err := s.fetchPage(ctx, afterID)
		if err != nil {
			return err
		}
		s.indexPage(ctx, page, sample)
		s.logger.Debug("bulk load page", zap.Int64("after_id", afterID), zap.Int("records", len(page)))
		if len(page) < s.opts.PageSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	if s.index.State() == vector.StateUntrained {
		if err := s.index.Train(ctx, sample.items); err != nil && !errors.Is(err, vector.ErrAlreadyTrained) {
			return fmt.Errorf("train index: %w", err)
		}
		s.logger.Info("index trained", zap.Int("sample", len(sample.items)))
	}
	return nil
}

// fetchPage reads the page of records after afterID, retrying store errors with capped
// exponential backoff. Pages are keyed by ID so rows deleted mid-load do not shift later pages.
func (s *Synchronizer) fetchPage(ctx context.Context, afterID int64) ([]*models.ScenarioTitle, error) {
	backoff := s.opts.RetryInitial
	var lastErr error
	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		page, err := s.store.ListScenarioTitlesAfter(ctx, afterID, s.opts.PageSize)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == s.opts.RetryAttempts {
			break
		}
		s.logger.Warn("page fetch failed, retrying",
			zap.Int64("after_id", afterID), zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.opts.RetryMax)
	}
	return nil, fmt.Errorf("fetch page after id %d after %d attempts: %w", afterID, s.opts.RetryAttempts, lastErr)
}

func (s *Synchronizer) indexPage(ctx context.Context, page []*models.ScenarioTitle, sample *reservoir) {
	if len(page) == 0 {
		return
	}
	dim := s.embedder.Dimensions()
	titles := make([]string, len(page))
	for i, rec := range page {
		titles[i] = rec.Title
	}
	vecs, err := s.embedder.EmbedBatch(ctx, titles)
	if err != nil || len(vecs) != len(page) {
		s.logger.Debug("batch encoding failed, encoding records one by one", zap.Error(err))
		vecs = make([][]float32, len(page))
		for i, rec := range page {
			vec, err := embedding.Encode(ctx, s.embedder, rec.Title)
			if err != nil {
				s.logger.Warn("skipping record: encoding failed", zap.Int64("id", rec.ID), zap.Error(err))
				continue
			}
			vecs[i] = vec
		}
	}

	for i, rec := range page {
		vec := vecs[i]
		if vec == nil {
			s.skipped.Add(1)
			continue
		}
		if err := embedding.Validate(vec, dim); err != nil {
			s.logger.Warn("skipping record: invalid embedding", zap.Int64("id", rec.ID), zap.Error(err))
			s.skipped.Add(1)
			continue
		}
		if err := s.index.Add(ctx, rec.ID, vec); err != nil {
			s.logger.Warn("skipping record: index add failed", zap.Int64("id", rec.ID), zap.Error(err))
			s.skipped.Add(1)
			continue
		}
		sample.offer(vec)
		s.loaded.Add(1)
	}
}

func (s *Synchronizer) apply(ctx context.Context, payload []byte) {
	n, err := DecodeNotification(payload, s.index.Dimensions())
	if err != nil {
		s.dropped.Add(1)
		s.logger.Warn("dropping change notification", zap.Error(err), zap.ByteString("payload", truncate(payload, 256)))
		return
	}
	if n.Operation == models.OperationDelete {
		s.ignored.Add(1)
		s.logger.Info("ignoring delete notification; record stays searchable until restart", zap.Int64("id", n.ID))
		return
	}
	if err := s.index.Add(ctx, n.ID, n.Embedding); err != nil {
		s.dropped.Add(1)
		s.logger.Warn("dropping change notification: index add failed", zap.Int64("id", n.ID), zap.Error(err))
		return
	}
	s.applied.Add(1)
	s.logger.Debug("applied change notification", zap.String("operation", n.Operation), zap.Int64("id", n.ID))
}

// OnRecordCreated adds a freshly stored record to the index without waiting for the feed.
func (s *Synchronizer) OnRecordCreated(ctx context.Context, id int64, title string, vec []float32) error {
	return s.addRecord(ctx, "created", id, title, vec)
}

// OnRecordUpdated replaces the indexed vector of an updated record.
func (s *Synchronizer) OnRecordUpdated(ctx context.Context, id int64, title string, vec []float32) error {
	return s.addRecord(ctx, "updated", id, title, vec)
}

func (s *Synchronizer) addRecord(ctx context.Context, event string, id int64, title string, vec []float32) error {
	if err := s.index.Add(ctx, id, vec); err != nil {
		s.logger.Warn("record hook failed", zap.String("event", event), zap.Int64("id", id), zap.Error(err))
		return err
	}
	s.applied.Add(1)
	s.logger.Debug("record hook applied", zap.String("event", event), zap.Int64("id", id), zap.String("title", title))
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
