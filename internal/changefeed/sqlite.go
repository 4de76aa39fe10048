package changefeed

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/suggest/internal/watcher"
)

const (
	defaultPollInterval = time.Second
	defaultPollRate     = 20 // polls per second across all listeners
	defaultBatchSize    = 100
	defaultListenBuffer = 64
)

// SQLiteFeed reads the scenario_changes table written by the store's triggers. Each listener
// keeps its own cursor on seq, polls on a fixed interval and is woken early when the database
// files change. Delivery blocks rather than drops: rows stay in the table until pruned.
type SQLiteFeed struct {
	db           *sql.DB
	pollInterval time.Duration
	batchSize    int
	limiter      *rate.Limiter
	watchFiles   []string
	watcher      *watcher.Watcher
	logger       *zap.Logger

	mu      sync.Mutex
	wakers  map[string]chan struct{}
	closed  bool
	started bool
}

// SQLiteOption configures a SQLiteFeed.
type SQLiteOption func(*SQLiteFeed)

// WithLogger sets the feed logger.
func WithLogger(l *zap.Logger) SQLiteOption {
	return func(f *SQLiteFeed) { f.logger = l }
}

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(f *SQLiteFeed) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithPollRate caps the number of change log queries per second across all listeners.
func WithPollRate(perSecond float64) SQLiteOption {
	return func(f *SQLiteFeed) {
		if perSecond > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithBatchSize sets how many rows one poll reads.
func WithBatchSize(n int) SQLiteOption {
	return func(f *SQLiteFeed) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithWatchFiles makes Start watch the given files (the database and its -wal file) and wake
// listeners when they are written.
func WithWatchFiles(paths ...string) SQLiteOption {
	return func(f *SQLiteFeed) { f.watchFiles = append(f.watchFiles, paths...) }
}

// NewSQLiteFeed creates a feed over db. The scenario_changes table must already exist.
func NewSQLiteFeed(db *sql.DB, opts ...SQLiteOption) *SQLiteFeed {
	f := &SQLiteFeed{
		db:           db,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		limiter:      rate.NewLimiter(rate.Limit(defaultPollRate), 1),
		wakers:       make(map[string]chan struct{}),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start begins watching the configured database files. Without watch files listeners rely on
// polling and Notify.
func (f *SQLiteFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.started || len(f.watchFiles) == 0 {
		f.started = true
		return nil
	}
	w := watcher.NewWatcher(f.watchFiles, f.Notify, watcher.WithLogger(f.logger))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watch database files: %w", err)
	}
	f.watcher = w
	f.started = true
	return nil
}

// Notify wakes every listener so it polls now instead of at the next interval.
func (f *SQLiteFeed) Notify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, wake := range f.wakers {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// Listen subscribes to channel starting after the newest row currently in the log.
func (f *SQLiteFeed) Listen(ctx context.Context, channel string) (Listener, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	var cursor int64
	err := f.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM scenario_changes WHERE channel = ?`, channel,
	).Scan(&cursor)
	if err != nil {
		return nil, fmt.Errorf("read change log position: %w", err)
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &sqliteListener{
		id:      uuid.NewString(),
		channel: channel,
		cursor:  cursor,
		ch:      make(chan []byte, defaultListenBuffer),
		wake:    make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
		feed:    f,
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	f.wakers[l.id] = l.wake
	f.mu.Unlock()

	f.logger.Debug("change feed listener started",
		zap.String("channel", channel), zap.String("listener", l.id), zap.Int64("cursor", cursor))
	go l.run(lctx)
	return l, nil
}

func (f *SQLiteFeed) unregister(id string) {
	f.mu.Lock()
	delete(f.wakers, id)
	f.mu.Unlock()
}

// poll reads the next batch of rows after cursor.
func (f *SQLiteFeed) poll(ctx context.Context, channel string, cursor int64) ([]changeRow, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := f.db.QueryContext(ctx,
		`SELECT seq, payload FROM scenario_changes WHERE channel = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
		channel, cursor, f.batchSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []changeRow
	for rows.Next() {
		var r changeRow
		if err := rows.Scan(&r.seq, &r.payload); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close stops the file watcher. Open listeners keep running until closed or their context ends.
func (f *SQLiteFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	w := f.watcher
	f.watcher = nil
	f.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	return nil
}

type changeRow struct {
	seq     int64
	payload string
}

type sqliteListener struct {
	id      string
	channel string
	cursor  int64
	ch      chan []byte
	wake    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	feed    *SQLiteFeed
}

func (l *sqliteListener) ID() string       { return l.id }
func (l *sqliteListener) C() <-chan []byte { return l.ch }

// Close stops the listener and waits for its goroutine to exit.
func (l *sqliteListener) Close() error {
	l.cancel()
	<-l.done
	return nil
}

func (l *sqliteListener) run(ctx context.Context) {
	defer close(l.done)
	defer close(l.ch)
	defer l.feed.unregister(l.id)

	ticker := time.NewTicker(l.feed.pollInterval)
	defer ticker.Stop()
	logger := l.feed.logger.With(zap.String("listener", l.id), zap.String("channel", l.channel))

	for {
		rows, err := l.feed.poll(ctx, l.channel, l.cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("change log poll failed", zap.Error(err))
		}
		for _, r := range rows {
			select {
			case l.ch <- []byte(r.payload):
				l.cursor = r.seq
			case <-ctx.Done():
				return
			}
		}
		if err == nil && len(rows) == l.feed.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-l.wake:
		}
	}
}
