package changefeed

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pruner deletes change log rows older than a retention period on a cron schedule.
type Pruner struct {
	db        *sql.DB
	schedule  string
	retention time.Duration
	cron      *cron.Cron
	logger    *zap.Logger
	mu        sync.Mutex
	running   bool
}

// NewPruner validates schedule (standard cron syntax or descriptors such as "@hourly") and
// returns a stopped pruner.
func NewPruner(db *sql.DB, schedule string, retention time.Duration, logger *zap.Logger) (*Pruner, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("change retention must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{
		db:        db,
		schedule:  schedule,
		retention: retention,
		cron:      cron.New(),
		logger:    logger,
	}, nil
}

// Start schedules the prune job.
func (p *Pruner) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("pruner is already running")
	}
	_, err := p.cron.AddFunc(p.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Warn("change log prune failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule prune: %w", err)
	}
	p.cron.Start()
	p.running = true
	p.logger.Debug("change log pruner started",
		zap.String("schedule", p.schedule), zap.Duration("retention", p.retention))
	return nil
}

// Prune deletes rows older than the retention period and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	modifier := fmt.Sprintf("-%d seconds", int64(p.retention.Seconds()))
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM scenario_changes WHERE created_at < datetime('now', ?)`, modifier)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		p.logger.Info("pruned change log", zap.Int64("rows", n))
	}
	return n, nil
}

// Stop stops the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
}
