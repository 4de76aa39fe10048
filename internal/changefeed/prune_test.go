package changefeed

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPruner_DeletesOldRows(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	db := store.DB()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO scenario_changes (channel, payload, created_at) VALUES ('c', '{}', datetime('now', '-2 days'))`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO scenario_changes (channel, payload) VALUES ('c', '{}')`); err != nil {
		t.Fatal(err)
	}

	p, err := NewPruner(db, "@hourly", 24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	n, err := p.Prune(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
	var left int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenario_changes`).Scan(&left); err != nil {
		t.Fatal(err)
	}
	if left != 1 {
		t.Errorf("%d rows left, want 1", left)
	}
}

func TestPruner_Validation(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := NewPruner(store.DB(), "not a schedule", time.Hour, nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if _, err := NewPruner(store.DB(), "@daily", 0, nil); err == nil {
		t.Error("expected error for zero retention")
	}
}

func TestPruner_StartStop(t *testing.T) {
	store, _ := newTestStore(t)
	p, err := NewPruner(store.DB(), "*/5 * * * *", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err == nil {
		t.Error("second Start should fail")
	}
	p.Stop()
	p.Stop()
}
