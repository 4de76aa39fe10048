package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/suggest/internal/models"
)

// DefaultChangeChannel is the channel name written by the change log triggers.
const DefaultChangeChannel = "scenario_changes"

// maxBatchIDs keeps IN lists under SQLite's host parameter limit.
const maxBatchIDs = 500

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db      *sql.DB
	channel string
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithChangeChannel sets the channel name recorded by the change log triggers.
func WithChangeChannel(channel string) Option {
	return func(s *SQLiteStorage) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &SQLiteStorage{db: db, channel: DefaultChangeChannel}
	for _, opt := range opts {
		opt(s)
	}
	if err := initSchema(db, s.channel); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func initSchema(db *sql.DB, channel string) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenarios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		embedding TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scenario_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		channel TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scenario_changes_channel ON scenario_changes(channel, seq);
	CREATE INDEX IF NOT EXISTS idx_scenario_changes_created_at ON scenario_changes(created_at);

	DROP TRIGGER IF EXISTS scenarios_notify_insert;
	DROP TRIGGER IF EXISTS scenarios_notify_update;
	DROP TRIGGER IF EXISTS scenarios_notify_delete;

	CREATE TRIGGER scenarios_notify_insert AFTER INSERT ON scenarios
	BEGIN
		INSERT INTO scenario_changes (channel, payload) VALUES (@channel,
			json_object('operation', 'INSERT', 'id', NEW.id, 'title', NEW.title, 'embedding', json(NEW.embedding)));
	END;

	CREATE TRIGGER scenarios_notify_update AFTER UPDATE OF title, embedding ON scenarios
	BEGIN
		INSERT INTO scenario_changes (channel, payload) VALUES (@channel,
			json_object('operation', 'UPDATE', 'id', NEW.id, 'title', NEW.title, 'embedding', json(NEW.embedding)));
	END;

	CREATE TRIGGER scenarios_notify_delete AFTER DELETE ON scenarios
	BEGIN
		INSERT INTO scenario_changes (channel, payload) VALUES (@channel,
			json_object('operation', 'DELETE', 'id', OLD.id, 'title', OLD.title));
	END;
	`
	// Trigger bodies cannot take bound parameters, so the channel is inlined as a literal.
	literal := "'" + strings.ReplaceAll(channel, "'", "''") + "'"
	_, err := db.Exec(strings.ReplaceAll(schema, "@channel", literal))
	return err
}

func marshalEmbedding(embedding []float32) (any, error) {
	if embedding == nil {
		return nil, nil
	}
	b, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return string(b), nil
}

// CreateScenario inserts a scenario and its title embedding.
func (s *SQLiteStorage) CreateScenario(ctx context.Context, sc *models.Scenario, embedding []float32) error {
	embeddingJSON, err := marshalEmbedding(embedding)
	if err != nil {
		return err
	}

	now := time.Now()
	sc.CreatedAt = now
	sc.UpdatedAt = now

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO scenarios (title, description, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sc.Title, sc.Description, embeddingJSON, sc.CreatedAt, sc.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	sc.ID = id
	return nil
}

// GetScenario returns a scenario by ID.
func (s *SQLiteStorage) GetScenario(ctx context.Context, id int64) (*models.Scenario, error) {
	var sc models.Scenario
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, created_at, updated_at
		 FROM scenarios WHERE id = ?`, id,
	).Scan(&sc.ID, &sc.Title, &sc.Description, &sc.CreatedAt, &sc.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// GetScenarioEmbedding returns the stored title embedding of a scenario, or nil if none was stored.
func (s *SQLiteStorage) GetScenarioEmbedding(ctx context.Context, id int64) ([]float32, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM scenarios WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(raw.String), &embedding); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	return embedding, nil
}

// UpdateScenario updates an existing scenario.
func (s *SQLiteStorage) UpdateScenario(ctx context.Context, sc *models.Scenario, embedding []float32) error {
	embeddingJSON, err := marshalEmbedding(embedding)
	if err != nil {
		return err
	}

	sc.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx,
		`UPDATE scenarios SET title = ?, description = ?, embedding = ?, updated_at = ?
		 WHERE id = ?`,
		sc.Title, sc.Description, embeddingJSON, sc.UpdatedAt, sc.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, sc.ID)
	}
	return nil
}

// DeleteScenario removes a scenario by ID.
func (s *SQLiteStorage) DeleteScenario(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// ListScenarioTitlesAfter returns scenario titles with id > afterID ordered by ID.
func (s *SQLiteStorage) ListScenarioTitlesAfter(ctx context.Context, afterID int64, limit int) ([]*models.ScenarioTitle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title FROM scenarios WHERE id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanTitles(rows, limit)
}

func scanTitles(rows *sql.Rows, limit int) ([]*models.ScenarioTitle, error) {
	defer rows.Close()
	titles := make([]*models.ScenarioTitle, 0, limit)
	for rows.Next() {
		var t models.ScenarioTitle
		if err := rows.Scan(&t.ID, &t.Title); err != nil {
			return nil, err
		}
		titles = append(titles, &t)
	}
	return titles, rows.Err()
}

// GetScenariosByIDs returns the scenarios that exist among ids.
func (s *SQLiteStorage) GetScenariosByIDs(ctx context.Context, ids []int64) ([]*models.Scenario, error) {
	scenarios := make([]*models.Scenario, 0, len(ids))
	for start := 0; start < len(ids); start += maxBatchIDs {
		end := min(start+maxBatchIDs, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, title, description, created_at, updated_at
			 FROM scenarios WHERE id IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var sc models.Scenario
			if err := rows.Scan(&sc.ID, &sc.Title, &sc.Description, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
				rows.Close()
				return nil, err
			}
			scenarios = append(scenarios, &sc)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return scenarios, nil
}

// CountScenarios returns the total number of scenarios.
func (s *SQLiteStorage) CountScenarios(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenarios`).Scan(&count)
	return count, err
}

// Channel returns the change log channel name written by the triggers.
func (s *SQLiteStorage) Channel() string {
	return s.channel
}

// DB returns the underlying database handle.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
