// Package storage defines the durable scenario store consumed by the index synchronizer and search.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hyperjump/suggest/internal/models"
)

// ErrNotFound is returned when a scenario does not exist.
var ErrNotFound = errors.New("scenario not found")

// Storage defines scenario persistence operations.
type Storage interface {
	// CreateScenario inserts s with its title embedding and sets s.ID and timestamps.
	CreateScenario(ctx context.Context, s *models.Scenario, embedding []float32) error
	GetScenario(ctx context.Context, id int64) (*models.Scenario, error)
	// UpdateScenario rewrites title, description and embedding of an existing scenario.
	UpdateScenario(ctx context.Context, s *models.Scenario, embedding []float32) error
	DeleteScenario(ctx context.Context, id int64) error

	// ListScenarioTitlesAfter returns up to limit (id, title) pairs with id > afterID in
	// ascending ID order. Deleting rows between calls does not shift later pages.
	ListScenarioTitlesAfter(ctx context.Context, afterID int64, limit int) ([]*models.ScenarioTitle, error)
	// GetScenariosByIDs fetches the given scenarios in one round trip. Missing IDs are
	// omitted and the result order is unspecified.
	GetScenariosByIDs(ctx context.Context, ids []int64) ([]*models.Scenario, error)

	CountScenarios(ctx context.Context) (int64, error)

	// DB exposes the underlying handle for the change log reader.
	DB() *sql.DB
	Close() error
}
