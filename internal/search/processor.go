package search

import (
	"github.com/hyperjump/suggest/internal/config"
	"github.com/hyperjump/suggest/internal/models"
)

// ProcessQuery validates the query and applies the configured result limits.
func ProcessQuery(query *models.SuggestQuery, cfg *config.SearchConfig) error {
	return query.Validate(cfg.DefaultLimit, cfg.MaxLimit)
}
