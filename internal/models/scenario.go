// Package models defines core data structures for scenarios, change notifications, and suggestions.
package models

import "time"

// Scenario is a stored catalog record. ID is assigned by the store and never reused.
type Scenario struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ScenarioTitle is the projection read while bulk loading the vector index.
type ScenarioTitle struct {
	ID    int64  `json:"id" db:"id"`
	Title string `json:"title" db:"title"`
}

// ScenarioInput is the input for creating or updating a scenario.
type ScenarioInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
