// Package store persists message records and their extraction results.
// Two drivers implement the same interface: Postgres (pgxpool) for
// production and SQLite for local runs.
package store

import (
	"context"

	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
)

// ProcessedFilter specifies criteria for listing processed records.
type ProcessedFilter struct {
	Status identity.Status `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the resolution pipeline.
type Store interface {
	// Records
	SelectUnprocessed(ctx context.Context, limit int) ([]identity.MessageRecord, error)
	GetMessageRecord(ctx context.Context, recordID string) (*identity.MessageRecord, error)
	SaveExtractionResult(ctx context.Context, rec *identity.MessageRecord) error
	ListProcessed(ctx context.Context, filter ProcessedFilter) ([]identity.MessageRecord, error)
	UpdateDerivedFields(ctx context.Context, rec *identity.MessageRecord) error

	// Aggregates
	GenresForName(ctx context.Context, name string) ([]identity.Genre, error)
	CountByStatus(ctx context.Context) (map[identity.Status]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
