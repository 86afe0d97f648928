// Package persistence defines the storage collaborators the computation core
// hands results to. The core never depends on the concrete backend; memory,
// Redis, and Postgres implementations satisfy the same interfaces.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quantfolio/quantfolio/internal/domain"
)

// PortfolioStore persists named weight allocations.
type PortfolioStore interface {
	// Create inserts a new portfolio; fails if the id already exists.
	Create(ctx context.Context, p *domain.Portfolio) error

	// Get fetches a portfolio by id, returning a NOT_FOUND error when absent.
	Get(ctx context.Context, id string) (*domain.Portfolio, error)

	// Update replaces an existing portfolio.
	Update(ctx context.Context, p *domain.Portfolio) error

	// Delete removes a portfolio by id.
	Delete(ctx context.Context, id string) error

	// List returns all portfolios ordered by creation time.
	List(ctx context.Context) ([]*domain.Portfolio, error)
}

// StoredResult is the persisted envelope around one computation result.
type StoredResult struct {
	ID        string            `json:"id" db:"id"`
	Kind      domain.ResultKind `json:"kind" db:"kind"`
	Payload   json.RawMessage   `json:"payload" db:"payload"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// ResultStore is the opaque persistence sink for computation results.
type ResultStore interface {
	// Put stores a result payload under its id with a kind tag.
	Put(ctx context.Context, kind domain.ResultKind, id string, payload any) error

	// Get fetches a stored result by id, returning a NOT_FOUND error when
	// absent.
	Get(ctx context.Context, id string) (*StoredResult, error)
}

// Decode unmarshals the stored payload into out.
func (r *StoredResult) Decode(out any) error {
	return json.Unmarshal(r.Payload, out)
}
