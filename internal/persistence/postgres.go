package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/quantfolio/quantfolio/internal/domain"
)

// PostgresStore persists portfolios and results in Postgres. Expected schema:
//
//	CREATE TABLE portfolios (
//	    id          TEXT PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    description TEXT NOT NULL DEFAULT '',
//	    assets      JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE computation_results (
//	    id         TEXT PRIMARY KEY,
//	    kind       TEXT NOT NULL,
//	    payload    JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore wraps an open sqlx handle. Each statement runs under the
// given timeout.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

// OpenPostgres connects and pings a Postgres instance.
func OpenPostgres(dsn string, timeout time.Duration) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStore(db, timeout), nil
}

type portfolioRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Assets      []byte    `db:"assets"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r portfolioRow) toDomain() (*domain.Portfolio, error) {
	var assets domain.WeightVector
	if err := json.Unmarshal(r.Assets, &assets); err != nil {
		return nil, fmt.Errorf("decode assets for portfolio %s: %w", r.ID, err)
	}
	return &domain.Portfolio{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Assets:      assets,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, p *domain.Portfolio) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	assets, err := json.Marshal(p.Assets)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO portfolios (id, name, description, assets, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Description, assets, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert portfolio: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Portfolio, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row portfolioRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, description, assets, created_at, updated_at
		FROM portfolios WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("portfolio", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select portfolio: %w", err)
	}
	return row.toDomain()
}

func (s *PostgresStore) Update(ctx context.Context, p *domain.Portfolio) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	assets, err := json.Marshal(p.Assets)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE portfolios
		SET name = $2, description = $3, assets = $4, updated_at = $5
		WHERE id = $1`,
		p.ID, p.Name, p.Description, assets, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("portfolio", p.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete portfolio: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete portfolio: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("portfolio", id)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*domain.Portfolio, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []portfolioRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, description, assets, created_at, updated_at
		FROM portfolios ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	out := make([]*domain.Portfolio, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *PostgresStore) Put(ctx context.Context, kind domain.ResultKind, id string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO computation_results (id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4)`,
		id, string(kind), raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// GetResult fetches a stored result; exposed through Results() to satisfy
// the ResultStore interface alongside the portfolio Get.
func (s *PostgresStore) GetResult(ctx context.Context, id string) (*StoredResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var r StoredResult
	err := s.db.GetContext(ctx, &r, `
		SELECT id, kind, payload, created_at
		FROM computation_results WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("result", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select result: %w", err)
	}
	return &r, nil
}

// Results exposes the PostgresStore as a ResultStore.
func (s *PostgresStore) Results() ResultStore {
	return postgresResultView{s}
}

type postgresResultView struct {
	*PostgresStore
}

func (v postgresResultView) Get(ctx context.Context, id string) (*StoredResult, error) {
	return v.GetResult(ctx, id)
}
