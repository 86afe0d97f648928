package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/quantfolio/quantfolio/internal/domain"
)

// MemoryStore is an in-process PortfolioStore and ResultStore, the default
// backend and the one the test suite runs against.
type MemoryStore struct {
	mu         sync.RWMutex
	portfolios map[string]*domain.Portfolio
	results    map[string]*StoredResult
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*domain.Portfolio),
		results:    make(map[string]*StoredResult),
	}
}

func (s *MemoryStore) Create(ctx context.Context, p *domain.Portfolio) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.portfolios[p.ID]; exists {
		return domain.NewValidationError("portfolio id already exists: " + p.ID)
	}
	s.portfolios[p.ID] = clonePortfolio(p)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil, domain.NewNotFoundError("portfolio", id)
	}
	return clonePortfolio(p), nil
}

func (s *MemoryStore) Update(ctx context.Context, p *domain.Portfolio) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[p.ID]; !ok {
		return domain.NewNotFoundError("portfolio", p.ID)
	}
	s.portfolios[p.ID] = clonePortfolio(p)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[id]; !ok {
		return domain.NewNotFoundError("portfolio", id)
	}
	delete(s.portfolios, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*domain.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, clonePortfolio(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, kind domain.ResultKind, id string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = &StoredResult{ID: id, Kind: kind, Payload: raw, CreatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) GetResult(ctx context.Context, id string) (*StoredResult, error) {
	return s.getResult(ctx, id)
}

// Get on the result side satisfies ResultStore; disambiguated internally
// because MemoryStore also backs PortfolioStore.
func (s *MemoryStore) getResult(ctx context.Context, id string) (*StoredResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, domain.NewNotFoundError("result", id)
	}
	cp := *r
	cp.Payload = append(json.RawMessage(nil), r.Payload...)
	return &cp, nil
}

func clonePortfolio(p *domain.Portfolio) *domain.Portfolio {
	cp := *p
	cp.Assets = make(domain.WeightVector, len(p.Assets))
	for k, v := range p.Assets {
		cp.Assets[k] = v
	}
	return &cp
}

// ResultView adapts MemoryStore's result half to the ResultStore interface,
// since Get on the portfolio half takes the method name.
type ResultView struct {
	*MemoryStore
}

// Results exposes the MemoryStore as a ResultStore.
func (s *MemoryStore) Results() ResultStore {
	return ResultView{s}
}

func (v ResultView) Get(ctx context.Context, id string) (*StoredResult, error) {
	return v.getResult(ctx, id)
}
