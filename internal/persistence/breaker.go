package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantfolio/quantfolio/internal/domain"
)

// BreakerStore wraps a ResultStore with a circuit breaker so a failing
// storage backend sheds load instead of stalling every computation request.
// NOT_FOUND responses do not count as failures.
type BreakerStore struct {
	inner   ResultStore
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with default breaker settings: trip after 5
// consecutive failures, half-open after 30 seconds.
func NewBreakerStore(name string, inner ResultStore) *BreakerStore {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("result store breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || domain.CodeOf(err) == domain.CodeNotFound
		},
	}
	return &BreakerStore{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (s *BreakerStore) Put(ctx context.Context, kind domain.ResultKind, id string, payload any) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.inner.Put(ctx, kind, id, payload)
	})
	return err
}

func (s *BreakerStore) Get(ctx context.Context, id string) (*StoredResult, error) {
	out, err := s.breaker.Execute(func() (any, error) {
		return s.inner.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return out.(*StoredResult), nil
}
