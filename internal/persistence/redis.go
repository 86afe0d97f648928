package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quantfolio/quantfolio/internal/domain"
)

const (
	redisPortfolioPrefix = "quantfolio:portfolio:"
	redisPortfolioIndex  = "quantfolio:portfolios"
	redisResultPrefix    = "quantfolio:result:"
)

// RedisStore persists portfolios and results as JSON blobs in Redis.
// Portfolio ids are tracked in a sorted set scored by creation time so List
// preserves insertion order.
type RedisStore struct {
	client    redis.Cmdable
	resultTTL time.Duration
}

// NewRedisStore wraps an existing Redis client. A zero resultTTL keeps
// results forever.
func NewRedisStore(client redis.Cmdable, resultTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, resultTTL: resultTTL}
}

func (s *RedisStore) Create(ctx context.Context, p *domain.Portfolio) error {
	key := redisPortfolioPrefix + p.ID
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, key, raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create portfolio: %w", err)
	}
	if !ok {
		return domain.NewValidationError("portfolio id already exists: " + p.ID)
	}
	score := float64(p.CreatedAt.UnixNano())
	if err := s.client.ZAdd(ctx, redisPortfolioIndex, &redis.Z{Score: score, Member: p.ID}).Err(); err != nil {
		return fmt.Errorf("redis index portfolio: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Portfolio, error) {
	raw, err := s.client.Get(ctx, redisPortfolioPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, domain.NewNotFoundError("portfolio", id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get portfolio: %w", err)
	}
	var p domain.Portfolio
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("redis decode portfolio %s: %w", id, err)
	}
	return &p, nil
}

func (s *RedisStore) Update(ctx context.Context, p *domain.Portfolio) error {
	key := redisPortfolioPrefix + p.ID
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis update portfolio: %w", err)
	}
	if exists == 0 {
		return domain.NewNotFoundError("portfolio", p.ID)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis update portfolio: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, redisPortfolioPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("redis delete portfolio: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("portfolio", id)
	}
	if err := s.client.ZRem(ctx, redisPortfolioIndex, id).Err(); err != nil {
		return fmt.Errorf("redis deindex portfolio: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*domain.Portfolio, error) {
	ids, err := s.client.ZRange(ctx, redisPortfolioIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list portfolios: %w", err)
	}
	out := make([]*domain.Portfolio, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			if domain.CodeOf(err) == domain.CodeNotFound {
				continue // expired or concurrently deleted
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, kind domain.ResultKind, id string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	envelope := StoredResult{ID: id, Kind: kind, Payload: raw, CreatedAt: time.Now().UTC()}
	blob, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisResultPrefix+id, blob, s.resultTTL).Err(); err != nil {
		return fmt.Errorf("redis put result: %w", err)
	}
	return nil
}

// GetResult fetches a stored result; exposed through Results() to satisfy
// the ResultStore interface alongside the portfolio Get.
func (s *RedisStore) GetResult(ctx context.Context, id string) (*StoredResult, error) {
	raw, err := s.client.Get(ctx, redisResultPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, domain.NewNotFoundError("result", id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get result: %w", err)
	}
	var r StoredResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("redis decode result %s: %w", id, err)
	}
	return &r, nil
}

// Results exposes the RedisStore as a ResultStore.
func (s *RedisStore) Results() ResultStore {
	return redisResultView{s}
}

type redisResultView struct {
	*RedisStore
}

func (v redisResultView) Get(ctx context.Context, id string) (*StoredResult, error) {
	return v.GetResult(ctx, id)
}
