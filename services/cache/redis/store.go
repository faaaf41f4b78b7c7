package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/user"
)

const storeName = "redis"

type EventObserver interface {
	ObserveTokenEvent(store, event string)
}

// TokenStore is a user.TokenStore backed by Redis.
type TokenStore struct {
	c        *redis.Client
	observer EventObserver
}

var _ user.TokenStore = (*TokenStore)(nil)

func NewClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

func NewTokenStore(c *redis.Client, observer EventObserver) *TokenStore {
	return &TokenStore{c: c, observer: observer}
}

func (s *TokenStore) observe(event string) {
	if s.observer != nil {
		s.observer.ObserveTokenEvent(storeName, event)
	}
}

func (s *TokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.observe("set")
	return errors.Wrap(s.c.Set(ctx, key, value, ttl).Err(), "redis set")
}

func (s *TokenStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.c.Get(ctx, key).Result()
	if err == redis.Nil {
		s.observe("miss")
		return "", user.ErrTokenNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "redis get")
	}
	s.observe("hit")
	return v, nil
}

func (s *TokenStore) Del(ctx context.Context, key string) error {
	s.observe("del")
	return errors.Wrap(s.c.Del(ctx, key).Err(), "redis del")
}

// Ping checks that Redis is reachable.
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.c.Ping(ctx).Err()
}
