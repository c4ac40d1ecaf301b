package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

const turnLockPrefix = "chatquota:turn:"

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClient(ctx context.Context, cfg utils.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis: address is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return client, nil
}

// TurnLock serialises chat turns per user across processes.
type TurnLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewTurnLock(client redis.UniversalClient, ttl time.Duration) *TurnLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TurnLock{client: client, ttl: ttl}
}

// Acquire takes the lock for userID. ok is false when another turn holds it.
// The returned release func is safe to call after the TTL expired.
func (l *TurnLock) Acquire(ctx context.Context, userID string) (release func(context.Context) error, ok bool, err error) {
	key := turnLockPrefix + userID
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, apperr.StoreUnavailable("acquire turn lock", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis: release turn lock: %w", err)
		}
		return nil
	}

	return release, true, nil
}
