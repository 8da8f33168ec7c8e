package redis

import (
	"context"
	"fmt"
	"rallysphere/internal/apperr"
	"rallysphere/internal/config"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "event_admission:"

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// AdmissionLock serializes attendee/waitlist changes per event across all
// API instances.
type AdmissionLock struct {
	Client     *redis.Client
	TTL        time.Duration
	Retries    int
	RetryDelay time.Duration
}

func NewAdmissionLock(client *redis.Client, cfg config.AdmissionConfig) *AdmissionLock {
	return &AdmissionLock{
		Client:     client,
		TTL:        cfg.LockTTL,
		Retries:    cfg.Retries,
		RetryDelay: cfg.RetryDelay,
	}
}

func lockKey(eventID string) string {
	return keyPrefix + eventID
}

// TryLock takes the lock for eventID once, without waiting.
func (l *AdmissionLock) TryLock(ctx context.Context, eventID, token string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(eventID), token, l.TTL).Result()
}

// Unlock releases the lock if token still owns it.
func (l *AdmissionLock) Unlock(ctx context.Context, eventID, token string) error {
	return releaseScript.Run(ctx, l.Client, []string{lockKey(eventID)}, token).Err()
}

// Acquire blocks until the lock for eventID is held, retrying a bounded
// number of times. It returns apperr.ErrBusy when the lock stays taken.
func (l *AdmissionLock) Acquire(ctx context.Context, eventID string) (release func(), err error) {
	token := uuid.NewString()

	for attempt := 0; attempt <= l.Retries; attempt++ {
		ok, err := l.TryLock(ctx, eventID, token)
		if err != nil {
			return nil, apperr.External("redis", fmt.Errorf("lock event %s: %w", eventID, err))
		}
		if ok {
			return func() {
				// The request context may already be cancelled here.
				_ = l.Unlock(context.Background(), eventID, token)
			}, nil
		}
		if attempt == l.Retries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.RetryDelay):
		}
	}

	return nil, fmt.Errorf("event %s: %w", eventID, apperr.ErrBusy)
}
