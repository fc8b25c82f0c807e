package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
)

// acquireScript sets the lock unless held and returns {won, holder} in one
// step, so a loser always learns the holder that beat it.
var acquireScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return {1, ARGV[1]}
end
return {0, redis.call('GET', KEYS[1])}
`)

// releaseScript deletes the lock only if it still names ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if it still names ARGV[1].
var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// takeoverScript replaces holder ARGV[1] with ARGV[2]. A vanished lock is
// simply claimed.
var takeoverScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and current ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// AttemptLock guards the single live attempt a user may hold on an exam.
// The lock value is the holding attempt's ID.
type AttemptLock struct {
	rdb *redis.Client
}

// NewAttemptLock creates a new AttemptLock.
func NewAttemptLock(rdb *redis.Client) *AttemptLock {
	return &AttemptLock{rdb: rdb}
}

// Acquire claims the lock for attemptID. When the lock is already held it
// returns false and the current holder.
func (l *AttemptLock) Acquire(ctx context.Context, userID string, examID, attemptID uuid.UUID, ttl time.Duration) (bool, uuid.UUID, error) {
	res, err := acquireScript.Run(ctx, l.rdb,
		[]string{config.CacheKey.AttemptLockKey(userID, examID.String())},
		attemptID.String(), max(ttl.Milliseconds(), 1),
	).Slice()
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("acquire attempt lock: %w", err)
	}
	if len(res) != 2 {
		return false, uuid.Nil, fmt.Errorf("acquire attempt lock: unexpected reply %v", res)
	}
	raw, _ := res[1].(string)
	holder, err := uuid.Parse(raw)
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("corrupt attempt lock %q: %w", raw, err)
	}
	won, _ := res[0].(int64)
	return won == 1, holder, nil
}

// Holder returns the attempt currently holding the lock.
func (l *AttemptLock) Holder(ctx context.Context, userID string, examID uuid.UUID) (uuid.UUID, error) {
	raw, err := l.rdb.Get(ctx, config.CacheKey.AttemptLockKey(userID, examID.String())).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("read attempt lock: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt attempt lock %q: %w", raw, err)
	}
	return id, nil
}

// Takeover swaps a stale holder for attemptID.
func (l *AttemptLock) Takeover(ctx context.Context, userID string, examID, stale, attemptID uuid.UUID, ttl time.Duration) (bool, error) {
	n, err := takeoverScript.Run(ctx, l.rdb,
		[]string{config.CacheKey.AttemptLockKey(userID, examID.String())},
		stale.String(), attemptID.String(), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("take over attempt lock: %w", err)
	}
	return n == 1, nil
}

// Release drops the lock if attemptID still holds it.
func (l *AttemptLock) Release(ctx context.Context, userID string, examID, attemptID uuid.UUID) error {
	err := releaseScript.Run(ctx, l.rdb,
		[]string{config.CacheKey.AttemptLockKey(userID, examID.String())},
		attemptID.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("release attempt lock: %w", err)
	}
	return nil
}

// Refresh resets the lock TTL. It reports false if attemptID no longer holds it.
func (l *AttemptLock) Refresh(ctx context.Context, userID string, examID, attemptID uuid.UUID, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.rdb,
		[]string{config.CacheKey.AttemptLockKey(userID, examID.String())},
		attemptID.String(), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("refresh attempt lock: %w", err)
	}
	return n == 1, nil
}
