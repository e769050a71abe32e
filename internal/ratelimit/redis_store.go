package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/storage"
)

// Record layout in Redis: one hash per storage key.
const (
	fieldWindowStart = "window_start" // unix milliseconds
	fieldCount       = "count"
	fieldLastRequest = "last_request" // unix milliseconds
)

// RedisStore implements CounterStore over a shared Redis. Atomicity comes
// from an optimistic WATCH/MULTI cycle: the record is read under WATCH, the
// decision computed locally, and the write aborts if another writer touched
// the key first. Aborts walk the bounded backoff ladder; a small overcount
// under pathological contention is an accepted fixed-window trade-off.
type RedisStore struct {
	client  *storage.RedisClient
	sleep   SleepFunc
	timeout time.Duration
}

var _ CounterStore = (*RedisStore)(nil)

func NewRedisStore(client *storage.RedisClient) *RedisStore {
	return &RedisStore{
		client:  client,
		sleep:   sleepContext,
		timeout: storeOpTimeout,
	}
}

func (s *RedisStore) CheckAndIncrement(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Result, error) {
	var res Result
	err := withRetry(ctx, s.sleep, func() error {
		r, err := s.checkOnce(ctx, key, now, limit, window)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *RedisStore) checkOnce(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Result, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res Result
	err := s.client.Watch(opCtx, func(tx *redis.Tx) error {
		values, err := tx.HGetAll(opCtx, key).Result()
		if err != nil {
			return err
		}

		result, write := parseAndDecide(values, now, limit, window)
		res = result
		if write == nil {
			// Denied: the counter is untouched, no transaction needed.
			return nil
		}

		_, err = tx.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
			pipe.HSet(opCtx, key,
				fieldWindowStart, write.WindowStart.UnixMilli(),
				fieldCount, write.Count,
				fieldLastRequest, write.LastRequest.UnixMilli(),
			)
			pipe.PExpire(opCtx, key, recordTTL(*write, now, window))
			return nil
		})
		return err
	}, key)
	if err != nil {
		return Result{}, classifyRedisErr(ctx, err)
	}
	return res, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*WindowRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	values, err := s.client.HGetAll(opCtx, key)
	if err != nil {
		return nil, classifyRedisErr(ctx, err)
	}
	return parseRecord(values), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(opCtx, key); err != nil {
		return classifyRedisErr(ctx, err)
	}
	return nil
}

func parseAndDecide(values map[string]string, now time.Time, limit int, window time.Duration) (Result, *WindowRecord) {
	return decide(parseRecord(values), now, limit, window)
}

func parseRecord(values map[string]string) *WindowRecord {
	if len(values) == 0 {
		return nil
	}
	startMs, err := strconv.ParseInt(values[fieldWindowStart], 10, 64)
	if err != nil {
		return nil
	}
	count, err := strconv.ParseInt(values[fieldCount], 10, 64)
	if err != nil {
		return nil
	}
	lastMs, _ := strconv.ParseInt(values[fieldLastRequest], 10, 64)
	return &WindowRecord{
		WindowStart: time.UnixMilli(startMs),
		Count:       count,
		LastRequest: time.UnixMilli(lastMs),
	}
}

// classifyRedisErr tags driver errors once, at this boundary. parentCtx tells
// caller cancellation apart from a per-attempt timeout, which is transient.
func classifyRedisErr(parentCtx context.Context, err error) error {
	if parentCtx.Err() != nil {
		return parentCtx.Err()
	}
	if errors.Is(err, redis.TxFailedErr) {
		return retryableErr(err)
	}
	if isRedisOOM(err) {
		return exhaustedErr(err)
	}
	return retryableErr(err)
}

// Redis rejects writes over maxmemory with the OOM reply code. That is the
// hard quota signal: retrying would only burn more of the backend's budget.
func isRedisOOM(err error) bool {
	var replyErr redis.Error
	return errors.As(err, &replyErr) && strings.HasPrefix(replyErr.Error(), "OOM")
}
