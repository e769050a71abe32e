package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/models"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/storage"
)

// PostgresStore implements CounterStore with a transactional read-modify-write:
// the row is locked FOR UPDATE inside a single transaction, so each request
// observes and advances the counter exactly once even under concurrent
// writers. Serialization aborts and deadlocks walk the same bounded backoff
// ladder the Redis store uses.
type PostgresStore struct {
	db      *storage.Postgres
	sleep   SleepFunc
	timeout time.Duration
}

var _ CounterStore = (*PostgresStore)(nil)

// errWindowInsertRace marks a first-hit insert that lost to a concurrent
// writer. Tagged Retryable so the backoff ladder re-reads the winner's row.
var errWindowInsertRace = errors.New("window row inserted concurrently")

func NewPostgresStore(db *storage.Postgres) *PostgresStore {
	return &PostgresStore{
		db:      db,
		sleep:   sleepContext,
		timeout: storeOpTimeout,
	}
}

func (s *PostgresStore) CheckAndIncrement(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Result, error) {
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

func (s *PostgresStore) checkOnce(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Result, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res Result
	err := s.db.DB.WithContext(opCtx).Transaction(func(tx *gorm.DB) error {
		var row models.RateLimitWindow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key = ?", key).
			First(&row).Error

		var rec *WindowRecord
		rowLocked := false
		switch {
		case err == nil:
			rowLocked = true
			// A row at exactly ExpiresAt is still live; TTL expiry must
			// never run ahead of the logical window boundary.
			if !now.After(row.ExpiresAt) {
				rec = &WindowRecord{
					WindowStart: time.UnixMilli(row.WindowStartMs),
					Count:       row.Count,
					LastRequest: time.UnixMilli(row.LastRequestMs),
				}
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// First hit for this key.
		default:
			return err
		}

		result, write := decide(rec, now, limit, window)
		res = result
		if write == nil {
			return nil
		}

		next := models.RateLimitWindow{
			Key:           key,
			WindowStartMs: write.WindowStart.UnixMilli(),
			Count:         write.Count,
			LastRequestMs: write.LastRequest.UnixMilli(),
			ExpiresAt:     now.Add(recordTTL(*write, now, window)),
		}

		if rowLocked {
			// The FOR UPDATE lock is held, so overwriting is safe even when
			// the old window just rolled over.
			return tx.Model(&models.RateLimitWindow{}).
				Where("key = ?", key).
				Updates(map[string]interface{}{
					"window_start_ms": next.WindowStartMs,
					"count":           next.Count,
					"last_request_ms": next.LastRequestMs,
					"expires_at":      next.ExpiresAt,
				}).Error
		}

		// No row existed to lock, so a concurrent first hit can race this
		// insert. Losing that race is plain contention: the ladder re-reads
		// the winner's row under the lock on the next attempt. UpdateAll here
		// would instead clobber the winner's count.
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&next)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			return retryableErr(errWindowInsertRace)
		}
		return nil
	})
	if err != nil {
		var se *StoreError
		if errors.As(err, &se) {
			return Result{}, err
		}
		return Result{}, classifyPostgresErr(ctx, err)
	}
	return res, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*WindowRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row models.RateLimitWindow
	err := s.db.DB.WithContext(opCtx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyPostgresErr(ctx, err)
	}
	if time.Now().After(row.ExpiresAt) {
		return nil, nil
	}
	return &WindowRecord{
		WindowStart: time.UnixMilli(row.WindowStartMs),
		Count:       row.Count,
		LastRequest: time.UnixMilli(row.LastRequestMs),
	}, nil
}

func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.DB.WithContext(opCtx).
		Where("key = ?", key).
		Delete(&models.RateLimitWindow{}).Error
	if err != nil {
		return classifyPostgresErr(ctx, err)
	}
	return nil
}

// CleanupExpired removes rows whose TTL has lapsed. Postgres has no native
// key expiry, so a background sweeper calls this periodically.
func (s *PostgresStore) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.DB.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.RateLimitWindow{})
	return result.RowsAffected, result.Error
}

// classifyPostgresErr tags driver errors by SQLSTATE once, at this boundary.
func classifyPostgresErr(parentCtx context.Context, err error) error {
	if parentCtx.Err() != nil {
		return parentCtx.Err()
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			// serialization_failure, deadlock_detected: lost a race, try again.
			return retryableErr(err)
		case "53200", "53300", "53400":
			// Resource limits on the backend itself. Never retried.
			return exhaustedErr(err)
		}
	}
	return retryableErr(err)
}
