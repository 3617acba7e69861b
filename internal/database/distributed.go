package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLockHeld means another instance owns an unexpired lock.
	ErrLockHeld = errors.New("lock held by another instance")
	// ErrHAUnsupported is returned by lock calls on SQLite.
	ErrHAUnsupported = errors.New("distributed locks require PostgreSQL")
)

// DistributedLock represents a distributed lock for coordination.
type DistributedLock struct {
	db         *Database
	lockName   string
	instanceID string
	ttl        time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// AcquireLock attempts to acquire a distributed lock.
// Returns a lock object if successful, or ErrLockHeld if another instance
// holds it.
func (d *Database) AcquireLock(ctx context.Context, lockName string, ttl time.Duration) (*DistributedLock, error) {
	if !d.supportsHA {
		return nil, ErrHAUnsupported
	}

	instanceID := uuid.New().String()
	expiresAt := time.Now().UTC().Add(ttl)

	query := `
		INSERT INTO distributed_locks (lock_name, instance_id, expires_at, heartbeat_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (lock_name) DO NOTHING
	`
	result, err := d.db.ExecContext(ctx, d.q(query), lockName, instanceID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check lock acquisition: %w", err)
	}

	if rows == 0 {
		// Take over the lock only if the holder let it expire.
		query = `
			UPDATE distributed_locks
			SET instance_id = ?, expires_at = ?, heartbeat_at = CURRENT_TIMESTAMP, acquired_at = CURRENT_TIMESTAMP
			WHERE lock_name = ? AND expires_at < ?
		`
		result, err = d.db.ExecContext(ctx, d.q(query), instanceID, expiresAt, lockName, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to steal expired lock: %w", err)
		}
		rows, _ = result.RowsAffected()
		if rows == 0 {
			return nil, ErrLockHeld
		}
	}

	lock := &DistributedLock{
		db:         d,
		lockName:   lockName,
		instanceID: instanceID,
		ttl:        ttl,
		stopCh:     make(chan struct{}),
	}

	go lock.heartbeat()

	return lock, nil
}

// heartbeat periodically refreshes the lock to prevent expiration.
func (dl *DistributedLock) heartbeat() {
	ticker := time.NewTicker(dl.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			query := `
				UPDATE distributed_locks
				SET heartbeat_at = CURRENT_TIMESTAMP, expires_at = ?
				WHERE lock_name = ? AND instance_id = ?
			`
			_, err := dl.db.db.ExecContext(ctx, dl.db.q(query), time.Now().UTC().Add(dl.ttl), dl.lockName, dl.instanceID)
			cancel()
			if err != nil {
				// Lost lock - stop heartbeat
				return
			}

		case <-dl.stopCh:
			return
		}
	}
}

// Release releases the distributed lock. It is safe to call more than once.
func (dl *DistributedLock) Release(ctx context.Context) error {
	dl.stopOnce.Do(func() { close(dl.stopCh) })

	query := `
		DELETE FROM distributed_locks
		WHERE lock_name = ? AND instance_id = ?
	`
	if _, err := dl.db.db.ExecContext(ctx, dl.db.q(query), dl.lockName, dl.instanceID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// CleanupExpiredLocks removes expired locks from the database.
func (d *Database) CleanupExpiredLocks(ctx context.Context) (int, error) {
	if !d.supportsHA {
		return 0, nil
	}

	result, err := d.db.ExecContext(ctx, d.q(`DELETE FROM distributed_locks WHERE expires_at < ?`), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup locks: %w", err)
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}
