package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate locks the selected rows until the transaction ends. SQLite ignores it; there the
// immediate transaction already holds the database write lock.
var ForUpdate = clause.Locking{Strength: "UPDATE"}

// Transactor runs units of work that must commit or roll back as a whole
type Transactor struct {
	db          *gorm.DB
	timeout     time.Duration
	lockTimeout time.Duration
}

// NewTransactor creates a Transactor. timeout bounds a whole unit of work, lockTimeout bounds
// each row lock wait on Postgres.
func NewTransactor(db *gorm.DB, timeout, lockTimeout time.Duration) *Transactor {
	return &Transactor{
		db:          db,
		timeout:     timeout,
		lockTimeout: lockTimeout,
	}
}

// DB returns the underlying connection for reads that need no transaction
func (t *Transactor) DB() *gorm.DB {
	return t.db
}

// Do runs fn inside a single transaction. The transaction is always finalized: fn returning an
// error or panicking rolls back, otherwise it commits. Errors are classified into the apperr
// taxonomy; lock waits and timeouts become retryable conflicts.
func (t *Transactor) Do(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	// Begin transaction
	tx := t.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return Classify(fmt.Errorf("failed to start transaction: %w", err))
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if t.lockTimeout > 0 && t.db.Dialector.Name() == DriverPostgres {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if err := tx.Exec(stmt).Error; err != nil {
			tx.Rollback()
			return Classify(err)
		}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			log.Error().Err(rbErr).Msg("failed to roll back transaction")
		}
		return Classify(err)
	}

	if err := tx.Commit().Error; err != nil {
		return Classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}
