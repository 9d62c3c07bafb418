package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
)

// postgres error codes
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

var ErrContention = core.NewError(core.ErrUnavailable, "the server is busy, please retry")

// Transactor runs units of work in postgres transactions.
// Transactions that fail on a lock timeout, a deadlock or a serialization failure are retried
// from scratch; fn must therefore be safe to run more than once.
type Transactor struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	maxRetries  int
	backoff     time.Duration
}

var _ core.Transactor = (*Transactor)(nil) // interface compliance check

func NewTransactor(db *sqlx.DB, conf *core.Config) *Transactor {
	retries := conf.Database.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Transactor{
		db:          db,
		lockTimeout: conf.Database.LockTimeout,
		maxRetries:  retries,
		backoff:     25 * time.Millisecond,
	}
}

func (t *Transactor) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	for attempt := 0; ; attempt++ {
		err := t.run(ctx, fn)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt >= t.maxRetries {
			return errors.Wrapf(ErrContention, "transaction failed after %d attempts: %v", attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * t.backoff):
		}
	}
}

func (t *Transactor) run(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if t.lockTimeout > 0 {
		q := fmt.Sprintf("SET LOCAL lock_timeout = %d", t.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "setting lock timeout")
		}
	}

	if err = fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsTransient reports whether err is a concurrency failure worth retrying.
func IsTransient(err error) bool {
	switch pqCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

func IsUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}
