package database_test

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/storage/database"
	"github.com/trezcool/jumuiya/tests"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		unique    bool
	}{
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, transient: true},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, transient: true},
		{name: "lock timeout", err: errors.Wrap(&pq.Error{Code: "55P03"}, "locking code"), transient: true},
		{name: "unique violation", err: errors.Wrap(&pq.Error{Code: "23505"}, "inserting code"), unique: true},
		{name: "other pq error", err: &pq.Error{Code: "42P01"}},
		{name: "not a pq error", err: errors.New("boom")},
		{name: "nil", err: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, database.IsTransient(tt.err))
			assert.Equal(t, tt.unique, database.IsUniqueViolation(tt.err))
		})
	}
}

func TestTransactor_InTx(t *testing.T) {
	db := testutil.OpenDB(t)
	conf := testutil.Config()
	conf.Database.MaxRetries = 2
	tx := database.NewTransactor(db, conf)
	ctx := context.Background()

	t.Run("transient failures are retried", func(t *testing.T) {
		attempts := 0
		err := tx.InTx(ctx, func(core.DBExecutor) error {
			attempts++
			if attempts < 3 {
				return &pq.Error{Code: "40001"}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		attempts := 0
		err := tx.InTx(ctx, func(core.DBExecutor) error {
			attempts++
			return &pq.Error{Code: "40P01"}
		})
		assert.Equal(t, database.ErrContention, errors.Cause(err))
		assert.Equal(t, core.ErrUnavailable, core.KindOf(err))
		assert.Equal(t, 3, attempts)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		attempts := 0
		boom := errors.New("boom")
		err := tx.InTx(ctx, func(core.DBExecutor) error {
			attempts++
			return boom
		})
		assert.Equal(t, boom, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("rolled back", func(t *testing.T) {
		_ = tx.InTx(ctx, func(exec core.DBExecutor) error {
			_, err := exec.ExecContext(ctx, `INSERT INTO "user" (id, name, account_type, is_active, created_at, updated_at)
				VALUES ('0b7a3c8e-0c52-4a8f-9d32-5f0c2b3f3a11', 'Ghost', 'parent', true, now(), now())`)
			assert.NoError(t, err)
			return errors.New("boom")
		})

		var n int
		assert.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM "user"`))
		assert.Zero(t, n)
	})
}
