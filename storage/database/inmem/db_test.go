package inmemdb_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/user"
	inmemdb "github.com/trezcool/jumuiya/storage/database/inmem"
	"github.com/trezcool/jumuiya/tests"
)

func TestDB_InTx(t *testing.T) {
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	dirRepo := inmemdb.NewDirectoryRepository(db)
	ctx := context.Background()

	head := testutil.CreateUser(t, usrRepo, "Baba", "baba", "baba@test.cd", "", user.AccountParent, true)

	t.Run("rolled back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.InTx(ctx, func(exec core.DBExecutor) error {
			if _, err := dirRepo.CreateFamily(ctx, directory.Family{HeadID: head.ID, Name: "Lost"}, exec); err != nil {
				return err
			}
			// reads inside the transaction see its writes
			fams, err := dirRepo.FamiliesHeadedBy(ctx, head.ID, exec)
			if err != nil {
				return err
			}
			assert.Len(t, fams, 1)
			return boom
		})
		assert.Equal(t, boom, err)

		fams, err := dirRepo.FamiliesHeadedBy(ctx, head.ID)
		require.NoError(t, err)
		assert.Empty(t, fams)
	})

	t.Run("committed", func(t *testing.T) {
		var fam directory.Family
		err := db.InTx(ctx, func(exec core.DBExecutor) (err error) {
			fam, err = dirRepo.CreateFamily(ctx, directory.Family{HeadID: head.ID, Name: "Kept"}, exec)
			return err
		})
		require.NoError(t, err)

		got, err := dirRepo.GetFamily(ctx, fam.ID)
		require.NoError(t, err)
		assert.Equal(t, "Kept", got.Name)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := db.InTx(cctx, func(core.DBExecutor) error {
			called = true
			return nil
		})
		assert.Equal(t, context.Canceled, err)
		assert.False(t, called)
	})

	t.Run("reset", func(t *testing.T) {
		db.Reset()
		_, err := usrRepo.GetUser(ctx, user.GetFilter{ID: head.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}
