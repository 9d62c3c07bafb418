package database_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/authz"
	"github.com/trezcool/jumuiya/core/connection"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/membership"
	"github.com/trezcool/jumuiya/core/user"
	logsvc "github.com/trezcool/jumuiya/services/logger"
	"github.com/trezcool/jumuiya/storage/database"
	boiledrepos "github.com/trezcool/jumuiya/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/jumuiya/storage/database/sqlx"
	"github.com/trezcool/jumuiya/tests"
)

// TestPostgres_connectionFlow runs the redeem and approve flows on postgres, where
// concurrent callers are serialized by row locks instead of a process-wide mutex.
func TestPostgres_connectionFlow(t *testing.T) {
	db := testutil.OpenDB(t)
	conf := testutil.Config()
	validate, _ := testutil.NewValidator()
	ctx := context.Background()

	usrRepo := boiledrepos.NewUserRepository(db)
	dirRepo := boiledrepos.NewDirectoryRepository(db)
	memRepo := boiledrepos.NewMembershipRepository(db)
	codeRepo := sqlxrepos.NewCodeRepository(db)
	tx := database.NewTransactor(db, conf)

	svc := connection.NewService(connection.Deps{
		Tx:           tx,
		Codes:        invitation.NewRegistry(codeRepo, validate, conf),
		Requests:     joinrequest.NewStore(tx, sqlxrepos.NewRequestRepository(db), codeRepo, validate),
		Authz:        authz.NewResolver(dirRepo),
		Materializer: membership.NewMaterializer(memRepo, dirRepo, usrRepo),
		Memberships:  memRepo,
		Directory:    dirRepo,
		Users:        usrRepo,
		Logger:       logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf),
		Validate:     validate,
	})

	teacher := testutil.CreateUser(t, usrRepo, "Mwalimu", "mwalimu", "mwalimu@test.cd", "", user.AccountTeacher, true)
	cls := testutil.CreateClassroom(t, dirRepo, "6A", teacher.ID)

	students := make([]user.User, 0, 8)
	for i := 0; i < cap(students); i++ {
		uname := fmt.Sprintf("mwanafunzi%d", i)
		students = append(students, testutil.CreateUser(t, usrRepo, "Mwanafunzi", uname, uname+"@test.cd", "", user.AccountStudent, true))
	}

	one := 1
	code, err := svc.CreateCode(ctx, teacher.ID, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: cls.ID, MaxUses: &one})
	require.NoError(t, err)

	t.Run("single use code redeemed concurrently", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for _, st := range students {
			wg.Add(1)
			go func(st user.User) {
				defer wg.Done()
				_, err := svc.Redeem(ctx, st.ID, connection.RedeemInput{Code: code.Code.Code})
				if err != nil {
					assert.Equal(t, invitation.ErrExhausted, errors.Cause(err))
					return
				}
				mu.Lock()
				successes++
				mu.Unlock()
			}(st)
		}
		wg.Wait()
		assert.Equal(t, 1, successes)

		sum, err := svc.LookupCode(ctx, code.Code.Code)
		require.NoError(t, err)
		assert.Equal(t, 1, sum.UsageCount)
		assert.Equal(t, invitation.StatusExhausted, sum.Status)
	})

	t.Run("request approved once", func(t *testing.T) {
		pending, err := svc.ListPending(ctx, teacher.ID, directory.TargetClassroom, cls.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Respond(ctx, teacher.ID, pending[0].ID, connection.ActionApprove)
				if err != nil {
					assert.Equal(t, joinrequest.ErrResolved, errors.Cause(err))
					return
				}
				mu.Lock()
				successes++
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)

		enrs, err := memRepo.ListEnrollments(ctx, cls.ID)
		require.NoError(t, err)
		assert.Len(t, enrs, 1)

		conns, err := memRepo.ListConnections(ctx, teacher.ID)
		require.NoError(t, err)
		if assert.Len(t, conns, 1) {
			assert.Equal(t, membership.ConnectionTeacherStudent, conns[0].Type)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		sum, err := svc.RevokeCode(ctx, teacher.ID, code.ID)
		require.NoError(t, err)
		assert.Equal(t, invitation.StatusExpired, sum.Status)

		codes, err := svc.ListMyCodes(ctx, teacher.ID, "")
		require.NoError(t, err)
		if assert.Len(t, codes, 1) {
			assert.NotNil(t, codes[0].RevokedAt)
		}
	})

	t.Run("duplicate code value", func(t *testing.T) {
		err := codeRepo.InsertCode(ctx, invitation.Code{
			ID:         "7f1d8a52-3b8e-4a49-8e35-0c1f9a2d6b10",
			Code:       code.Code.Code,
			TargetType: directory.TargetClassroom,
			TargetID:   cls.ID,
			CreatedBy:  teacher.ID,
			CreatedAt:  core.Now(),
		})
		assert.Equal(t, invitation.ErrDuplicateCode, err)
	})
}
