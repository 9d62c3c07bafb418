package connection_test

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

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
	emailsvc "github.com/trezcool/jumuiya/services/email"
	logsvc "github.com/trezcool/jumuiya/services/logger"
	"github.com/trezcool/jumuiya/services/metrics"
	inmemdb "github.com/trezcool/jumuiya/storage/database/inmem"
	"github.com/trezcool/jumuiya/tests"
)

type fixture struct {
	svc     *connection.Service
	mailSvc *emailsvc.ConsoleServiceMock
	metrics *metrics.Metrics
	usrRepo user.Repository
	dirRepo directory.Repository
	memRepo membership.Repository

	head, teacher, student, parent, stranger user.User
	family                                   directory.Family
	classroom                                directory.Classroom
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := testutil.Config()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(conf, logger)
	validate, _ := testutil.NewValidator()

	db := inmemdb.Open()
	f := &fixture{
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
		usrRepo: inmemdb.NewUserRepository(db),
		dirRepo: inmemdb.NewDirectoryRepository(db),
		memRepo: inmemdb.NewMembershipRepository(db),
		metrics: metrics.New(conf),
	}
	codeRepo := inmemdb.NewCodeRepository(db)
	f.svc = connection.NewService(connection.Deps{
		Tx:           db,
		Codes:        invitation.NewRegistry(codeRepo, validate, conf),
		Requests:     joinrequest.NewStore(db, inmemdb.NewRequestRepository(db), codeRepo, validate),
		Authz:        authz.NewResolver(f.dirRepo),
		Materializer: membership.NewMaterializer(f.memRepo, f.dirRepo, f.usrRepo),
		Memberships:  f.memRepo,
		Directory:    f.dirRepo,
		Users:        f.usrRepo,
		MailSvc:      f.mailSvc,
		Logger:       logger,
		Metrics:      f.metrics,
		Validate:     validate,
	})

	f.head = testutil.CreateUser(t, f.usrRepo, "Baba", "baba", "baba@test.cd", "", user.AccountParent, true)
	f.teacher = testutil.CreateUser(t, f.usrRepo, "Mwalimu", "mwalimu", "mwalimu@test.cd", "", user.AccountTeacher, true)
	f.student = testutil.CreateUser(t, f.usrRepo, "Mtoto", "mtoto", "mtoto@test.cd", "", user.AccountStudent, true)
	f.parent = testutil.CreateUser(t, f.usrRepo, "Mama", "mama", "mama@test.cd", "", user.AccountParent, true)
	f.stranger = testutil.CreateUser(t, f.usrRepo, "Jirani", "jirani", "jirani@test.cd", "", user.AccountTeacher, true)
	f.family = testutil.CreateFamily(t, f.dirRepo, "Famille Baba", f.head.ID)
	f.classroom = testutil.CreateClassroom(t, f.dirRepo, "6A", f.teacher.ID)
	return f
}

func (f *fixture) createCode(t *testing.T, actor user.User, nc invitation.NewCode) invitation.Summary {
	t.Helper()
	sum, err := f.svc.CreateCode(context.Background(), actor.ID, nc)
	require.NoError(t, err)
	return sum
}

func (f *fixture) classroomCode(t *testing.T, maxUses *int) invitation.Summary {
	return f.createCode(t, f.teacher, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: f.classroom.ID, MaxUses: maxUses})
}

func intPtr(i int) *int { return &i }

func TestService_RedeemAndApprove_classroom(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	code := f.classroomCode(t, nil)
	assert.Equal(t, invitation.StatusActive, code.Status)

	req, err := f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: " " + code.Code.Code + " ", Message: "Shikamoo"})
	require.NoError(t, err)
	assert.Equal(t, joinrequest.StatusPending, req.Status)
	assert.Equal(t, directory.TargetClassroom, req.TargetType)
	assert.Equal(t, f.classroom.ID, req.TargetID)
	assert.Equal(t, "student", req.RelationshipType)

	sent := f.mailSvc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, f.teacher.Email, sent[0].To[0].Address)
		assert.Equal(t, "join_request_received", sent[0].TemplateName)
		assert.Contains(t, sent[0].TextContent, "Shikamoo")
	}

	pending, err := f.svc.ListPending(ctx, f.teacher.ID, "", "")
	require.NoError(t, err)
	if assert.Len(t, pending, 1) {
		assert.Equal(t, req.ID, pending[0].ID)
	}

	dec, err := f.svc.Respond(ctx, f.teacher.ID, req.ID, connection.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, joinrequest.StatusApproved, dec.Request.Status)
	require.NotNil(t, dec.Outcome)
	assert.True(t, dec.Outcome.StudentCreated)
	assert.NotNil(t, dec.Outcome.Enrollment)
	assert.NotEmpty(t, dec.Outcome.ConnectionID())

	sent = f.mailSvc.SentMessages()
	if assert.Len(t, sent, 2) {
		assert.Equal(t, f.student.Email, sent[1].To[0].Address)
		assert.Equal(t, "join_request_decided", sent[1].TemplateName)
	}

	students, err := f.svc.ListClassroomStudents(ctx, f.teacher.ID, f.classroom.ID)
	require.NoError(t, err)
	assert.Len(t, students, 1)

	conns, err := f.svc.ListConnections(ctx, f.student.ID)
	require.NoError(t, err)
	if assert.Len(t, conns, 1) {
		assert.Equal(t, membership.ConnectionTeacherStudent, conns[0].Type)
	}

	mine, err := f.svc.ListMyRequests(ctx, f.student.ID, joinrequest.StatusApproved)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	t.Run("second response conflicts", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, f.teacher.ID, req.ID, connection.ActionReject)
		assert.Equal(t, joinrequest.ErrResolved, errors.Cause(err))
		assert.Equal(t, core.ErrConflict, core.KindOf(err))
	})

	t.Run("conflict is reported before permission", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, f.stranger.ID, req.ID, connection.ActionApprove)
		assert.Equal(t, joinrequest.ErrResolved, errors.Cause(err))
	})
}

func TestService_familyCodeWithTwoUses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	code := f.createCode(t, f.head, invitation.NewCode{
		TargetType: directory.TargetFamily,
		TargetID:   f.family.ID,
		Code:       "FAM-AB12CD-EF34GH",
		MaxUses:    intPtr(2),
	})
	assert.Equal(t, "FAM-AB12CD-EF34GH", code.Code.Code)

	first, err := f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: "fam-ab12cd-ef34gh"})
	require.NoError(t, err)
	assert.Equal(t, "child", first.RelationshipType)

	second, err := f.svc.Redeem(ctx, f.parent.ID, connection.RedeemInput{Code: code.Code.Code, RelationshipType: "Mother"})
	require.NoError(t, err)
	assert.Equal(t, "mother", second.RelationshipType)

	_, err = f.svc.Redeem(ctx, f.stranger.ID, connection.RedeemInput{Code: code.Code.Code})
	assert.Equal(t, invitation.ErrExhausted, errors.Cause(err))

	summary, err := f.svc.LookupCode(ctx, code.Code.Code)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusExhausted, summary.Status)
	assert.Equal(t, 2, summary.UsageCount)

	dec, err := f.svc.Respond(ctx, f.head.ID, first.ID, connection.ActionApprove)
	require.NoError(t, err)
	if assert.NotNil(t, dec.Outcome) && assert.NotNil(t, dec.Outcome.FamilyMember) {
		assert.Equal(t, "child", dec.Outcome.FamilyMember.Role)
	}

	// a rejected request frees its slot
	dec, err = f.svc.Respond(ctx, f.head.ID, second.ID, connection.ActionReject)
	require.NoError(t, err)
	assert.Nil(t, dec.Outcome)
	assert.Equal(t, joinrequest.StatusRejected, dec.Request.Status)

	_, err = f.svc.Redeem(ctx, f.stranger.ID, connection.RedeemInput{Code: code.Code.Code})
	require.NoError(t, err)

	members, err := f.svc.ListFamilyMembers(ctx, f.head.ID, f.family.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	_, err = f.svc.ListFamilyMembers(ctx, f.parent.ID, f.family.ID)
	assert.Equal(t, connection.ErrForbidden, err)
}

func TestService_Respond_family(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	code := f.createCode(t, f.head, invitation.NewCode{TargetType: directory.TargetFamily, TargetID: f.family.ID})

	req, err := f.svc.Redeem(ctx, f.parent.ID, connection.RedeemInput{Code: code.Code.Code})
	require.NoError(t, err)

	t.Run("only the head may approve", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, f.student.ID, req.ID, connection.ActionApprove)
		assert.Equal(t, connection.ErrForbidden, errors.Cause(err))
		assert.Equal(t, core.ErrForbidden, core.KindOf(err))

		pending, err := f.svc.ListPending(ctx, f.head.ID, directory.TargetFamily, f.family.ID)
		require.NoError(t, err)
		if assert.Len(t, pending, 1) {
			assert.Equal(t, req.ID, pending[0].ID)
			assert.Equal(t, joinrequest.StatusPending, pending[0].Status)
		}
	})

	t.Run("rejected request cannot be approved", func(t *testing.T) {
		dec, err := f.svc.Respond(ctx, f.head.ID, req.ID, connection.ActionReject)
		require.NoError(t, err)
		assert.Equal(t, joinrequest.StatusRejected, dec.Request.Status)

		_, err = f.svc.Respond(ctx, f.head.ID, req.ID, connection.ActionApprove)
		assert.Equal(t, joinrequest.ErrResolved, errors.Cause(err))
		assert.Equal(t, core.ErrConflict, core.KindOf(err))

		members, err := f.svc.ListFamilyMembers(ctx, f.head.ID, f.family.ID)
		require.NoError(t, err)
		assert.Empty(t, members)

		conns, err := f.svc.ListConnections(ctx, f.head.ID)
		require.NoError(t, err)
		assert.Empty(t, conns)
	})
}

func TestService_Stats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	st, err := f.svc.Stats(ctx, f.teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, connection.Stats{}, st)

	open := f.classroomCode(t, nil)
	single := f.classroomCode(t, intPtr(1))
	revoked := f.classroomCode(t, nil)
	_, err = f.svc.RevokeCode(ctx, f.teacher.ID, revoked.ID)
	require.NoError(t, err)
	famCode := f.createCode(t, f.head, invitation.NewCode{TargetType: directory.TargetFamily, TargetID: f.family.ID})

	// inbound for the teacher, and the single use code is now exhausted
	_, err = f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: single.Code.Code})
	require.NoError(t, err)

	parentReq, err := f.svc.Redeem(ctx, f.parent.ID, connection.RedeemInput{Code: open.Code.Code})
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, f.teacher.ID, parentReq.ID, connection.ActionApprove)
	require.NoError(t, err)

	// outbound for the teacher, inbound for the head
	_, err = f.svc.Redeem(ctx, f.teacher.ID, connection.RedeemInput{Code: famCode.Code.Code})
	require.NoError(t, err)

	st, err = f.svc.Stats(ctx, f.teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, connection.Stats{
		TotalConnections:  1,
		ParentConnections: 1,
		PendingRequests:   2,
		PendingOutbound:   1,
		PendingInbound:    1,
		ActiveInvitations: 1,
	}, st)

	st, err = f.svc.Stats(ctx, f.head.ID)
	require.NoError(t, err)
	assert.Equal(t, connection.Stats{
		PendingRequests:   1,
		PendingInbound:    1,
		ActiveInvitations: 1,
	}, st)
}

func TestService_Redeem_concurrentSingleUse(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	code := f.classroomCode(t, intPtr(1))

	requesters := make([]user.User, 0, 20)
	for i := 0; i < 20; i++ {
		requesters = append(requesters, testutil.CreateUser(t, f.usrRepo, "Student", "", "", "", user.AccountStudent, true))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		exhausted int
	)
	for _, usr := range requesters {
		wg.Add(1)
		go func(usr user.User) {
			defer wg.Done()
			_, err := f.svc.Redeem(ctx, usr.ID, connection.RedeemInput{Code: code.Code.Code})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Cause(err) == invitation.ErrExhausted:
				exhausted++
			default:
				t.Errorf("Redeem() unexpected error = %v", err)
			}
		}(usr)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(requesters)-1, exhausted)

	pending, err := f.svc.ListPending(ctx, f.teacher.ID, directory.TargetClassroom, f.classroom.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestService_Respond_concurrentApprovals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	code := f.classroomCode(t, nil)

	req, err := f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: code.Code.Code})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Respond(ctx, f.teacher.ID, req.ID, connection.ActionApprove)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Cause(err) == joinrequest.ErrResolved {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, conflicts)

	enrs, err := f.memRepo.ListEnrollments(ctx, f.classroom.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
}

func TestService_Redeem_errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: "NOPE1234"})
		assert.Equal(t, invitation.ErrNotFound, errors.Cause(err))
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: "  "})
		assert.Error(t, err)
		assert.Nil(t, core.KindOf(err))
	})

	t.Run("expired code", func(t *testing.T) {
		exp := time.Now().Add(time.Hour)
		code := f.createCode(t, f.teacher, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: f.classroom.ID, ExpiresAt: &exp})

		defer func() { core.NowFunc = time.Now }()
		core.NowFunc = func() time.Time { return exp.Add(time.Minute) }

		_, err := f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: code.Code.Code})
		assert.Equal(t, invitation.ErrExpired, errors.Cause(err))
		assert.Equal(t, core.ErrBadRequest, core.KindOf(err))
	})

	t.Run("revoked code", func(t *testing.T) {
		code := f.classroomCode(t, nil)
		_, err := f.svc.RevokeCode(ctx, f.teacher.ID, code.ID)
		require.NoError(t, err)

		_, err = f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: code.Code.Code})
		assert.Equal(t, invitation.ErrExpired, errors.Cause(err))
	})

	t.Run("teachers cannot join classrooms", func(t *testing.T) {
		code := f.classroomCode(t, nil)
		_, err := f.svc.Redeem(ctx, f.stranger.ID, connection.RedeemInput{Code: code.Code.Code})
		var verr *core.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("code of another target type", func(t *testing.T) {
		code := f.classroomCode(t, nil)
		_, err := f.svc.Redeem(ctx, f.student.ID, connection.RedeemInput{Code: code.Code.Code, TargetType: directory.TargetFamily})
		assert.Equal(t, invitation.ErrNotFound, errors.Cause(err))
	})

	t.Run("unknown requester", func(t *testing.T) {
		code := f.classroomCode(t, nil)
		_, err := f.svc.Redeem(ctx, "ghost", connection.RedeemInput{Code: code.Code.Code})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}

func TestService_Respond_errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	code := f.classroomCode(t, nil)

	req, err := f.svc.Redeem(ctx, f.parent.ID, connection.RedeemInput{Code: code.Code.Code})
	require.NoError(t, err)

	t.Run("unknown request", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, f.teacher.ID, "not-a-uuid", connection.ActionApprove)
		assert.Equal(t, joinrequest.ErrNotFound, errors.Cause(err))
	})

	t.Run("not the manager", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, f.stranger.ID, req.ID, connection.ActionApprove)
		assert.Equal(t, connection.ErrForbidden, errors.Cause(err))

		stored, err := f.svc.ListMyRequests(ctx, f.parent.ID, joinrequest.StatusPending)
		require.NoError(t, err)
		assert.Len(t, stored, 1, "a refused response leaves the request pending")
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, f.teacher.ID, req.ID, "maybe")
		var verr *core.ValidationError
		assert.True(t, errors.As(err, &verr))

		rec := httptest.NewRecorder()
		f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, rec.Body.String(), `action="invalid"`)
		assert.NotContains(t, rec.Body.String(), `action="maybe"`)
	})

	t.Run("parent approved", func(t *testing.T) {
		dec, err := f.svc.Respond(ctx, f.teacher.ID, req.ID, connection.ActionApprove)
		require.NoError(t, err)
		require.NotNil(t, dec.Outcome)
		assert.Nil(t, dec.Outcome.Enrollment)
		if assert.NotNil(t, dec.Outcome.Connection) {
			assert.Equal(t, membership.ConnectionTeacherParent, dec.Outcome.Connection.Type)
		}
	})
}

func TestService_codes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("only managers create codes", func(t *testing.T) {
		_, err := f.svc.CreateCode(ctx, f.stranger.ID, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: f.classroom.ID})
		assert.Equal(t, connection.ErrForbidden, err)
		_, err = f.svc.CreateCode(ctx, f.teacher.ID, invitation.NewCode{TargetType: directory.TargetFamily, TargetID: f.family.ID})
		assert.Equal(t, connection.ErrForbidden, err)
	})

	t.Run("list and revoke", func(t *testing.T) {
		fam := f.createCode(t, f.head, invitation.NewCode{TargetType: directory.TargetFamily, TargetID: f.family.ID})
		f.createCode(t, f.teacher, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: f.classroom.ID})

		codes, err := f.svc.ListMyCodes(ctx, f.head.ID, "")
		require.NoError(t, err)
		if assert.Len(t, codes, 1) {
			assert.Equal(t, fam.ID, codes[0].ID)
		}
		codes, err = f.svc.ListMyCodes(ctx, f.head.ID, directory.TargetClassroom)
		require.NoError(t, err)
		assert.Empty(t, codes)

		_, err = f.svc.RevokeCode(ctx, f.teacher.ID, fam.ID)
		assert.Equal(t, connection.ErrForbidden, err)

		revoked, err := f.svc.RevokeCode(ctx, f.head.ID, fam.ID)
		require.NoError(t, err)
		assert.Equal(t, invitation.StatusExpired, revoked.Status)

		_, err = f.svc.RevokeCode(ctx, f.head.ID, "lol")
		assert.Equal(t, invitation.ErrNotFound, errors.Cause(err))
	})

	t.Run("pending filters", func(t *testing.T) {
		_, err := f.svc.ListPending(ctx, f.teacher.ID, "", f.classroom.ID)
		var verr *core.ValidationError
		assert.True(t, errors.As(err, &verr))

		_, err = f.svc.ListPending(ctx, f.teacher.ID, directory.TargetFamily, f.family.ID)
		assert.Equal(t, connection.ErrForbidden, err)

		_, err = f.svc.ListMyRequests(ctx, f.teacher.ID, "done")
		assert.True(t, errors.As(err, &verr))
	})
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]connection.Action{
		"approve": connection.ActionApprove,
		"Accept":  connection.ActionApprove,
		" reject": connection.ActionReject,
	} {
		got, err := connection.ParseAction(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := connection.ParseAction("ignore")
	assert.Error(t, err)
}
