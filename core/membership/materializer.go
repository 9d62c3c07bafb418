package membership

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/user"
)

var errUnsupportedRequester = errors.New("only students and parents can join a classroom")

type (
	// Repository writes membership outcomes. Rows are created, never mutated.
	// Every Upsert inserts the row unless its key exists and returns the stored row.
	Repository interface {
		UpsertFamilyMember(ctx context.Context, m FamilyMember, exec ...core.DBExecutor) (FamilyMember, error)
		UpsertEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		UpsertConnection(ctx context.Context, c Connection, exec ...core.DBExecutor) (Connection, error)

		ListFamilyMembers(ctx context.Context, familyID string, exec ...core.DBExecutor) ([]FamilyMember, error)
		ListEnrollments(ctx context.Context, classroomID string, exec ...core.DBExecutor) ([]Enrollment, error)
		ListConnections(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Connection, error)
	}

	// Materializer applies the side effects of an approved join request.
	Materializer struct {
		repo  Repository
		dir   directory.Repository
		users user.Repository
	}
)

func NewMaterializer(repo Repository, dir directory.Repository, users user.Repository) *Materializer {
	return &Materializer{repo: repo, dir: dir, users: users}
}

// CheckRequester fails when usr can never be admitted to a target of type tt.
func CheckRequester(usr user.User, tt directory.TargetType) error {
	if tt == directory.TargetClassroom && !(usr.IsStudent() || usr.IsParent()) {
		return core.NewValidationError(errUnsupportedRequester)
	}
	return nil
}

// Apply materializes req. It is idempotent: applying the same request twice yields the same rows.
// exec must be the transaction the request is approved in.
func (m *Materializer) Apply(ctx context.Context, req joinrequest.Request, exec core.DBExecutor) (Outcome, error) {
	switch req.TargetType {
	case directory.TargetFamily:
		return m.applyFamily(ctx, req, exec)
	case directory.TargetClassroom:
		return m.applyClassroom(ctx, req, exec)
	}
	return Outcome{}, directory.UnknownTargetError(req.TargetType)
}

func (m *Materializer) applyFamily(ctx context.Context, req joinrequest.Request, exec core.DBExecutor) (Outcome, error) {
	var out Outcome
	now := core.Now()

	fam, err := m.dir.GetFamily(ctx, req.TargetID, exec)
	if err != nil {
		return out, errors.Wrap(err, "getting family")
	}

	member, err := m.repo.UpsertFamilyMember(ctx, FamilyMember{
		FamilyID:  fam.ID,
		UserID:    req.RequesterID,
		Role:      req.RelationshipType,
		CreatedAt: now,
	}, exec)
	if err != nil {
		return out, errors.Wrap(err, "upserting family member")
	}
	out.FamilyMember = &member

	if fam.HeadID != req.RequesterID {
		conn := NewConnection(fam.HeadID, req.RequesterID, ConnectionFamily)
		conn.CreatedAt = now
		if conn, err = m.repo.UpsertConnection(ctx, conn, exec); err != nil {
			return out, errors.Wrap(err, "upserting family connection")
		}
		out.Connection = &conn
	}
	return out, nil
}

func (m *Materializer) applyClassroom(ctx context.Context, req joinrequest.Request, exec core.DBExecutor) (Outcome, error) {
	var out Outcome
	now := core.Now()

	cls, err := m.dir.GetClassroom(ctx, req.TargetID, exec)
	if err != nil {
		return out, errors.Wrap(err, "getting classroom")
	}
	requester, err := m.users.GetUser(ctx, user.GetFilter{ID: req.RequesterID}, exec)
	if err != nil {
		return out, errors.Wrap(err, "getting requester")
	}
	if err = CheckRequester(requester, directory.TargetClassroom); err != nil {
		return out, err
	}

	connType := ConnectionTeacherParent
	if requester.IsStudent() {
		connType = ConnectionTeacherStudent

		_, created, err := m.dir.EnsureStudent(ctx, directory.StudentProfile{
			ID:        requester.ID,
			Name:      requester.Name,
			Email:     requester.Email,
			CreatedAt: now,
		}, exec)
		if err != nil {
			return out, errors.Wrap(err, "ensuring student profile")
		}
		out.StudentCreated = created

		enr, err := m.repo.UpsertEnrollment(ctx, Enrollment{ClassroomID: cls.ID, StudentID: requester.ID, CreatedAt: now}, exec)
		if err != nil {
			return out, errors.Wrap(err, "upserting enrollment")
		}
		out.Enrollment = &enr
	}

	if cls.OwnerID != requester.ID {
		conn := NewConnection(cls.OwnerID, requester.ID, connType)
		conn.CreatedAt = now
		if conn, err = m.repo.UpsertConnection(ctx, conn, exec); err != nil {
			return out, errors.Wrap(err, "upserting classroom connection")
		}
		out.Connection = &conn
	}
	return out, nil
}
