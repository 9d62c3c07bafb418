package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/membership"
)

type (
	familyMemberRow struct {
		FamilyID  string    `boil:"family_id"`
		UserID    string    `boil:"user_id"`
		Role      string    `boil:"role"`
		CreatedAt time.Time `boil:"created_at"`
	}

	enrollmentRow struct {
		ClassroomID string    `boil:"classroom_id"`
		StudentID   string    `boil:"student_id"`
		CreatedAt   time.Time `boil:"created_at"`
	}

	connectionRow struct {
		UserA     string    `boil:"user_a"`
		UserB     string    `boil:"user_b"`
		Type      string    `boil:"type"`
		CreatedAt time.Time `boil:"created_at"`
	}
)

func (row familyMemberRow) unboil() membership.FamilyMember {
	return membership.FamilyMember{FamilyID: row.FamilyID, UserID: row.UserID, Role: row.Role, CreatedAt: row.CreatedAt.UTC()}
}

func (row enrollmentRow) unboil() membership.Enrollment {
	return membership.Enrollment{ClassroomID: row.ClassroomID, StudentID: row.StudentID, CreatedAt: row.CreatedAt.UTC()}
}

func (row connectionRow) unboil() membership.Connection {
	return membership.Connection{
		UserA:     row.UserA,
		UserB:     row.UserB,
		Type:      membership.ConnectionType(row.Type),
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type membershipRepository struct {
	exec core.DBExecutor
}

var _ membership.Repository = (*membershipRepository)(nil) // interface compliance check

func NewMembershipRepository(exec core.DBExecutor) *membershipRepository {
	return &membershipRepository{exec: exec}
}

func (repo membershipRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// Upserts insert with ON CONFLICT DO NOTHING, which never aborts the surrounding transaction,
// then read back the stored row.

func (repo membershipRepository) UpsertFamilyMember(ctx context.Context, m membership.FamilyMember, exec ...core.DBExecutor) (membership.FamilyMember, error) {
	exe := repo.getExec(exec)
	ins := `INSERT INTO family_member (family_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (family_id, user_id) DO NOTHING`
	if _, err := queries.Raw(ins, m.FamilyID, m.UserID, m.Role, m.CreatedAt.UTC()).ExecContext(ctx, exe); err != nil {
		return membership.FamilyMember{}, errors.Wrap(err, "inserting family member")
	}

	var row familyMemberRow
	sel := `SELECT family_id, user_id, role, created_at FROM family_member WHERE family_id = $1 AND user_id = $2`
	if err := queries.Raw(sel, m.FamilyID, m.UserID).Bind(ctx, exe, &row); err != nil {
		return membership.FamilyMember{}, errors.Wrap(err, "getting family member")
	}
	return row.unboil(), nil
}

func (repo membershipRepository) UpsertEnrollment(ctx context.Context, e membership.Enrollment, exec ...core.DBExecutor) (membership.Enrollment, error) {
	exe := repo.getExec(exec)
	ins := `INSERT INTO classroom_student (classroom_id, student_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (classroom_id, student_id) DO NOTHING`
	if _, err := queries.Raw(ins, e.ClassroomID, e.StudentID, e.CreatedAt.UTC()).ExecContext(ctx, exe); err != nil {
		return membership.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}

	var row enrollmentRow
	sel := `SELECT classroom_id, student_id, created_at FROM classroom_student WHERE classroom_id = $1 AND student_id = $2`
	if err := queries.Raw(sel, e.ClassroomID, e.StudentID).Bind(ctx, exe, &row); err != nil {
		return membership.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return row.unboil(), nil
}

func (repo membershipRepository) UpsertConnection(ctx context.Context, c membership.Connection, exec ...core.DBExecutor) (membership.Connection, error) {
	exe := repo.getExec(exec)
	c.UserA, c.UserB = membership.CanonicalPair(c.UserA, c.UserB)

	ins := `INSERT INTO user_connection (user_a, user_b, type, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_a, user_b, type) DO NOTHING`
	if _, err := queries.Raw(ins, c.UserA, c.UserB, string(c.Type), c.CreatedAt.UTC()).ExecContext(ctx, exe); err != nil {
		return membership.Connection{}, errors.Wrap(err, "inserting connection")
	}

	var row connectionRow
	sel := `SELECT user_a, user_b, type, created_at FROM user_connection WHERE user_a = $1 AND user_b = $2 AND type = $3`
	if err := queries.Raw(sel, c.UserA, c.UserB, string(c.Type)).Bind(ctx, exe, &row); err != nil {
		return membership.Connection{}, errors.Wrap(err, "getting connection")
	}
	return row.unboil(), nil
}

func (repo membershipRepository) ListFamilyMembers(ctx context.Context, familyID string, exec ...core.DBExecutor) ([]membership.FamilyMember, error) {
	members := make([]membership.FamilyMember, 0)
	if _, err := uuid.Parse(familyID); err != nil {
		return members, nil
	}

	var rows []familyMemberRow
	q := `SELECT family_id, user_id, role, created_at FROM family_member WHERE family_id = $1 ORDER BY created_at`
	if err := queries.Raw(q, familyID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying family members")
	}
	for _, row := range rows {
		members = append(members, row.unboil())
	}
	return members, nil
}

func (repo membershipRepository) ListEnrollments(ctx context.Context, classroomID string, exec ...core.DBExecutor) ([]membership.Enrollment, error) {
	enrs := make([]membership.Enrollment, 0)
	if _, err := uuid.Parse(classroomID); err != nil {
		return enrs, nil
	}

	var rows []enrollmentRow
	q := `SELECT classroom_id, student_id, created_at FROM classroom_student WHERE classroom_id = $1 ORDER BY created_at`
	if err := queries.Raw(q, classroomID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	for _, row := range rows {
		enrs = append(enrs, row.unboil())
	}
	return enrs, nil
}

func (repo membershipRepository) ListConnections(ctx context.Context, userID string, exec ...core.DBExecutor) ([]membership.Connection, error) {
	conns := make([]membership.Connection, 0)
	if _, err := uuid.Parse(userID); err != nil {
		return conns, nil
	}

	var rows []connectionRow
	q := `SELECT user_a, user_b, type, created_at FROM user_connection WHERE user_a = $1 OR user_b = $1 ORDER BY created_at`
	if err := queries.Raw(q, userID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying connections")
	}
	for _, row := range rows {
		conns = append(conns, row.unboil())
	}
	return conns, nil
}
