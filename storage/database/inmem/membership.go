package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/membership"
)

type membershipRepository struct {
	db *DB
}

var _ membership.Repository = (*membershipRepository)(nil) // interface compliance check

func NewMembershipRepository(db *DB) *membershipRepository {
	return &membershipRepository{db: db}
}

func (repo *membershipRepository) UpsertFamilyMember(_ context.Context, m membership.FamilyMember, exec ...core.DBExecutor) (membership.FamilyMember, error) {
	key := pairKey(m.FamilyID, m.UserID)
	repo.db.write(exec, func(t *tables) {
		if stored, ok := t.members[key]; ok {
			m = stored
			return
		}
		t.members[key] = m
	})
	return m, nil
}

func (repo *membershipRepository) UpsertEnrollment(_ context.Context, e membership.Enrollment, exec ...core.DBExecutor) (membership.Enrollment, error) {
	key := pairKey(e.ClassroomID, e.StudentID)
	repo.db.write(exec, func(t *tables) {
		if stored, ok := t.enrollments[key]; ok {
			e = stored
			return
		}
		t.enrollments[key] = e
	})
	return e, nil
}

func (repo *membershipRepository) UpsertConnection(_ context.Context, c membership.Connection, exec ...core.DBExecutor) (membership.Connection, error) {
	c.UserA, c.UserB = membership.CanonicalPair(c.UserA, c.UserB)
	key := c.Key()
	repo.db.write(exec, func(t *tables) {
		if stored, ok := t.connections[key]; ok {
			c = stored
			return
		}
		t.connections[key] = c
	})
	return c, nil
}

func (repo *membershipRepository) ListFamilyMembers(_ context.Context, familyID string, exec ...core.DBExecutor) ([]membership.FamilyMember, error) {
	members := make([]membership.FamilyMember, 0)
	repo.db.read(exec, func(t *tables) {
		for _, m := range t.members {
			if m.FamilyID == familyID {
				members = append(members, m)
			}
		}
	})
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members, nil
}

func (repo *membershipRepository) ListEnrollments(_ context.Context, classroomID string, exec ...core.DBExecutor) ([]membership.Enrollment, error) {
	enrs := make([]membership.Enrollment, 0)
	repo.db.read(exec, func(t *tables) {
		for _, e := range t.enrollments {
			if e.ClassroomID == classroomID {
				enrs = append(enrs, e)
			}
		}
	})
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].CreatedAt.Before(enrs[j].CreatedAt) })
	return enrs, nil
}

func (repo *membershipRepository) ListConnections(_ context.Context, userID string, exec ...core.DBExecutor) ([]membership.Connection, error) {
	conns := make([]membership.Connection, 0)
	repo.db.read(exec, func(t *tables) {
		for _, c := range t.connections {
			if c.UserA == userID || c.UserB == userID {
				conns = append(conns, c)
			}
		}
	})
	sort.Slice(conns, func(i, j int) bool { return conns[i].CreatedAt.Before(conns[j].CreatedAt) })
	return conns, nil
}
