package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/joinrequest"
)

type codeRepository struct {
	db *DB
}

var _ invitation.Repository = (*codeRepository)(nil) // interface compliance check

func NewCodeRepository(db *DB) *codeRepository {
	return &codeRepository{db: db}
}

func (repo *codeRepository) InsertCode(_ context.Context, c invitation.Code, exec ...core.DBExecutor) error {
	var err error
	repo.db.write(exec, func(t *tables) {
		for _, stored := range t.codes {
			if stored.Code == c.Code {
				err = invitation.ErrDuplicateCode
				return
			}
		}
		t.codes[c.ID] = c
	})
	return err
}

func (repo *codeRepository) GetCode(_ context.Context, filter invitation.GetFilter, exec ...core.DBExecutor) (invitation.Code, error) {
	var (
		found invitation.Code
		ok    bool
	)
	repo.db.read(exec, func(t *tables) {
		if filter.ID != "" {
			found, ok = t.codes[filter.ID]
			return
		}
		if filter.Code == "" {
			return
		}
		for _, c := range t.codes {
			if c.Code == filter.Code {
				found, ok = c, true
				return
			}
		}
	})
	if !ok {
		return invitation.Code{}, invitation.ErrNotFound
	}
	return found, nil
}

// LockCode is a plain read: a transaction already holds the whole database.
func (repo *codeRepository) LockCode(ctx context.Context, id string, exec core.DBExecutor) (invitation.Code, error) {
	return repo.GetCode(ctx, invitation.GetFilter{ID: id}, exec)
}

func (repo *codeRepository) CountUsage(_ context.Context, ids []string, exec ...core.DBExecutor) (map[string]int, error) {
	counts := make(map[string]int, len(ids))
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	repo.db.read(exec, func(t *tables) {
		for _, r := range t.requests {
			if r.CodeID == nil || !wanted[*r.CodeID] || r.Status == joinrequest.StatusRejected {
				continue
			}
			counts[*r.CodeID]++
		}
	})
	return counts, nil
}

func (repo *codeRepository) RevokeCode(_ context.Context, id string, at time.Time, exec ...core.DBExecutor) (invitation.Code, error) {
	var (
		c  invitation.Code
		ok bool
	)
	repo.db.write(exec, func(t *tables) {
		if c, ok = t.codes[id]; !ok {
			return
		}
		if c.RevokedAt == nil {
			revokedAt := at.UTC()
			c.RevokedAt = &revokedAt
			t.codes[id] = c
		}
	})
	if !ok {
		return invitation.Code{}, invitation.ErrNotFound
	}
	return c, nil
}

func (repo *codeRepository) QueryCodes(_ context.Context, filter invitation.QueryFilter, exec ...core.DBExecutor) ([]invitation.Code, error) {
	codes := make([]invitation.Code, 0)
	repo.db.read(exec, func(t *tables) {
		for _, c := range t.codes {
			if c.CreatedBy != filter.CreatedBy {
				continue
			}
			if filter.TargetType != "" && c.TargetType != filter.TargetType {
				continue
			}
			codes = append(codes, c)
		}
	})
	sort.Slice(codes, func(i, j int) bool { return codes[i].CreatedAt.After(codes[j].CreatedAt) })
	return codes, nil
}
