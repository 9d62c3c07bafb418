package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/joinrequest"
)

type requestRepository struct {
	db *DB
}

var _ joinrequest.Repository = (*requestRepository)(nil) // interface compliance check

func NewRequestRepository(db *DB) *requestRepository {
	return &requestRepository{db: db}
}

func (repo *requestRepository) InsertRequest(_ context.Context, r joinrequest.Request, exec ...core.DBExecutor) error {
	repo.db.write(exec, func(t *tables) { t.requests[r.ID] = r })
	return nil
}

func (repo *requestRepository) GetRequest(_ context.Context, id string, exec ...core.DBExecutor) (joinrequest.Request, error) {
	var (
		r  joinrequest.Request
		ok bool
	)
	repo.db.read(exec, func(t *tables) { r, ok = t.requests[id] })
	if !ok {
		return joinrequest.Request{}, joinrequest.ErrNotFound
	}
	return r, nil
}

// LockRequest is a plain read: a transaction already holds the whole database.
func (repo *requestRepository) LockRequest(ctx context.Context, id string, exec core.DBExecutor) (joinrequest.Request, error) {
	return repo.GetRequest(ctx, id, exec)
}

func (repo *requestRepository) UpdateStatusIfPending(
	_ context.Context, id string, status joinrequest.Status, actorID string, at time.Time, exec ...core.DBExecutor,
) (joinrequest.Request, bool, error) {
	var (
		r  joinrequest.Request
		ok bool
	)
	repo.db.write(exec, func(t *tables) {
		r, ok = t.requests[id]
		if !ok || !r.IsPending() {
			ok = false
			return
		}
		respondedAt, respondedBy := at.UTC(), actorID
		r.Status = status
		r.RespondedAt = &respondedAt
		r.RespondedBy = &respondedBy
		t.requests[id] = r
	})
	if !ok {
		return joinrequest.Request{}, false, nil
	}
	return r, true, nil
}

func (repo *requestRepository) QueryRequests(_ context.Context, filter joinrequest.QueryFilter, exec ...core.DBExecutor) ([]joinrequest.Request, error) {
	var targets map[string]bool
	if len(filter.TargetIDs) > 0 {
		targets = make(map[string]bool, len(filter.TargetIDs))
		for _, id := range filter.TargetIDs {
			targets[id] = true
		}
	}

	reqs := make([]joinrequest.Request, 0)
	repo.db.read(exec, func(t *tables) {
		for _, r := range t.requests {
			switch {
			case filter.RequesterID != "" && r.RequesterID != filter.RequesterID,
				filter.TargetType != "" && r.TargetType != filter.TargetType,
				targets != nil && !targets[r.TargetID],
				filter.Status != "" && r.Status != filter.Status:
				continue
			}
			reqs = append(reqs, r)
		}
	})
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.After(reqs[j].RequestedAt) })
	return reqs, nil
}
