package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/joinrequest"
)

const requestColumns = "request_id, requester_id, target_type, target_id, relationship_type, message, code_id, status, requested_at, responded_at, responded_by"

type requestRow struct {
	ID               string      `db:"request_id"`
	RequesterID      string      `db:"requester_id"`
	TargetType       string      `db:"target_type"`
	TargetID         string      `db:"target_id"`
	RelationshipType string      `db:"relationship_type"`
	Message          null.String `db:"message"`
	CodeID           null.String `db:"code_id"`
	Status           string      `db:"status"`
	RequestedAt      time.Time   `db:"requested_at"`
	RespondedAt      null.Time   `db:"responded_at"`
	RespondedBy      null.String `db:"responded_by"`
}

func toRequestRow(r joinrequest.Request) requestRow {
	return requestRow{
		ID:               r.ID,
		RequesterID:      r.RequesterID,
		TargetType:       string(r.TargetType),
		TargetID:         r.TargetID,
		RelationshipType: r.RelationshipType,
		Message:          null.StringFromPtr(r.Message),
		CodeID:           null.StringFromPtr(r.CodeID),
		Status:           string(r.Status),
		RequestedAt:      r.RequestedAt.UTC(),
		RespondedAt:      null.TimeFromPtr(r.RespondedAt),
		RespondedBy:      null.StringFromPtr(r.RespondedBy),
	}
}

func (row requestRow) request() joinrequest.Request {
	r := joinrequest.Request{
		ID:               row.ID,
		RequesterID:      row.RequesterID,
		TargetType:       directory.TargetType(row.TargetType),
		TargetID:         row.TargetID,
		RelationshipType: row.RelationshipType,
		Message:          row.Message.Ptr(),
		CodeID:           row.CodeID.Ptr(),
		Status:           joinrequest.Status(row.Status),
		RequestedAt:      row.RequestedAt.UTC(),
		RespondedBy:      row.RespondedBy.Ptr(),
	}
	if row.RespondedAt.Valid {
		t := row.RespondedAt.Time.UTC()
		r.RespondedAt = &t
	}
	return r
}

type requestRepository struct {
	exec core.DBExecutor
}

var _ joinrequest.Repository = (*requestRepository)(nil) // interface compliance check

func NewRequestRepository(exec core.DBExecutor) *requestRepository {
	return &requestRepository{exec: exec}
}

func (repo requestRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	return getExec(repo.exec, svcExec)
}

func (repo requestRepository) query(ctx context.Context, exec core.DBExecutor, msg, q string, args ...interface{}) ([]joinrequest.Request, error) {
	var rows []requestRow
	if err := selectAll(ctx, exec, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, msg)
	}
	reqs := make([]joinrequest.Request, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, row.request())
	}
	return reqs, nil
}

func (repo requestRepository) selectOne(ctx context.Context, exec core.DBExecutor, msg, q string, args ...interface{}) (joinrequest.Request, error) {
	reqs, err := repo.query(ctx, exec, msg, q, args...)
	if err != nil {
		return joinrequest.Request{}, err
	}
	if len(reqs) == 0 {
		return joinrequest.Request{}, joinrequest.ErrNotFound
	}
	return reqs[0], nil
}

func (repo requestRepository) InsertRequest(ctx context.Context, r joinrequest.Request, exec ...core.DBExecutor) error {
	q := `INSERT INTO join_request (` + requestColumns + `)
		VALUES (:request_id, :requester_id, :target_type, :target_id, :relationship_type, :message, :code_id,
			:status, :requested_at, :responded_at, :responded_by)`
	_, err := namedExec(ctx, repo.getExec(exec), q, toRequestRow(r))
	return errors.Wrap(err, "inserting request")
}

func (repo requestRepository) GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (joinrequest.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return joinrequest.Request{}, joinrequest.ErrNotFound
	}
	q := "SELECT " + requestColumns + " FROM join_request WHERE request_id = ?"
	return repo.selectOne(ctx, repo.getExec(exec), "getting request", q, id)
}

func (repo requestRepository) LockRequest(ctx context.Context, id string, exec core.DBExecutor) (joinrequest.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return joinrequest.Request{}, joinrequest.ErrNotFound
	}
	q := "SELECT " + requestColumns + " FROM join_request WHERE request_id = ? FOR UPDATE"
	return repo.selectOne(ctx, exec, "locking request", q, id)
}

func (repo requestRepository) UpdateStatusIfPending(
	ctx context.Context, id string, status joinrequest.Status, actorID string, at time.Time, exec ...core.DBExecutor,
) (joinrequest.Request, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return joinrequest.Request{}, false, nil
	}
	q := `UPDATE join_request SET status = ?, responded_at = ?, responded_by = ?
		WHERE request_id = ? AND status = 'pending'
		RETURNING ` + requestColumns
	reqs, err := repo.query(ctx, repo.getExec(exec), "updating request status", q, string(status), at.UTC(), actorID, id)
	if err != nil || len(reqs) == 0 {
		return joinrequest.Request{}, false, err
	}
	return reqs[0], true, nil
}

func (repo requestRepository) QueryRequests(ctx context.Context, filter joinrequest.QueryFilter, exec ...core.DBExecutor) ([]joinrequest.Request, error) {
	var conds []string
	var args []interface{}

	if filter.RequesterID != "" {
		conds = append(conds, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.TargetType != "" {
		conds = append(conds, "target_type = ?")
		args = append(args, string(filter.TargetType))
	}
	if len(filter.TargetIDs) > 0 {
		conds = append(conds, "target_id IN (?)")
		args = append(args, filter.TargetIDs)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}

	q := "SELECT " + requestColumns + " FROM join_request"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY requested_at DESC"
	return repo.query(ctx, repo.getExec(exec), "querying requests", q, args...)
}
