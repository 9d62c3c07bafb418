package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/invitation"
)

const codeColumns = "code_id, code, target_type, target_id, created_by, max_uses, expires_at, revoked_at, created_at"

type codeRow struct {
	ID         string    `db:"code_id"`
	Code       string    `db:"code"`
	TargetType string    `db:"target_type"`
	TargetID   string    `db:"target_id"`
	CreatedBy  string    `db:"created_by"`
	MaxUses    null.Int  `db:"max_uses"`
	ExpiresAt  null.Time `db:"expires_at"`
	RevokedAt  null.Time `db:"revoked_at"`
	CreatedAt  time.Time `db:"created_at"`
}

func toCodeRow(c invitation.Code) codeRow {
	return codeRow{
		ID:         c.ID,
		Code:       c.Code,
		TargetType: string(c.TargetType),
		TargetID:   c.TargetID,
		CreatedBy:  c.CreatedBy,
		MaxUses:    null.IntFromPtr(c.MaxUses),
		ExpiresAt:  null.TimeFromPtr(c.ExpiresAt),
		RevokedAt:  null.TimeFromPtr(c.RevokedAt),
		CreatedAt:  c.CreatedAt.UTC(),
	}
}

func (row codeRow) code() invitation.Code {
	c := invitation.Code{
		ID:         row.ID,
		Code:       row.Code,
		TargetType: directory.TargetType(row.TargetType),
		TargetID:   row.TargetID,
		CreatedBy:  row.CreatedBy,
		MaxUses:    row.MaxUses.Ptr(),
		CreatedAt:  row.CreatedAt.UTC(),
	}
	if row.ExpiresAt.Valid {
		t := row.ExpiresAt.Time.UTC()
		c.ExpiresAt = &t
	}
	if row.RevokedAt.Valid {
		t := row.RevokedAt.Time.UTC()
		c.RevokedAt = &t
	}
	return c
}

type codeRepository struct {
	exec core.DBExecutor
}

var _ invitation.Repository = (*codeRepository)(nil) // interface compliance check

func NewCodeRepository(exec core.DBExecutor) *codeRepository {
	return &codeRepository{exec: exec}
}

func (repo codeRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	return getExec(repo.exec, svcExec)
}

// selectOne returns invitation.ErrNotFound when the query yields no row.
func (repo codeRepository) selectOne(ctx context.Context, exec core.DBExecutor, msg, query string, args ...interface{}) (invitation.Code, error) {
	var rows []codeRow
	if err := selectAll(ctx, exec, &rows, query, args...); err != nil {
		return invitation.Code{}, errors.Wrap(err, msg)
	}
	if len(rows) == 0 {
		return invitation.Code{}, invitation.ErrNotFound
	}
	return rows[0].code(), nil
}

func (repo codeRepository) InsertCode(ctx context.Context, c invitation.Code, exec ...core.DBExecutor) error {
	q := `INSERT INTO invitation_code (` + codeColumns + `)
		VALUES (:code_id, :code, :target_type, :target_id, :created_by, :max_uses, :expires_at, :revoked_at, :created_at)
		ON CONFLICT (code) DO NOTHING`

	res, err := namedExec(ctx, repo.getExec(exec), q, toCodeRow(c))
	if err != nil {
		return errors.Wrap(err, "inserting code")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "inserting code")
	}
	if n == 0 {
		return invitation.ErrDuplicateCode
	}
	return nil
}

func (repo codeRepository) GetCode(ctx context.Context, filter invitation.GetFilter, exec ...core.DBExecutor) (invitation.Code, error) {
	q := "SELECT " + codeColumns + " FROM invitation_code WHERE "
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return invitation.Code{}, invitation.ErrNotFound
		}
		return repo.selectOne(ctx, repo.getExec(exec), "getting code by ID", q+"code_id = ?", filter.ID)
	case filter.Code != "":
		return repo.selectOne(ctx, repo.getExec(exec), "getting code", q+"code = ?", filter.Code)
	}
	return invitation.Code{}, invitation.ErrNotFound
}

func (repo codeRepository) LockCode(ctx context.Context, id string, exec core.DBExecutor) (invitation.Code, error) {
	if _, err := uuid.Parse(id); err != nil {
		return invitation.Code{}, invitation.ErrNotFound
	}
	q := "SELECT " + codeColumns + " FROM invitation_code WHERE code_id = ? FOR UPDATE"
	return repo.selectOne(ctx, exec, "locking code", q, id)
}

func (repo codeRepository) CountUsage(ctx context.Context, ids []string, exec ...core.DBExecutor) (map[string]int, error) {
	counts := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	var rows []struct {
		CodeID string `db:"code_id"`
		Uses   int    `db:"uses"`
	}
	q := `SELECT code_id, COUNT(*) AS uses FROM join_request
		WHERE code_id IN (?) AND status IN ('pending', 'approved')
		GROUP BY code_id`
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, ids); err != nil {
		return nil, errors.Wrap(err, "counting code usage")
	}
	for _, row := range rows {
		counts[row.CodeID] = row.Uses
	}
	return counts, nil
}

func (repo codeRepository) RevokeCode(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (invitation.Code, error) {
	if _, err := uuid.Parse(id); err != nil {
		return invitation.Code{}, invitation.ErrNotFound
	}
	q := "UPDATE invitation_code SET revoked_at = COALESCE(revoked_at, ?) WHERE code_id = ? RETURNING " + codeColumns
	return repo.selectOne(ctx, repo.getExec(exec), "revoking code", q, at.UTC(), id)
}

func (repo codeRepository) QueryCodes(ctx context.Context, filter invitation.QueryFilter, exec ...core.DBExecutor) ([]invitation.Code, error) {
	q := "SELECT " + codeColumns + " FROM invitation_code WHERE created_by = ?"
	args := []interface{}{filter.CreatedBy}
	if filter.TargetType != "" {
		q += " AND target_type = ?"
		args = append(args, string(filter.TargetType))
	}
	q += " ORDER BY created_at DESC"

	var rows []codeRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying codes")
	}
	codes := make([]invitation.Code, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.code())
	}
	return codes, nil
}
