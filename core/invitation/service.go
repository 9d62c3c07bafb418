package invitation

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
)

type (
	Repository interface {
		// InsertCode returns ErrDuplicateCode when c.Code is taken, without aborting the surrounding transaction.
		InsertCode(ctx context.Context, c Code, exec ...core.DBExecutor) error
		GetCode(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Code, error)
		// LockCode reads the code and holds a row lock on it until exec's transaction ends.
		LockCode(ctx context.Context, id string, exec core.DBExecutor) (Code, error)
		// CountUsage counts the pending and approved join requests created from each code.
		CountUsage(ctx context.Context, ids []string, exec ...core.DBExecutor) (map[string]int, error)
		// RevokeCode sets revoked_at unless already set and returns the stored code.
		RevokeCode(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (Code, error)
		QueryCodes(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Code, error)
	}

	// Registry creates, looks up and revokes invitation codes.
	// Callers are responsible for authorization.
	Registry struct {
		repo       Repository
		validate   *validator.Validate
		codeLength int
		maxRetries int
		familyTTL  time.Duration

		generate func(tt directory.TargetType, length int) (string, error)
	}
)

func NewRegistry(repo Repository, validate *validator.Validate, conf *core.Config) *Registry {
	length := conf.Invitations.CodeLength
	if length <= 0 {
		length = 8
	}
	retries := conf.Invitations.MaxCodeRetries
	if retries <= 0 {
		retries = 10
	}
	return &Registry{
		repo:       repo,
		validate:   validate,
		codeLength: length,
		maxRetries: retries,
		familyTTL:  conf.Invitations.DefaultFamilyTTL,
		generate:   GenerateCode,
	}
}

// Create validates nc and stores a new code.
// Generated codes are retried on collision, the last attempt with a longer code.
func (reg *Registry) Create(ctx context.Context, nc NewCode, exec ...core.DBExecutor) (Code, error) {
	now := core.Now()
	if err := nc.Validate(reg.validate, now); err != nil {
		return Code{}, err
	}

	c := Code{
		ID:         uuid.New().String(),
		TargetType: nc.TargetType,
		TargetID:   nc.TargetID,
		CreatedBy:  nc.CreatedBy,
		MaxUses:    nc.MaxUses,
		ExpiresAt:  nc.ExpiresAt,
		CreatedAt:  now,
	}
	switch {
	case nc.ExpiresInHours > 0:
		exp := now.Add(time.Duration(nc.ExpiresInHours) * time.Hour)
		c.ExpiresAt = &exp
	case c.ExpiresAt == nil && c.TargetType == directory.TargetFamily && reg.familyTTL > 0:
		exp := now.Add(reg.familyTTL)
		c.ExpiresAt = &exp
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.UTC().Truncate(time.Microsecond)
		c.ExpiresAt = &exp
	}

	if nc.Code != "" {
		c.Code = nc.Code
		if err := reg.repo.InsertCode(ctx, c, exec...); err != nil {
			if errors.Cause(err) == ErrDuplicateCode {
				return Code{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
			}
			return Code{}, errors.Wrap(err, "inserting code")
		}
		return c, nil
	}

	for attempt := 0; attempt <= reg.maxRetries; attempt++ {
		length := reg.codeLength
		if attempt == reg.maxRetries {
			length += 2
		}
		token, err := reg.generate(c.TargetType, length)
		if err != nil {
			return Code{}, errors.Wrap(err, "generating code")
		}
		c.Code = token

		err = reg.repo.InsertCode(ctx, c, exec...)
		if err == nil {
			return c, nil
		}
		if errors.Cause(err) != ErrDuplicateCode {
			return Code{}, errors.Wrap(err, "inserting code")
		}
	}
	return Code{}, errors.Wrapf(ErrDuplicateCode, "no unique code after %d attempts", reg.maxRetries+1)
}

// Lookup finds a code by its value. Values are matched case-insensitively.
func (reg *Registry) Lookup(ctx context.Context, code string, exec ...core.DBExecutor) (Code, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Code{}, ErrNotFound
	}
	return reg.repo.GetCode(ctx, GetFilter{Code: code}, exec...)
}

func (reg *Registry) Get(ctx context.Context, id string, exec ...core.DBExecutor) (Code, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Code{}, ErrNotFound
	}
	return reg.repo.GetCode(ctx, GetFilter{ID: id}, exec...)
}

// Usage counts the join requests that currently consume c: pending and approved ones.
func (reg *Registry) Usage(ctx context.Context, id string, exec ...core.DBExecutor) (int, error) {
	counts, err := reg.repo.CountUsage(ctx, []string{id}, exec...)
	if err != nil {
		return 0, errors.Wrap(err, "counting code usage")
	}
	return counts[id], nil
}

// Summarize returns c with its usage and status as of now.
func (reg *Registry) Summarize(ctx context.Context, c Code, exec ...core.DBExecutor) (Summary, error) {
	uses, err := reg.Usage(ctx, c.ID, exec...)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(c, core.Now(), uses), nil
}

// Revoke makes the code permanently expired. Revoking twice is a no-op.
func (reg *Registry) Revoke(ctx context.Context, id string, exec ...core.DBExecutor) (Code, error) {
	c, err := reg.repo.RevokeCode(ctx, id, core.Now(), exec...)
	if err != nil {
		return Code{}, errors.Wrap(err, "revoking code")
	}
	return c, nil
}

// ListByCreator returns the codes created by a user, newest first.
func (reg *Registry) ListByCreator(ctx context.Context, creatorID string, tt directory.TargetType) ([]Summary, error) {
	codes, err := reg.repo.QueryCodes(ctx, QueryFilter{CreatedBy: creatorID, TargetType: tt})
	if err != nil {
		return nil, errors.Wrap(err, "querying codes")
	}
	if len(codes) == 0 {
		return []Summary{}, nil
	}

	ids := make([]string, 0, len(codes))
	for _, c := range codes {
		ids = append(ids, c.ID)
	}
	counts, err := reg.repo.CountUsage(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "counting code usage")
	}

	now := core.Now()
	summaries := make([]Summary, 0, len(codes))
	for _, c := range codes {
		summaries = append(summaries, Summarize(c, now, counts[c.ID]))
	}
	return summaries, nil
}
