package joinrequest

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/invitation"
)

type (
	Repository interface {
		InsertRequest(ctx context.Context, r Request, exec ...core.DBExecutor) error
		GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error)
		// LockRequest reads the request and holds a row lock on it until exec's transaction ends.
		LockRequest(ctx context.Context, id string, exec core.DBExecutor) (Request, error)
		// UpdateStatusIfPending moves a pending request to status in a single conditional write.
		// ok is false when no pending request with this id exists.
		UpdateStatusIfPending(ctx context.Context, id string, status Status, actorID string, at time.Time, exec ...core.DBExecutor) (r Request, ok bool, err error)
		// QueryRequests returns matching requests, newest first.
		QueryRequests(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Request, error)
	}

	// Store owns the join request lifecycle: pending on creation, then approved or rejected exactly once.
	Store struct {
		tx       core.Transactor
		repo     Repository
		codes    invitation.Repository
		validate *validator.Validate
	}
)

func NewStore(tx core.Transactor, repo Repository, codes invitation.Repository, validate *validator.Validate) *Store {
	return &Store{tx: tx, repo: repo, codes: codes, validate: validate}
}

// Create stores a new pending request.
// With a code, the code row is locked, its status is checked against the usage seen under the lock
// and the request inherits the code's target, all in the same transaction. Concurrent redeemers of one
// code are serialized on the lock, so a code never admits more than max_uses requests.
func (s *Store) Create(ctx context.Context, nr NewRequest, exec ...core.DBExecutor) (Request, error) {
	if err := nr.Validate(s.validate); err != nil {
		return Request{}, err
	}

	req := Request{
		ID:               uuid.New().String(),
		RequesterID:      nr.RequesterID,
		TargetType:       nr.TargetType,
		TargetID:         nr.TargetID,
		RelationshipType: nr.RelationshipType,
		Status:           StatusPending,
	}
	if nr.Message != "" {
		msg := nr.Message
		req.Message = &msg
	}

	err := core.RunInTx(ctx, s.tx, exec, func(ex core.DBExecutor) error {
		req.RequestedAt = core.Now()

		if nr.CodeID != "" {
			code, err := s.codes.LockCode(ctx, nr.CodeID, ex)
			if err != nil {
				return errors.Wrap(err, "locking code")
			}
			counts, err := s.codes.CountUsage(ctx, []string{code.ID}, ex)
			if err != nil {
				return errors.Wrap(err, "counting code usage")
			}
			if err = invitation.Check(code, req.RequestedAt, counts[code.ID]); err != nil {
				return err
			}
			codeID := code.ID
			req.CodeID = &codeID
			req.TargetType = code.TargetType
			req.TargetID = code.TargetID
		} else if !req.TargetType.Valid() {
			return directory.UnknownTargetError(req.TargetType)
		}

		return errors.Wrap(s.repo.InsertRequest(ctx, req, ex), "inserting request")
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

func (s *Store) Get(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, ErrNotFound
	}
	return s.repo.GetRequest(ctx, id, exec...)
}

// Lock reads a request under a row lock held until exec's transaction ends.
func (s *Store) Lock(ctx context.Context, id string, exec core.DBExecutor) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, ErrNotFound
	}
	return s.repo.LockRequest(ctx, id, exec)
}

// Transition resolves a pending request. It fails with ErrResolved when the request
// is no longer pending, whoever resolved it first.
func (s *Store) Transition(ctx context.Context, id string, status Status, actorID string, exec ...core.DBExecutor) (Request, error) {
	if status != StatusApproved && status != StatusRejected {
		return Request{}, core.NewValidationError(errors.Errorf("invalid transition to %q", status),
			core.FieldError{Field: "status", Error: "status must be one of [approved rejected]"})
	}

	req, ok, err := s.repo.UpdateStatusIfPending(ctx, id, status, actorID, core.Now(), exec...)
	if err != nil {
		return Request{}, errors.Wrap(err, "updating request status")
	}
	if !ok {
		if _, err = s.Get(ctx, id, exec...); err != nil {
			return Request{}, err
		}
		return Request{}, ErrResolved
	}
	return req, nil
}

// ListPending returns the pending requests on the given targets, newest first.
func (s *Store) ListPending(ctx context.Context, tt directory.TargetType, targetIDs []string, exec ...core.DBExecutor) ([]Request, error) {
	if len(targetIDs) == 0 {
		return []Request{}, nil
	}
	reqs, err := s.repo.QueryRequests(ctx, QueryFilter{TargetType: tt, TargetIDs: targetIDs, Status: StatusPending}, exec...)
	return reqs, errors.Wrap(err, "querying pending requests")
}

// ListByRequester returns a user's own requests, newest first. status is optional.
func (s *Store) ListByRequester(ctx context.Context, requesterID string, status Status, exec ...core.DBExecutor) ([]Request, error) {
	reqs, err := s.repo.QueryRequests(ctx, QueryFilter{RequesterID: requesterID, Status: status}, exec...)
	return reqs, errors.Wrap(err, "querying requests")
}
