package connection

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/authz"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/membership"
	"github.com/trezcool/jumuiya/core/user"
)

type (
	// Metrics records the outcome of redemptions and responses.
	Metrics interface {
		ObserveRedeem(outcome string)
		ObserveResponse(action, outcome string)
	}

	Deps struct {
		Tx           core.Transactor
		Codes        *invitation.Registry
		Requests     *joinrequest.Store
		Authz        *authz.Resolver
		Materializer *membership.Materializer
		Memberships  membership.Repository
		Directory    directory.Repository
		Users        user.Repository
		MailSvc      core.EmailService
		Logger       core.Logger
		Metrics      Metrics // optional
		Validate     *validator.Validate
	}

	// Service is the entry point of the connection flows: users redeem codes into join requests,
	// managers approve or reject them.
	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	return &Service{Deps: deps}
}

// Redeem turns a code into a pending join request from requesterID.
func (svc *Service) Redeem(ctx context.Context, requesterID string, in RedeemInput) (req joinrequest.Request, err error) {
	defer func() { svc.Metrics.ObserveRedeem(outcomeOf(err)) }()

	if err = in.Validate(svc.Validate); err != nil {
		return req, err
	}
	requester, err := svc.Users.GetUser(ctx, user.GetFilter{ID: requesterID})
	if err != nil {
		return req, errors.Wrap(err, "getting requester")
	}

	code, err := svc.Codes.Lookup(ctx, in.Code)
	if err != nil {
		return req, errors.Wrap(err, "looking up code")
	}
	if in.TargetType != "" && code.TargetType != in.TargetType {
		return req, invitation.ErrNotFound
	}
	// fail fast; the store checks again under the code lock
	summary, err := svc.Codes.Summarize(ctx, code)
	if err != nil {
		return req, err
	}
	if err = invitation.Check(code, core.Now(), summary.UsageCount); err != nil {
		return req, err
	}
	if err = membership.CheckRequester(requester, code.TargetType); err != nil {
		return req, err
	}

	rel := in.RelationshipType
	if rel == "" {
		rel = defaultRelationship(requester, code.TargetType)
	}
	req, err = svc.Requests.Create(ctx, joinrequest.NewRequest{
		RequesterID:      requester.ID,
		CodeID:           code.ID,
		RelationshipType: rel,
		Message:          in.Message,
	})
	if err != nil {
		return req, errors.Wrap(err, "creating join request")
	}

	svc.notifyRequestReceived(ctx, req, requester)
	return req, nil
}

// Respond applies a manager's decision on a pending request, atomically.
// A missing request fails with joinrequest.ErrNotFound, a resolved one with joinrequest.ErrResolved;
// only then is the actor's authority checked, fresh, against the current directory.
func (svc *Service) Respond(ctx context.Context, actorID, requestID string, action Action) (dec Decision, err error) {
	defer func() { svc.Metrics.ObserveResponse(actionLabel(action), outcomeOf(err)) }()

	if action != ActionApprove && action != ActionReject {
		_, err = ParseAction(string(action))
		return dec, err
	}

	err = svc.Tx.InTx(ctx, func(exec core.DBExecutor) error {
		dec = Decision{}

		req, err := svc.Requests.Lock(ctx, requestID, exec)
		if err != nil {
			return err
		}
		if !req.IsPending() {
			return joinrequest.ErrResolved
		}
		ok, err := svc.Authz.CanManage(ctx, actorID, req.TargetType, req.TargetID, exec)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}

		status := joinrequest.StatusRejected
		if action == ActionApprove {
			status = joinrequest.StatusApproved
			out, err := svc.Materializer.Apply(ctx, req, exec)
			if err != nil {
				return errors.Wrap(err, "materializing membership")
			}
			dec.Outcome = &out
		}
		dec.Request, err = svc.Requests.Transition(ctx, req.ID, status, actorID, exec)
		return err
	})
	if err != nil {
		return Decision{}, err
	}

	svc.notifyRequestDecided(ctx, dec.Request)
	return dec, nil
}

// CreateCode creates an invitation code on a target the actor manages.
func (svc *Service) CreateCode(ctx context.Context, actorID string, nc invitation.NewCode) (invitation.Summary, error) {
	if err := nc.Validate(svc.Validate, core.Now()); err != nil {
		return invitation.Summary{}, err
	}
	if err := svc.authorize(ctx, actorID, nc.TargetType, nc.TargetID); err != nil {
		return invitation.Summary{}, err
	}

	nc.CreatedBy = actorID
	code, err := svc.Codes.Create(ctx, nc)
	if err != nil {
		return invitation.Summary{}, errors.Wrap(err, "creating code")
	}
	return invitation.Summarize(code, core.Now(), 0), nil
}

// LookupCode returns a code with its status. Anyone who knows a code may look it up.
func (svc *Service) LookupCode(ctx context.Context, code string) (invitation.Summary, error) {
	c, err := svc.Codes.Lookup(ctx, code)
	if err != nil {
		return invitation.Summary{}, errors.Wrap(err, "looking up code")
	}
	return svc.Codes.Summarize(ctx, c)
}

// RevokeCode revokes a code. Allowed to its creator and to the current manager of its target.
func (svc *Service) RevokeCode(ctx context.Context, actorID, codeID string) (invitation.Summary, error) {
	code, err := svc.Codes.Get(ctx, codeID)
	if err != nil {
		return invitation.Summary{}, errors.Wrap(err, "getting code")
	}
	if code.CreatedBy != actorID {
		if err = svc.authorize(ctx, actorID, code.TargetType, code.TargetID); err != nil {
			return invitation.Summary{}, err
		}
	}
	if code, err = svc.Codes.Revoke(ctx, code.ID); err != nil {
		return invitation.Summary{}, err
	}
	return svc.Codes.Summarize(ctx, code)
}

// ListMyCodes lists the codes created by the actor. tt is optional.
func (svc *Service) ListMyCodes(ctx context.Context, actorID string, tt directory.TargetType) ([]invitation.Summary, error) {
	if tt != "" && !tt.Valid() {
		return nil, directory.UnknownTargetError(tt)
	}
	return svc.Codes.ListByCreator(ctx, actorID, tt)
}

// ListPending lists the pending requests the actor may respond to, newest first.
// tt and targetID narrow the listing down; asking for a target the actor does not manage is forbidden.
func (svc *Service) ListPending(ctx context.Context, actorID string, tt directory.TargetType, targetID string) ([]joinrequest.Request, error) {
	types := []directory.TargetType{directory.TargetFamily, directory.TargetClassroom}
	if tt != "" {
		if !tt.Valid() {
			return nil, directory.UnknownTargetError(tt)
		}
		types = []directory.TargetType{tt}
	} else if targetID != "" {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "target_type", Error: "target_type is required with target_id"})
	}

	pending := make([]joinrequest.Request, 0)
	for _, t := range types {
		ids, err := svc.Authz.ManagedTargets(ctx, actorID, t)
		if err != nil {
			return nil, err
		}
		if targetID != "" {
			if !contains(ids, targetID) {
				return nil, ErrForbidden
			}
			ids = []string{targetID}
		}
		reqs, err := svc.Requests.ListPending(ctx, t, ids)
		if err != nil {
			return nil, err
		}
		pending = append(pending, reqs...)
	}

	sort.SliceStable(pending, func(i, j int) bool { return pending[i].RequestedAt.After(pending[j].RequestedAt) })
	return pending, nil
}

// ListMyRequests lists the actor's own requests, newest first. status is optional.
func (svc *Service) ListMyRequests(ctx context.Context, actorID string, status joinrequest.Status) ([]joinrequest.Request, error) {
	switch status {
	case "", joinrequest.StatusPending, joinrequest.StatusApproved, joinrequest.StatusRejected:
	default:
		return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "status must be one of [pending approved rejected]"})
	}
	return svc.Requests.ListByRequester(ctx, actorID, status)
}

// ListConnections lists the connections of the actor.
func (svc *Service) ListConnections(ctx context.Context, actorID string) ([]membership.Connection, error) {
	conns, err := svc.Memberships.ListConnections(ctx, actorID)
	return conns, errors.Wrap(err, "listing connections")
}

// ListFamilyMembers lists the members of a family the actor heads.
func (svc *Service) ListFamilyMembers(ctx context.Context, actorID, familyID string) ([]membership.FamilyMember, error) {
	if err := svc.authorize(ctx, actorID, directory.TargetFamily, familyID); err != nil {
		return nil, err
	}
	members, err := svc.Memberships.ListFamilyMembers(ctx, familyID)
	return members, errors.Wrap(err, "listing family members")
}

// ListClassroomStudents lists the enrollments of a classroom the actor owns.
func (svc *Service) ListClassroomStudents(ctx context.Context, actorID, classroomID string) ([]membership.Enrollment, error) {
	if err := svc.authorize(ctx, actorID, directory.TargetClassroom, classroomID); err != nil {
		return nil, err
	}
	enrs, err := svc.Memberships.ListEnrollments(ctx, classroomID)
	return enrs, errors.Wrap(err, "listing classroom students")
}

func (svc *Service) authorize(ctx context.Context, actorID string, tt directory.TargetType, targetID string) error {
	ok, err := svc.Authz.CanManage(ctx, actorID, tt, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
