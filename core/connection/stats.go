package connection

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/membership"
)

// Stats sums up a user's connection activity.
type Stats struct {
	TotalConnections   int `json:"total_connections"`
	TeacherConnections int `json:"teacher_connections"`
	ParentConnections  int `json:"parent_connections"`
	FamilyConnections  int `json:"family_connections"`

	// PendingRequests is PendingOutbound + PendingInbound.
	PendingRequests int `json:"pending_requests"`
	PendingOutbound int `json:"pending_outbound"`
	PendingInbound  int `json:"pending_inbound"`

	ActiveInvitations int `json:"active_invitations"`
}

// Stats counts the actor's connections by type, the pending requests they sent or may respond to,
// and the codes they created that can still be redeemed.
func (svc *Service) Stats(ctx context.Context, actorID string) (Stats, error) {
	var st Stats

	conns, err := svc.Memberships.ListConnections(ctx, actorID)
	if err != nil {
		return st, errors.Wrap(err, "listing connections")
	}
	st.TotalConnections = len(conns)
	for _, c := range conns {
		switch c.Type {
		case membership.ConnectionTeacherStudent:
			st.TeacherConnections++
		case membership.ConnectionTeacherParent:
			st.ParentConnections++
		case membership.ConnectionFamily:
			st.FamilyConnections++
		}
	}

	outbound, err := svc.Requests.ListByRequester(ctx, actorID, joinrequest.StatusPending)
	if err != nil {
		return st, err
	}
	inbound, err := svc.ListPending(ctx, actorID, "", "")
	if err != nil {
		return st, err
	}
	st.PendingOutbound = len(outbound)
	st.PendingInbound = len(inbound)
	st.PendingRequests = st.PendingOutbound + st.PendingInbound

	codes, err := svc.Codes.ListByCreator(ctx, actorID, "")
	if err != nil {
		return st, errors.Wrap(err, "listing codes")
	}
	now := core.Now()
	for _, c := range codes {
		if invitation.StatusOf(c.Code, now, c.UsageCount) == invitation.StatusActive {
			st.ActiveInvitations++
		}
	}
	return st, nil
}
