package connection

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/user"
)

type (
	requestReceivedData struct {
		RecipientName    string
		RequesterName    string
		TargetName       string
		RelationshipType string
		Message          string
	}

	requestDecidedData struct {
		RecipientName string
		TargetName    string
		Status        string
	}
)

// notifyRequestReceived emails the manager of the request's target. Failures are logged, never returned.
func (svc *Service) notifyRequestReceived(ctx context.Context, req joinrequest.Request, requester user.User) {
	if svc.MailSvc == nil {
		return
	}

	var managerID, targetName string
	switch req.TargetType {
	case directory.TargetFamily:
		fam, err := svc.Directory.GetFamily(ctx, req.TargetID)
		if err != nil {
			svc.logNotifyErr("connection.notifyRequestReceived", err)
			return
		}
		managerID, targetName = fam.HeadID, fam.Name
	case directory.TargetClassroom:
		cls, err := svc.Directory.GetClassroom(ctx, req.TargetID)
		if err != nil {
			svc.logNotifyErr("connection.notifyRequestReceived", err)
			return
		}
		managerID, targetName = cls.OwnerID, cls.Name
	}

	manager, err := svc.Users.GetUser(ctx, user.GetFilter{ID: managerID})
	if err != nil {
		svc.logNotifyErr("connection.notifyRequestReceived", err)
		return
	}
	if manager.Email == "" {
		return
	}

	data := requestReceivedData{
		RecipientName:    manager.Name,
		RequesterName:    requester.Name,
		TargetName:       targetName,
		RelationshipType: req.RelationshipType,
	}
	if req.Message != nil {
		data.Message = *req.Message
	}
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{manager.Address()},
		Subject:      fmt.Sprintf("%s asked to join %s", requester.Name, targetName),
		TemplateName: "join_request_received",
		TemplateData: data,
	})
}

// notifyRequestDecided emails the requester once their request is resolved.
func (svc *Service) notifyRequestDecided(ctx context.Context, req joinrequest.Request) {
	if svc.MailSvc == nil {
		return
	}

	requester, err := svc.Users.GetUser(ctx, user.GetFilter{ID: req.RequesterID})
	if err != nil {
		svc.logNotifyErr("connection.notifyRequestDecided", err)
		return
	}
	if requester.Email == "" {
		return
	}
	targetName, err := directory.TargetName(ctx, svc.Directory, req.TargetType, req.TargetID)
	if err != nil {
		svc.logNotifyErr("connection.notifyRequestDecided", err)
		return
	}

	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{requester.Address()},
		Subject:      fmt.Sprintf("Your request to join %s was %s", targetName, req.Status),
		TemplateName: "join_request_decided",
		TemplateData: requestDecidedData{
			RecipientName: requester.Name,
			TargetName:    targetName,
			Status:        string(req.Status),
		},
	})
}

func (svc *Service) logNotifyErr(where string, err error) {
	if svc.Logger != nil {
		svc.Logger.Error(fmt.Sprintf("%s: %v", where, err), err)
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveRedeem(string)           {}
func (noopMetrics) ObserveResponse(string, string) {}

// actionLabel keeps the action label set bounded.
func actionLabel(action Action) string {
	if action != ActionApprove && action != ActionReject {
		return "invalid"
	}
	return string(action)
}

// outcomeOf labels err for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch errors.Cause(err) {
	case invitation.ErrExpired:
		return "expired"
	case invitation.ErrExhausted:
		return "exhausted"
	}
	switch core.KindOf(err) {
	case core.ErrNotFound:
		return "not_found"
	case core.ErrConflict:
		return "conflict"
	case core.ErrForbidden:
		return "forbidden"
	case core.ErrUnavailable:
		return "unavailable"
	case core.ErrBadRequest:
		return "invalid"
	}
	switch errors.Cause(err).(type) {
	case *core.ValidationError, validator.ValidationErrors:
		return "invalid"
	}
	return "error"
}
