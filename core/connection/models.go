package connection

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/membership"
	"github.com/trezcool/jumuiya/core/user"
)

var ErrForbidden = core.NewError(core.ErrForbidden, "you are not allowed to manage this group")

// Action is a manager's answer to a join request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction accepts "accept" as an alias of "approve".
func ParseAction(s string) (Action, error) {
	switch core.CleanString(s, true /* lower */) {
	case "approve", "accept":
		return ActionApprove, nil
	case "reject":
		return ActionReject, nil
	}
	return "", core.NewValidationError(errors.Errorf("unknown action %q", s),
		core.FieldError{Field: "action", Error: "action must be one of [accept approve reject]"})
}

// Decision is the result of a manager's response.
// Outcome is only set on approval.
type Decision struct {
	Request joinrequest.Request `json:"request"`
	Outcome *membership.Outcome `json:"outcome,omitempty"`
}

// RedeemInput contains the information a user provides to redeem a code.
type RedeemInput struct {
	Code             string `json:"code" validate:"required"`
	RelationshipType string `json:"relationship_type" validate:"omitempty,max=32"`
	Message          string `json:"message" validate:"omitempty,max=1000"`

	// TargetType, when set, restricts redemption to codes of this type.
	TargetType directory.TargetType `json:"-"`
}

func (in *RedeemInput) Validate(validate *validator.Validate) error {
	in.Code = core.CleanString(in.Code)
	in.RelationshipType = core.CleanString(in.RelationshipType, true /* lower */)
	in.Message = core.CleanString(in.Message)
	return validate.Struct(in)
}

// defaultRelationship is used when the requester does not say how they relate to the target.
func defaultRelationship(usr user.User, tt directory.TargetType) string {
	if tt == directory.TargetFamily {
		switch usr.AccountType {
		case user.AccountStudent:
			return "child"
		case user.AccountParent:
			return "parent"
		}
		return "member"
	}
	return string(usr.AccountType)
}
