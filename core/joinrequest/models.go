package joinrequest

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var (
	ErrNotFound = core.NewError(core.ErrNotFound, "pending request not found")
	ErrResolved = core.NewError(core.ErrConflict, "request already processed")
)

type Request struct {
	ID               string               `json:"request_id"`
	RequesterID      string               `json:"requester_id"`
	TargetType       directory.TargetType `json:"target_type"`
	TargetID         string               `json:"target_id"`
	RelationshipType string               `json:"relationship_type"`
	Message          *string              `json:"message"`
	CodeID           *string              `json:"code_id"`
	Status           Status               `json:"status"`
	RequestedAt      time.Time            `json:"requested_at"`
	RespondedAt      *time.Time           `json:"responded_at"`
	RespondedBy      *string              `json:"responded_by"`
}

func (r Request) IsPending() bool { return r.Status == StatusPending }

// NewRequest contains information needed to create a new Request.
// When CodeID is set, the target is taken from the code and TargetType/TargetID are ignored.
type NewRequest struct {
	RequesterID      string               `json:"requester_id" validate:"required"`
	TargetType       directory.TargetType `json:"target_type" validate:"required_without=CodeID,omitempty,oneof=family classroom"`
	TargetID         string               `json:"target_id" validate:"required_without=CodeID"`
	CodeID           string               `json:"code_id"`
	RelationshipType string               `json:"relationship_type" validate:"required,max=32"`
	Message          string               `json:"message" validate:"max=1000"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.RelationshipType = core.CleanString(nr.RelationshipType, true /* lower */)
	nr.Message = core.CleanString(nr.Message)
	return validate.Struct(nr)
}

type QueryFilter struct {
	RequesterID string
	TargetType  directory.TargetType
	TargetIDs   []string
	Status      Status
}
