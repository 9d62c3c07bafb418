package invitation

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
)

// Status is computed from a code and its usage, never stored.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusExhausted Status = "exhausted"
)

var (
	ErrNotFound  = core.NewError(core.ErrNotFound, "code not found")
	ErrExpired   = core.NewError(core.ErrBadRequest, "code expired")
	ErrExhausted = core.NewError(core.ErrBadRequest, "code usage limit reached")

	// ErrDuplicateCode is returned by Repository.InsertCode when the code value is taken.
	ErrDuplicateCode = errors.New("invitation code already exists")
)

type Code struct {
	ID         string               `json:"code_id"`
	Code       string               `json:"code"`
	TargetType directory.TargetType `json:"target_type"`
	TargetID   string               `json:"target_id"`
	CreatedBy  string               `json:"created_by"`
	MaxUses    *int                 `json:"max_uses"`
	ExpiresAt  *time.Time           `json:"expires_at"`
	RevokedAt  *time.Time           `json:"revoked_at"`
	CreatedAt  time.Time            `json:"created_at"`
}

// StatusOf returns the state of c at instant now, given its current usage.
// A revoked or elapsed code is expired, even when it is also used up.
func StatusOf(c Code, now time.Time, uses int) Status {
	if c.RevokedAt != nil || (c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)) {
		return StatusExpired
	}
	if c.MaxUses != nil && uses >= *c.MaxUses {
		return StatusExhausted
	}
	return StatusActive
}

// Check returns the error matching the state of c, nil when c may be redeemed.
func Check(c Code, now time.Time, uses int) error {
	switch StatusOf(c, now, uses) {
	case StatusExpired:
		return ErrExpired
	case StatusExhausted:
		return ErrExhausted
	}
	return nil
}

// Summary is a code along with its usage and computed status.
type Summary struct {
	Code
	UsageCount int    `json:"usage_count"`
	Status     Status `json:"status"`
}

func Summarize(c Code, now time.Time, uses int) Summary {
	return Summary{Code: c, UsageCount: uses, Status: StatusOf(c, now, uses)}
}

// NewCode contains information needed to create a new Code.
type NewCode struct {
	TargetType     directory.TargetType `json:"target_type" validate:"required,oneof=family classroom"`
	TargetID       string               `json:"target_id" validate:"required,uuid"`
	MaxUses        *int                 `json:"max_uses" validate:"omitempty,min=1"`
	ExpiresAt      *time.Time           `json:"expires_at"`
	ExpiresInHours int                  `json:"expires_in_hours" validate:"omitempty,min=1,max=8760"`
	Code           string               `json:"code" validate:"omitempty,invite_code"` // generated when empty
	CreatedBy      string               `json:"-"`
}

func (nc *NewCode) Validate(validate *validator.Validate, now time.Time) error {
	nc.TargetType = directory.TargetType(core.CleanString(string(nc.TargetType), true /* lower */))
	nc.TargetID = core.CleanString(nc.TargetID, true /* lower */)
	nc.Code = NormalizeCode(nc.Code)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	if nc.ExpiresAt != nil {
		if nc.ExpiresInHours > 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "expires_in_hours", Error: "cannot be combined with expires_at"})
		}
		if !nc.ExpiresAt.After(now) {
			return core.NewValidationError(nil, core.FieldError{Field: "expires_at", Error: "expires_at must be in the future"})
		}
	}
	return nil
}

// NormalizeCode is applied to every code value entering the system.
func NormalizeCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}

// GetFilter selects a single code. The first non-empty field wins.
type GetFilter struct {
	ID   string
	Code string
}

type QueryFilter struct {
	CreatedBy  string
	TargetType directory.TargetType // optional
}
