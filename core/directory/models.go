package directory

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
)

// TargetType is the kind of group a user can ask to join.
type TargetType string

const (
	TargetFamily    TargetType = "family"
	TargetClassroom TargetType = "classroom"
)

func (tt TargetType) Valid() bool {
	return tt == TargetFamily || tt == TargetClassroom
}

var (
	ErrFamilyNotFound    = core.NewError(core.ErrNotFound, "family not found")
	ErrClassroomNotFound = core.NewError(core.ErrNotFound, "classroom not found")
	ErrStudentNotFound   = core.NewError(core.ErrNotFound, "student profile not found")
)

type Family struct {
	ID        string    `json:"family_id"`
	HeadID    string    `json:"head_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Classroom struct {
	ID        string    `json:"classroom_id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// StudentProfile is the academic side of a student account.
// Profiles are created lazily, the first time a student joins a classroom.
type StudentProfile struct {
	ID        string    `json:"student_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository reads families, classrooms and student profiles.
// Families and classrooms are owned by other parts of the platform; only the admin CLI creates them here.
type Repository interface {
	GetFamily(ctx context.Context, id string, exec ...core.DBExecutor) (Family, error)
	GetClassroom(ctx context.Context, id string, exec ...core.DBExecutor) (Classroom, error)
	FamiliesHeadedBy(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Family, error)
	ClassroomsOwnedBy(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Classroom, error)
	CreateFamily(ctx context.Context, fam Family, exec ...core.DBExecutor) (Family, error)
	CreateClassroom(ctx context.Context, cls Classroom, exec ...core.DBExecutor) (Classroom, error)

	GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (StudentProfile, error)
	// EnsureStudent creates the profile unless one exists. It reports whether it created it.
	EnsureStudent(ctx context.Context, st StudentProfile, exec ...core.DBExecutor) (StudentProfile, bool, error)
}

// TargetName returns the display name of a target, for notifications.
func TargetName(ctx context.Context, repo Repository, tt TargetType, id string, exec ...core.DBExecutor) (string, error) {
	switch tt {
	case TargetFamily:
		fam, err := repo.GetFamily(ctx, id, exec...)
		return fam.Name, err
	case TargetClassroom:
		cls, err := repo.GetClassroom(ctx, id, exec...)
		return cls.Name, err
	}
	return "", UnknownTargetError(tt)
}

// UnknownTargetError reports a target type that is neither family nor classroom.
func UnknownTargetError(tt TargetType) error {
	msg := "must be one of [family classroom]"
	return core.NewValidationError(
		errors.Errorf("unknown target type %q", tt),
		core.FieldError{Field: "target_type", Error: msg},
	)
}
