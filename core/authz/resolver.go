package authz

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
)

type (
	// Strategy decides who manages the targets of one type.
	Strategy interface {
		// CanManage is false, without error, when the target does not exist.
		CanManage(ctx context.Context, actorID, targetID string, exec ...core.DBExecutor) (bool, error)
		// ManagedTargets lists the ids of the targets actorID manages.
		ManagedTargets(ctx context.Context, actorID string, exec ...core.DBExecutor) ([]string, error)
	}

	// Resolver answers authorization questions from current directory data, without caching.
	Resolver struct {
		strategies map[directory.TargetType]Strategy
	}
)

func NewResolver(dir directory.Repository) *Resolver {
	return &Resolver{
		strategies: map[directory.TargetType]Strategy{
			directory.TargetFamily:    familyStrategy{dir: dir},
			directory.TargetClassroom: classroomStrategy{dir: dir},
		},
	}
}

func (r *Resolver) strategy(tt directory.TargetType) (Strategy, error) {
	s, ok := r.strategies[tt]
	if !ok {
		return nil, directory.UnknownTargetError(tt)
	}
	return s, nil
}

// CanManage reports whether actorID may manage the target: approve its join requests and handle its codes.
func (r *Resolver) CanManage(ctx context.Context, actorID string, tt directory.TargetType, targetID string, exec ...core.DBExecutor) (bool, error) {
	s, err := r.strategy(tt)
	if err != nil {
		return false, err
	}
	ok, err := s.CanManage(ctx, actorID, targetID, exec...)
	return ok, errors.Wrapf(err, "resolving %s manager", tt)
}

// ManagedTargets lists the ids of the targets of type tt managed by actorID.
func (r *Resolver) ManagedTargets(ctx context.Context, actorID string, tt directory.TargetType, exec ...core.DBExecutor) ([]string, error) {
	s, err := r.strategy(tt)
	if err != nil {
		return nil, err
	}
	ids, err := s.ManagedTargets(ctx, actorID, exec...)
	return ids, errors.Wrapf(err, "listing managed %s targets", tt)
}

// familyStrategy: the family head manages the family.
type familyStrategy struct {
	dir directory.Repository
}

func (s familyStrategy) CanManage(ctx context.Context, actorID, familyID string, exec ...core.DBExecutor) (bool, error) {
	fam, err := s.dir.GetFamily(ctx, familyID, exec...)
	if err != nil {
		if errors.Cause(err) == directory.ErrFamilyNotFound {
			return false, nil
		}
		return false, err
	}
	return actorID != "" && fam.HeadID == actorID, nil
}

func (s familyStrategy) ManagedTargets(ctx context.Context, actorID string, exec ...core.DBExecutor) ([]string, error) {
	fams, err := s.dir.FamiliesHeadedBy(ctx, actorID, exec...)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(fams))
	for _, f := range fams {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

// classroomStrategy: the classroom owner (its teacher) manages the classroom.
type classroomStrategy struct {
	dir directory.Repository
}

func (s classroomStrategy) CanManage(ctx context.Context, actorID, classroomID string, exec ...core.DBExecutor) (bool, error) {
	cls, err := s.dir.GetClassroom(ctx, classroomID, exec...)
	if err != nil {
		if errors.Cause(err) == directory.ErrClassroomNotFound {
			return false, nil
		}
		return false, err
	}
	return actorID != "" && cls.OwnerID == actorID, nil
}

func (s classroomStrategy) ManagedTargets(ctx context.Context, actorID string, exec ...core.DBExecutor) ([]string, error) {
	classes, err := s.dir.ClassroomsOwnedBy(ctx, actorID, exec...)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	return ids, nil
}
