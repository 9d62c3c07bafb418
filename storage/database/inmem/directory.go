package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
)

type directoryRepository struct {
	db *DB
}

var _ directory.Repository = (*directoryRepository)(nil) // interface compliance check

func NewDirectoryRepository(db *DB) *directoryRepository {
	return &directoryRepository{db: db}
}

func (repo *directoryRepository) GetFamily(_ context.Context, id string, exec ...core.DBExecutor) (directory.Family, error) {
	var (
		fam directory.Family
		ok  bool
	)
	repo.db.read(exec, func(t *tables) { fam, ok = t.families[id] })
	if !ok {
		return directory.Family{}, directory.ErrFamilyNotFound
	}
	return fam, nil
}

func (repo *directoryRepository) GetClassroom(_ context.Context, id string, exec ...core.DBExecutor) (directory.Classroom, error) {
	var (
		cls directory.Classroom
		ok  bool
	)
	repo.db.read(exec, func(t *tables) { cls, ok = t.classrooms[id] })
	if !ok {
		return directory.Classroom{}, directory.ErrClassroomNotFound
	}
	return cls, nil
}

func (repo *directoryRepository) FamiliesHeadedBy(_ context.Context, userID string, exec ...core.DBExecutor) ([]directory.Family, error) {
	fams := make([]directory.Family, 0)
	repo.db.read(exec, func(t *tables) {
		for _, f := range t.families {
			if f.HeadID == userID {
				fams = append(fams, f)
			}
		}
	})
	sort.Slice(fams, func(i, j int) bool { return fams[i].CreatedAt.Before(fams[j].CreatedAt) })
	return fams, nil
}

func (repo *directoryRepository) ClassroomsOwnedBy(_ context.Context, userID string, exec ...core.DBExecutor) ([]directory.Classroom, error) {
	clss := make([]directory.Classroom, 0)
	repo.db.read(exec, func(t *tables) {
		for _, c := range t.classrooms {
			if c.OwnerID == userID {
				clss = append(clss, c)
			}
		}
	})
	sort.Slice(clss, func(i, j int) bool { return clss[i].CreatedAt.Before(clss[j].CreatedAt) })
	return clss, nil
}

func (repo *directoryRepository) CreateFamily(_ context.Context, fam directory.Family, exec ...core.DBExecutor) (directory.Family, error) {
	if fam.ID == "" {
		fam.ID = uuid.New().String()
	}
	if fam.CreatedAt.IsZero() {
		fam.CreatedAt = core.Now()
	}
	repo.db.write(exec, func(t *tables) { t.families[fam.ID] = fam })
	return fam, nil
}

func (repo *directoryRepository) CreateClassroom(_ context.Context, cls directory.Classroom, exec ...core.DBExecutor) (directory.Classroom, error) {
	if cls.ID == "" {
		cls.ID = uuid.New().String()
	}
	if cls.CreatedAt.IsZero() {
		cls.CreatedAt = core.Now()
	}
	repo.db.write(exec, func(t *tables) { t.classrooms[cls.ID] = cls })
	return cls, nil
}

func (repo *directoryRepository) GetStudent(_ context.Context, id string, exec ...core.DBExecutor) (directory.StudentProfile, error) {
	var (
		st directory.StudentProfile
		ok bool
	)
	repo.db.read(exec, func(t *tables) { st, ok = t.students[id] })
	if !ok {
		return directory.StudentProfile{}, directory.ErrStudentNotFound
	}
	return st, nil
}

func (repo *directoryRepository) EnsureStudent(_ context.Context, st directory.StudentProfile, exec ...core.DBExecutor) (directory.StudentProfile, bool, error) {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = core.Now()
	}

	var created bool
	repo.db.write(exec, func(t *tables) {
		if stored, ok := t.students[st.ID]; ok {
			st = stored
			return
		}
		t.students[st.ID] = st
		created = true
	})
	return st, created, nil
}
