package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
)

type (
	familyRow struct {
		ID        string    `boil:"family_id"`
		HeadID    string    `boil:"head_id"`
		Name      string    `boil:"name"`
		CreatedAt time.Time `boil:"created_at"`
	}

	classroomRow struct {
		ID        string    `boil:"classroom_id"`
		OwnerID   string    `boil:"owner_id"`
		Name      string    `boil:"name"`
		CreatedAt time.Time `boil:"created_at"`
	}

	studentRow struct {
		ID        string      `boil:"student_id"`
		Name      string      `boil:"name"`
		Email     null.String `boil:"email"`
		CreatedAt time.Time   `boil:"created_at"`
	}
)

func (row familyRow) unboil() directory.Family {
	return directory.Family{ID: row.ID, HeadID: row.HeadID, Name: row.Name, CreatedAt: row.CreatedAt.UTC()}
}

func (row classroomRow) unboil() directory.Classroom {
	return directory.Classroom{ID: row.ID, OwnerID: row.OwnerID, Name: row.Name, CreatedAt: row.CreatedAt.UTC()}
}

func (row studentRow) unboil() directory.StudentProfile {
	return directory.StudentProfile{ID: row.ID, Name: row.Name, Email: row.Email.String, CreatedAt: row.CreatedAt.UTC()}
}

type directoryRepository struct {
	exec core.DBExecutor
}

var _ directory.Repository = (*directoryRepository)(nil) // interface compliance check

func NewDirectoryRepository(exec core.DBExecutor) *directoryRepository {
	return &directoryRepository{exec: exec}
}

func (repo directoryRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// getOne binds a single row into obj, mapping "no rows" and malformed ids to notFound.
func (repo directoryRepository) getOne(ctx context.Context, exec core.DBExecutor, obj interface{}, notFound error, q, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound
	}
	if err := queries.Raw(q, id).Bind(ctx, exec, obj); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return notFound
		}
		return err
	}
	return nil
}

func (repo directoryRepository) GetFamily(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Family, error) {
	var row familyRow
	q := `SELECT family_id, head_id, name, created_at FROM family_group WHERE family_id = $1`
	if err := repo.getOne(ctx, repo.getExec(exec), &row, directory.ErrFamilyNotFound, q, id); err != nil {
		return directory.Family{}, errors.Wrap(err, "getting family")
	}
	return row.unboil(), nil
}

func (repo directoryRepository) GetClassroom(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Classroom, error) {
	var row classroomRow
	q := `SELECT classroom_id, owner_id, name, created_at FROM classroom WHERE classroom_id = $1`
	if err := repo.getOne(ctx, repo.getExec(exec), &row, directory.ErrClassroomNotFound, q, id); err != nil {
		return directory.Classroom{}, errors.Wrap(err, "getting classroom")
	}
	return row.unboil(), nil
}

func (repo directoryRepository) FamiliesHeadedBy(ctx context.Context, userID string, exec ...core.DBExecutor) ([]directory.Family, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []directory.Family{}, nil
	}
	var rows []familyRow
	q := `SELECT family_id, head_id, name, created_at FROM family_group WHERE head_id = $1 ORDER BY created_at`
	if err := queries.Raw(q, userID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying families")
	}
	fams := make([]directory.Family, 0, len(rows))
	for _, row := range rows {
		fams = append(fams, row.unboil())
	}
	return fams, nil
}

func (repo directoryRepository) ClassroomsOwnedBy(ctx context.Context, userID string, exec ...core.DBExecutor) ([]directory.Classroom, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []directory.Classroom{}, nil
	}
	var rows []classroomRow
	q := `SELECT classroom_id, owner_id, name, created_at FROM classroom WHERE owner_id = $1 ORDER BY created_at`
	if err := queries.Raw(q, userID).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying classrooms")
	}
	clss := make([]directory.Classroom, 0, len(rows))
	for _, row := range rows {
		clss = append(clss, row.unboil())
	}
	return clss, nil
}

func (repo directoryRepository) CreateFamily(ctx context.Context, fam directory.Family, exec ...core.DBExecutor) (directory.Family, error) {
	if fam.ID == "" {
		fam.ID = uuid.New().String()
	}
	if fam.CreatedAt.IsZero() {
		fam.CreatedAt = core.Now()
	}
	q := `INSERT INTO family_group (family_id, head_id, name, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := queries.Raw(q, fam.ID, fam.HeadID, fam.Name, fam.CreatedAt.UTC()).ExecContext(ctx, repo.getExec(exec)); err != nil {
		return directory.Family{}, errors.Wrap(err, "inserting family")
	}
	return fam, nil
}

func (repo directoryRepository) CreateClassroom(ctx context.Context, cls directory.Classroom, exec ...core.DBExecutor) (directory.Classroom, error) {
	if cls.ID == "" {
		cls.ID = uuid.New().String()
	}
	if cls.CreatedAt.IsZero() {
		cls.CreatedAt = core.Now()
	}
	q := `INSERT INTO classroom (classroom_id, owner_id, name, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := queries.Raw(q, cls.ID, cls.OwnerID, cls.Name, cls.CreatedAt.UTC()).ExecContext(ctx, repo.getExec(exec)); err != nil {
		return directory.Classroom{}, errors.Wrap(err, "inserting classroom")
	}
	return cls, nil
}

func (repo directoryRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (directory.StudentProfile, error) {
	var row studentRow
	q := `SELECT student_id, name, email, created_at FROM student_profile WHERE student_id = $1`
	if err := repo.getOne(ctx, repo.getExec(exec), &row, directory.ErrStudentNotFound, q, id); err != nil {
		return directory.StudentProfile{}, errors.Wrap(err, "getting student")
	}
	return row.unboil(), nil
}

func (repo directoryRepository) EnsureStudent(ctx context.Context, st directory.StudentProfile, exec ...core.DBExecutor) (directory.StudentProfile, bool, error) {
	exe := repo.getExec(exec)
	if st.CreatedAt.IsZero() {
		st.CreatedAt = core.Now()
	}

	q := `INSERT INTO student_profile (student_id, name, email, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id) DO NOTHING`
	res, err := queries.Raw(q, st.ID, st.Name, null.NewString(st.Email, st.Email != ""), st.CreatedAt.UTC()).ExecContext(ctx, exe)
	if err != nil {
		return directory.StudentProfile{}, false, errors.Wrap(err, "inserting student")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return directory.StudentProfile{}, false, errors.Wrap(err, "inserting student")
	}

	stored, err := repo.GetStudent(ctx, st.ID, exe)
	if err != nil {
		return directory.StudentProfile{}, false, err
	}
	return stored, n > 0, nil
}
