package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/user"
)

const userColumns = `id, name, username, email, account_type, is_active, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           string      `boil:"id"`
	Name         string      `boil:"name"`
	Username     null.String `boil:"username"`
	Email        null.String `boil:"email"`
	AccountType  string      `boil:"account_type"`
	IsActive     bool        `boil:"is_active"`
	PasswordHash null.Bytes  `boil:"password_hash"`
	CreatedAt    time.Time   `boil:"created_at"`
	UpdatedAt    time.Time   `boil:"updated_at"`
	LastLogin    null.Time   `boil:"last_login"`
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo userRepository) boil(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		AccountType:  string(usr.AccountType),
		IsActive:     usr.Active(),
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(u userRow) user.User {
	usr := user.User{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username.String,
		Email:        u.Email.String,
		AccountType:  user.AccountType(u.AccountType),
		PasswordHash: u.PasswordHash.Bytes,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
	usr.SetActive(u.IsActive)
	if u.LastLogin.Valid {
		usr.LastLogin = u.LastLogin.Time.UTC()
	}
	return usr
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var res struct {
		Found bool `boil:"found"`
	}
	q := `SELECT EXISTS (
		SELECT 1 FROM "user" WHERE (username = $1 OR email = $2) AND NOT (id::text = ANY($3::text[]))
	) AS found`
	err := queries.Raw(q,
		null.NewString(username, username != ""),
		null.NewString(email, email != ""),
		pq.Array(ids),
	).Bind(ctx, repo.getExec(exec), &res)
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if res.Found {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	u := repo.boil(usr)
	q := `INSERT INTO "user" (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := queries.Raw(q,
		u.ID, u.Name, u.Username, u.Email, u.AccountType, u.IsActive, u.PasswordHash, u.CreatedAt, u.UpdatedAt, u.LastLogin,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(u), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var u userRow
	var err error
	exe := repo.getExec(exec)
	sel := `SELECT ` + userColumns + ` FROM "user" `

	if filter.ID != "" {
		if _, err = uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		if err = queries.Raw(sel+`WHERE id = $1`, filter.ID).Bind(ctx, exe, &u); err != nil {
			return user.User{}, repo.trapNoRowsErr(err, "finding user by ID")
		}
		return repo.unboil(u), nil
	}

	var uname, email string
	if len(filter.UsernameOrEmail) > 0 {
		uname = filter.UsernameOrEmail[0]
	}
	if len(filter.UsernameOrEmail) > 1 {
		email = filter.UsernameOrEmail[1]
	}
	if email == "" {
		email = uname
	} else if uname == "" {
		uname = email
	}
	if uname == "" {
		return user.User{}, user.ErrNotFound
	}

	if err = queries.Raw(sel+`WHERE username = $1 OR email = $2 LIMIT 1`, uname, email).Bind(ctx, exe, &u); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unboil(u), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	u := repo.boil(usr)
	q := `UPDATE "user" SET name = $2, username = $3, email = $4, account_type = $5, is_active = $6,
		password_hash = $7, updated_at = $8, last_login = $9 WHERE id = $1`
	res, err := queries.Raw(q,
		u.ID, u.Name, u.Username, u.Email, u.AccountType, u.IsActive, u.PasswordHash, u.UpdatedAt, u.LastLogin,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.unboil(u), nil
}
