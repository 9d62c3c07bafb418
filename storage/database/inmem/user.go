package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	var err error
	repo.db.read(exec, func(t *tables) {
		for _, usr := range t.users {
			if excluded[usr.ID] {
				continue
			}
			if (username != "" && usr.Username == username) || (email != "" && usr.Email == email) {
				err = user.ErrUserExists
				return
			}
		}
	})
	return err
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	repo.db.write(exec, func(t *tables) {
		t.users[usr.ID] = usr
	})
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
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

	var (
		found user.User
		ok    bool
	)
	repo.db.read(exec, func(t *tables) {
		if filter.ID != "" {
			found, ok = t.users[filter.ID]
			return
		}
		if uname == "" {
			return
		}
		for _, usr := range t.users {
			if usr.Username == uname || usr.Email == email {
				found, ok = usr, true
				return
			}
		}
	})
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return found, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	var ok bool
	repo.db.write(exec, func(t *tables) {
		if _, ok = t.users[usr.ID]; ok {
			t.users[usr.ID] = usr
		}
	})
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
