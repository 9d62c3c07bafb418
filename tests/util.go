package testutil

import (
	"context"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/user"
	"github.com/trezcool/jumuiya/storage/database"
)

// StrongPassword satisfies the password policy for users whose attributes avoid its characters.
const StrongPassword = "Xq7#vLp2!k"

const truncateAll = `TRUNCATE user_connection, classroom_student, family_member, join_request, invitation_code,
	student_profile, classroom, family_group, "user" CASCADE`

// Config returns a configuration suitable for tests, without reading the environment.
func Config() *core.Config {
	return &core.Config{
		TestMode:         true,
		AppName:          "Jumuiya",
		Env:              "TEST",
		Build:            "test",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Jumuiya", Address: "noreply@localhost"},
		WorkDir:          core.Getwd(),
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: core.DatabaseConfig{
			LockTimeout: 3 * time.Second,
			MaxRetries:  3,
		},
		Invitations: core.InvitationConfig{
			CodeLength:     8,
			MaxCodeRetries: 10,
		},
	}
}

// NewValidator returns a validator with every app validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// OpenDB opens the database named by TEST_DATABASE_URL, migrates it and empties every table.
// The test is skipped when the variable is not set.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("OpenDB(): migrating: %v", err)
	}
	if _, err = db.Exec(truncateAll); err != nil {
		t.Fatalf("OpenDB(): truncating: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	accountType user.AccountType,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:        name,
		Username:    uname,
		Email:       email,
		AccountType: accountType,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateFamily(t *testing.T, repo directory.Repository, name, headID string) directory.Family {
	t.Helper()

	fam, err := repo.CreateFamily(context.Background(), directory.Family{HeadID: headID, Name: name, CreatedAt: core.Now()})
	if err != nil {
		t.Fatalf("CreateFamily(): %v", err)
	}
	return fam
}

func CreateClassroom(t *testing.T, repo directory.Repository, name, ownerID string) directory.Classroom {
	t.Helper()

	cls, err := repo.CreateClassroom(context.Background(), directory.Classroom{OwnerID: ownerID, Name: name, CreatedAt: core.Now()})
	if err != nil {
		t.Fatalf("CreateClassroom(): %v", err)
	}
	return cls
}
