package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/user"
	inmemdb "github.com/trezcool/jumuiya/storage/database/inmem"
	"github.com/trezcool/jumuiya/tests"
)

var (
	usrRepo user.Repository
	dirRepo directory.Repository
)

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	dirRepo = inmemdb.NewDirectoryRepository(db)
	validate, _ := testutil.NewValidator()

	// start CLI
	return &commandLine{
		usrSvc:   user.NewService(usrRepo),
		dirRepo:  dirRepo,
		validate: validate,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		tt := tt
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			case check != nil:
				check(t, tt)
			}
		})
	}
}

func Test_commandLine_help(t *testing.T) {
	cli := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate without subcommand", args: []string{"migrate"}, wantErr: errHelp},
	}, nil)
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}, nil)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	type extra struct {
		pwd   string
		email string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no username nor email", args: []string{"adduser", "-name", "Mzee", "-type", "parent"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Mzee", "-type", "parent", "-email", "mzee@test.cd"}, wantErr: errHelp},
		{
			name: "create parent",
			args: []string{"adduser", "-name", "Mzee", "-type", "parent", "-email", "mzee@test.cd"},
			extra: extra{pwd: testutil.StrongPassword, email: "mzee@test.cd"},
		},
		{
			name:  "create teacher with username",
			args:  []string{"adduser", "-name", "Mwalimu", "-type", "teacher", "-username", "mwalimu", "-email", "MWALIMU@test.cd"},
			extra: extra{pwd: testutil.StrongPassword, email: "mwalimu@test.cd"},
		},
	}
	for _, tt := range tests {
		tt := tt
		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}
		runCLITests(t, cli, []cliTest{tt}, func(t *testing.T, tt cliTest) {
			ex := tt.extra.(extra)
			usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{UsernameOrEmail: []string{ex.email}})
			require.NoError(t, err)
			assert.NoError(t, usr.CheckPassword(ex.pwd))
			assert.True(t, usr.Active())
		})
	}

	t.Run("weak password", func(t *testing.T) {
		readPasswordFunc = func(fd int) ([]byte, error) { return []byte("12345678"), nil }
		err := cli.run([]string{"admin", "adduser", "-name", "Weak", "-type", "student", "-email", "weak@test.cd"})
		assert.Error(t, err)
	})

	t.Run("duplicate email", func(t *testing.T) {
		readPasswordFunc = func(fd int) ([]byte, error) { return []byte(testutil.StrongPassword), nil }
		err := cli.run([]string{"admin", "adduser", "-name", "Mzee Two", "-type", "parent", "-email", "mzee@test.cd"})
		assert.Error(t, err)
	})
}

func Test_commandLine_addGroups(t *testing.T) {
	cli := setup(t)

	teacher := testutil.CreateUser(t, usrRepo, "Mwalimu", "mwalimu", "mwalimu@test.cd", "", user.AccountTeacher, true)
	parent := testutil.CreateUser(t, usrRepo, "Mzee", "mzee", "mzee@test.cd", "", user.AccountParent, true)

	runCLITests(t, cli, []cliTest{
		{name: "addfamily: no args", args: []string{"addfamily"}, wantErr: errHelp},
		{name: "addfamily: head not found", args: []string{"addfamily", "-name", "Famille", "-head", "lol"}, wantErr: user.ErrNotFound},
		{name: "addfamily", args: []string{"addfamily", "-name", "Famille Mzee", "-head", parent.Email}},
		{name: "addclassroom: no args", args: []string{"addclassroom", "-name", "6A"}, wantErr: errHelp},
		{name: "addclassroom: not a teacher", args: []string{"addclassroom", "-name", "6A", "-owner", parent.Username}, wantErr: errNotATeacher},
		{name: "addclassroom", args: []string{"addclassroom", "-name", "6A", "-owner", teacher.Username}},
	}, nil)

	fams, err := dirRepo.FamiliesHeadedBy(context.Background(), parent.ID)
	require.NoError(t, err)
	if assert.Len(t, fams, 1) {
		assert.Equal(t, "Famille Mzee", fams[0].Name)
	}
	clss, err := dirRepo.ClassroomsOwnedBy(context.Background(), teacher.ID)
	require.NoError(t, err)
	if assert.Len(t, clss, 1) {
		assert.Equal(t, "6A", clss[0].Name)
	}
}
