package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/user"
)

var errNotATeacher = errors.New("classrooms can only be owned by teachers")

// addUser creates a user.User after applying the registration rules.
func (cli *commandLine) addUser(name, uname, email, accountType, pwd string) error {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		AccountType:     user.AccountType(accountType),
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	fmt.Printf("created %s %q (%s)\n", usr.AccountType, usr.Name, usr.ID)
	return nil
}

func (cli *commandLine) addFamily(name, head string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, head)
	if err != nil {
		return err
	}
	fam, err := cli.dirRepo.CreateFamily(ctx, directory.Family{
		HeadID:    usr.ID,
		Name:      core.CleanString(name),
		CreatedAt: core.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "creating family")
	}
	fmt.Printf("created family %q (%s)\n", fam.Name, fam.ID)
	return nil
}

func (cli *commandLine) addClassroom(name, owner string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, owner)
	if err != nil {
		return err
	}
	if !usr.IsTeacher() {
		return errNotATeacher
	}
	cls, err := cli.dirRepo.CreateClassroom(ctx, directory.Classroom{
		OwnerID:   usr.ID,
		Name:      core.CleanString(name),
		CreatedAt: core.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "creating classroom")
	}
	fmt.Printf("created classroom %q (%s)\n", cls.Name, cls.ID)
	return nil
}
