package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	usrSvc   *user.Service
	dirRepo  directory.Repository
	validate *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                                  - run a goose command on the database")
	fmt.Println("  adduser -name NAME -type TYPE [-username U] [-email E]  - create a user; the password is prompted next")
	fmt.Println("  addfamily -name NAME -head USERNAME|EMAIL               - create a family headed by a user")
	fmt.Println("  addclassroom -name NAME -owner USERNAME|EMAIL           - create a classroom owned by a teacher")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username. One of username or email is required.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. One of username or email is required.")
	addUserType := addUserCmd.String("type", "", "The account type: student, parent or teacher.")

	addFamilyCmd := flag.NewFlagSet("addfamily", flag.ContinueOnError)
	addFamilyName := addFamilyCmd.String("name", "", "The family's name.")
	addFamilyHead := addFamilyCmd.String("head", "", "The username or email of the family head.")

	addClassroomCmd := flag.NewFlagSet("addclassroom", flag.ContinueOnError)
	addClassroomName := addClassroomCmd.String("name", "", "The classroom's name.")
	addClassroomOwner := addClassroomCmd.String("owner", "", "The username or email of the teacher owning the classroom.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserType == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, *addUserType, string(pwd))
	case "addfamily":
		if err := addFamilyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addFamilyName == "" || *addFamilyHead == "" {
			addFamilyCmd.Usage()
			return errHelp
		}
		return cli.addFamily(*addFamilyName, *addFamilyHead)
	case "addclassroom":
		if err := addClassroomCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addClassroomName == "" || *addClassroomOwner == "" {
			addClassroomCmd.Usage()
			return errHelp
		}
		return cli.addClassroom(*addClassroomName, *addClassroomOwner)
	default:
		cli.printUsage()
		return errHelp
	}
}
