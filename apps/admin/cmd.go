package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/fomu/core/form"
	"github.com/trezcool/fomu/core/section"
	"github.com/trezcool/fomu/core/user"
	"github.com/trezcool/fomu/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = database.RunGoose // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	usrSvc  user.Service
	secSvc  section.Service
	formSvc form.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-name NAME] [-staff] - create a user; the password is prompted")
	fmt.Println("  addsection -number NUMBER -title TITLE [-description DESC] - create a study section; the passcode is prompted")
	fmt.Println("  addform -title TITLE -section NUMBER -kind digital|pdf [-schema FILE] - create a form; digital forms need a schema JSON file")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email address.")
	addUserStaff := addUserCmd.Bool("staff", false, "Grant staff permissions (form management).")

	addSectionCmd := flag.NewFlagSet("addsection", flag.ExitOnError)
	addSectionNum := addSectionCmd.Int("number", 0, "The section's number. The passcode will be prompted next.")
	addSectionTitle := addSectionCmd.String("title", "", "The section's title.")
	addSectionDesc := addSectionCmd.String("description", "", "The section's description.")

	addFormCmd := flag.NewFlagSet("addform", flag.ExitOnError)
	addFormTitle := addFormCmd.String("title", "", "The form's title.")
	addFormSection := addFormCmd.Int("section", 0, "The section number the form belongs to.")
	addFormKind := addFormCmd.String("kind", "", `The form's kind: "digital" or "pdf".`)
	addFormSchema := addFormCmd.String("schema", "", "Path to a schema JSON file (digital forms).")

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
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptSecret("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserStaff)
	case "addsection":
		if err := addSectionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSectionNum <= 0 || *addSectionTitle == "" {
			addSectionCmd.Usage()
			return errHelp
		}
		passcode, err := promptSecret("Enter passcode:")
		if err != nil {
			return err
		}
		if passcode == "" {
			addSectionCmd.Usage()
			return errHelp
		}
		return cli.addSection(*addSectionNum, *addSectionTitle, *addSectionDesc, passcode)
	case "addform":
		if err := addFormCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addFormTitle == "" || *addFormSection <= 0 || *addFormKind == "" {
			addFormCmd.Usage()
			return errHelp
		}
		return cli.addForm(*addFormTitle, *addFormSection, *addFormKind, *addFormSchema)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, arguments...)
}

func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	secret, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(secret), nil
}
