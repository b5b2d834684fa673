package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = database.Run      // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrations need the postgres engine")
)

type commandLine struct {
	conf       *core.Config
	db         *sql.DB // nil with the memory engine
	usrSvc     *user.Service
	validate   *validator.Validate
	translator ut.Translator
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) against the database")
	fmt.Println("  seed - create the default admin when missing")
	fmt.Println("  resetpassword -username USERNAME - reset a user's password")
	fmt.Println("  adduser -type TYPE -username USERNAME -name NAME [-email EMAIL] - create a user")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.db == nil {
			return errNoSQL
		}
		return gooseRunFunc(cli.db, args[2], args[3:]...)
	case "seed":
		return cli.seed()
	case "resetpassword":
		return cli.resetPassword(args[2:])
	case "adduser":
		return cli.addUser(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) seed() error {
	created, err := cli.usrSvc.EnsureAdmin(context.Background(), cli.conf.Seed)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("admin %q created\n", cli.conf.Seed.AdminUsername)
	}
	return nil
}

func (cli *commandLine) resetPassword(args []string) error {
	cmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	uname := cmd.String("username", "", "The user's username. The password will be prompted next.")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *uname == "" {
		cmd.Usage()
		return errHelp
	}
	pwd, err := promptPassword()
	if err != nil {
		return err
	}
	if pwd == "" {
		cmd.Usage()
		return errHelp
	}
	return cli.usrSvc.SetPassword(context.Background(), *uname, pwd)
}

func (cli *commandLine) addUser(args []string) error {
	cmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	nu := user.NewUser{}
	cmd.StringVar(&nu.Type, "type", user.TypeAdmin, "admin, teacher or student.")
	cmd.StringVar(&nu.Username, "username", "", "The user's username. The password will be prompted next.")
	cmd.StringVar(&nu.Name, "name", "", "The user's display name.")
	cmd.StringVar(&nu.Email, "email", "", "The user's email, used to reset admin passwords.")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if nu.Username == "" || nu.Name == "" {
		cmd.Usage()
		return errHelp
	}

	var err error
	if nu.Password, err = promptPassword(); err != nil {
		return err
	}
	if err = nu.Validate(cli.validate); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fmt.Printf("%s: %s\n", fe.Field(), fe.Translate(cli.translator))
			}
		}
		return err
	}

	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	fmt.Printf("%s %q created (id %d)\n", usr.Type, usr.Username, usr.ID)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	return string(pwd), err
}
