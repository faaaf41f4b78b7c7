package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/country"
	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
	"github.com/trezcool/prsonline/storage/database"
)

const dateLayout = "2006-01-02"

var (
	readPasswordFunc = term.ReadPassword // mockable
	gooseRunFunc     = database.Run      // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB
	usrRepo    user.Repository
	usrSvc     *user.Service
	countries  *country.Service
	notices    *notice.Service
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)")
	fmt.Fprintln(cli.out, "  seedcountries - fill the countries table from the ISO 3166 catalog")
	fmt.Fprintln(cli.out, "  schedulenotices -from YYYY-MM-DD -to YYYY-MM-DD - create the upcoming review notices of the period")
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// parse parses the command flags; asking for help is not an error to report.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "adduser":
		cmd := cli.flagSet("adduser")
		uname := cmd.String("username", "", "The user's username.")
		email := cmd.String("email", "", "The user's email.")
		isAdmin := cmd.Bool("admin", false, "Give the user the Admin role.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *uname == "" || *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(cmd)
		if err != nil {
			return err
		}
		return cli.addUser(*uname, *email, pwd, *isAdmin)

	case "resetpassword":
		cmd := cli.flagSet("resetpassword")
		uname := cmd.String("username", "", "The user's username or email. The password will be prompted next.")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *uname == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(cmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*uname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "seedcountries":
		return cli.seedCountries()

	case "schedulenotices":
		cmd := cli.flagSet("schedulenotices")
		from := cmd.String("from", "", "First practice review start date (YYYY-MM-DD).")
		to := cmd.String("to", "", "Last practice review start date (YYYY-MM-DD).")
		if err := parse(cmd, args[2:]); err != nil {
			return err
		}
		if *from == "" || *to == "" {
			cmd.Usage()
			return errHelp
		}
		fromDate, err := time.Parse(dateLayout, *from)
		if err != nil {
			return fmt.Errorf("invalid -from date %q", *from)
		}
		toDate, err := time.Parse(dateLayout, *to)
		if err != nil {
			return fmt.Errorf("invalid -to date %q", *to)
		}
		return cli.scheduleNotices(fromDate, toDate)

	default:
		cli.printUsage()
		return errHelp
	}
}
