package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB // nil on the memory engine
	usrRepo   user.Repository
	rosterSvc roster.ServiceInterface
	stdSvc    standard.ServiceInterface
	resultSvc result.ServiceInterface
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL [-name NAME] [-staff] - create or update a coach account")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset a coach's password")
	fmt.Fprintln(cli.out, "  seed -email EMAIL - fill a coach's account with demo data")
}

// readPassword prompts for a password; an empty one prints usage.
func (cli *commandLine) readPassword(fs *flag.FlagSet) (string, error) {
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

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The coach's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The coach's name.")
	addUserStaff := addUserCmd.Bool("staff", false, "Grant staff access.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The coach's email. The password will be prompted next.")

	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)
	seedEmail := seedCmd.String("email", "", "The coach owning the demo data. Created (and password prompted) if missing.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, seedCmd} {
		fs.SetOutput(cli.out)
	}

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
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addUserCmd)
		if err != nil {
			return err
		}
		usr, err := cli.addUser(*addUserName, *addUserEmail, pwd, *addUserStaff)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "user %s saved (id %s)\n", usr.Email, usr.ID)
		return nil

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedEmail == "" {
			seedCmd.Usage()
			return errHelp
		}
		ctx := context.Background()
		coach, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(*seedEmail, true /* lower */)})
		if err != nil {
			if !core.IsNotFound(err) {
				return err
			}
			pwd, err := cli.readPassword(seedCmd)
			if err != nil {
				return err
			}
			if coach, err = cli.addUser("", *seedEmail, pwd, false); err != nil {
				return err
			}
		}
		rep, err := cli.seed(ctx, coach)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "seeded %s\n", rep)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}
