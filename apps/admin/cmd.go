package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/opiskelu/palaute/core"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db     *sqlx.DB
	conf   *core.Config
	logger core.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  runupdater - synchronize courses and feedback targets from the study registry feed")
	fmt.Println("  sendnotifications - send due feedback notification emails")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	runUpdaterCmd := flag.NewFlagSet("runupdater", flag.ExitOnError)
	sendNotificationsCmd := flag.NewFlagSet("sendnotifications", flag.ExitOnError)

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "runupdater":
		if err := runUpdaterCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.runUpdater()
	case "sendnotifications":
		if err := sendNotificationsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.sendNotifications()
	default:
		cli.printUsage()
		return errHelp
	}
}
