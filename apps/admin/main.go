package main

import (
	"log"
	"os"

	"github.com/opiskelu/palaute/core"
	logsvc "github.com/opiskelu/palaute/services/logger"
	"github.com/opiskelu/palaute/storage/database"
)

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()
	if err = db.Ping(); err != nil {
		logger.Fatal("pinging database", err)
	}

	// start CLI
	cli := commandLine{
		db:     db,
		conf:   conf,
		logger: logger,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
