package main

import (
	"context"

	sqlxrepos "github.com/opiskelu/palaute/storage/database/sqlx"
	"github.com/opiskelu/palaute/updater"
)

var updaterRunFunc = (*updater.Updater).Run // mockable

func (cli *commandLine) runUpdater() error {
	upd := updater.New(
		updater.NewHTTPSource(cli.conf),
		sqlxrepos.NewCourseRepository(cli.db),
		sqlxrepos.NewFeedbackRepository(cli.db),
		sqlxrepos.NewUserRepository(cli.db),
		cli.logger,
		cli.conf,
	)
	return updaterRunFunc(upd, context.Background())
}
