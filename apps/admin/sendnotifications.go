package main

import (
	"context"

	"github.com/opiskelu/palaute/core"
	emailsvc "github.com/opiskelu/palaute/services/email"
	notifsvc "github.com/opiskelu/palaute/services/notification"
	sqlxrepos "github.com/opiskelu/palaute/storage/database/sqlx"
)

var notificationsRunFunc = (*notifsvc.Service).RunDaily // mockable

func (cli *commandLine) sendNotifications() error {
	core.ParseEmailTemplates(cli.conf, cli.logger)

	var emailSvc core.EmailService
	if cli.conf.Debug {
		emailSvc = emailsvc.NewConsoleService(cli.conf)
	} else {
		emailSvc = emailsvc.NewSendgridService(cli.conf, cli.logger)
	}

	svc := notifsvc.NewService(
		sqlxrepos.NewFeedbackRepository(cli.db),
		emailSvc,
		cli.logger,
		cli.conf,
	)
	return notificationsRunFunc(svc, context.Background())
}
