package main

import (
	"context"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/country"
	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
	emailsvc "github.com/trezcool/prsonline/services/email"
	logsvc "github.com/trezcool/prsonline/services/logger"
	"github.com/trezcool/prsonline/storage/database"
	sqlxrepos "github.com/trezcool/prsonline/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger("ADMIN", conf)
	logger.Enable(!conf.Debug)

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	defer cancel()

	// set up DB
	errAndDie(logger, database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(ctx, conf)
	errAndDie(logger, err)
	defer db.Close()

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	renderer, err := notice.NewRenderer()
	errAndDie(logger, err)
	noticeRepo := sqlxrepos.NewNoticeRepository(db)
	usrRepo := sqlxrepos.NewUserRepository(db)
	countries := country.NewService(sqlxrepos.NewCountryRepository(db))

	// start CLI
	cli := commandLine{
		db:         db.DB,
		usrRepo:    usrRepo,
		usrSvc:     user.NewService(conf, usrRepo, countries, nil, mailSvc, validate, logger),
		countries:  countries,
		notices:    notice.NewService(conf, noticeRepo, renderer, mailSvc, validate, logger, nil),
		validate:   validate,
		translator: translator,
		logger:     logger,
		out:        os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed: "+err.Error(), err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
