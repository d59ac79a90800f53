package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/fomu/apps/api/echo"
	"github.com/trezcool/fomu/core"
	"github.com/trezcool/fomu/core/form"
	"github.com/trezcool/fomu/core/section"
	"github.com/trezcool/fomu/core/user"
	emailsvc "github.com/trezcool/fomu/services/email"
	logsvc "github.com/trezcool/fomu/services/logger"
	"github.com/trezcool/fomu/storage/database"
	sqlxrepos "github.com/trezcool/fomu/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lshortfile)

	wd, err := core.Getwd()
	if err != nil {
		std.Fatal(err)
	}
	conf, err := core.NewConfig(wd)
	if err != nil {
		std.Fatal(err)
	}

	var logger core.Logger
	if conf.Debug {
		logger = core.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}

	if err = run(conf, std, logger); err != nil {
		logger.Fatal("API server failed", err)
	}
}

func run(conf *core.Config, std *log.Logger, logger core.Logger) error {
	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		return err
	}
	defer db.Close()
	xdb := sqlx.NewDb(db, conf.Database.Engine)

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	codec, err := core.NewAnswersCodec(conf.AnswersSecretKey)
	if err != nil {
		return err
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(xdb), validate)
	secSvc := section.NewService(sqlxrepos.NewSectionRepository(xdb), validate)
	formSvc := form.NewService(sqlxrepos.NewFormRepository(xdb), mailSvc, logger, codec, conf, validate)

	app := echoapi.NewServer(&echoapi.Options{
		Addr:       conf.Server.Addr,
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		SectionSvc: secSvc,
		FormSvc:    formSvc,
	})

	serverErrs := make(chan error, 1)
	go func() { serverErrs <- app.Start() }()

	// block until a server error or a shutdown signal,
	// then drain in-flight requests
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-serverErrs:
		return err
	case sig := <-shutdown:
		std.Printf("caught %v; shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		return app.Stop(ctx)
	}
}
