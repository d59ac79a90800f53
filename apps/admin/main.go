package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/fomu/core"
	"github.com/trezcool/fomu/core/form"
	"github.com/trezcool/fomu/core/section"
	"github.com/trezcool/fomu/core/user"
	emailsvc "github.com/trezcool/fomu/services/email"
	"github.com/trezcool/fomu/storage/database"
	sqlxrepos "github.com/trezcool/fomu/storage/database/sqlx"
)

var logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

func main() {
	defer os.Exit(0)

	wd, err := core.Getwd()
	errAndDie(err)
	conf, err := core.NewConfig(wd)
	errAndDie(err)
	errAndDie(database.CreateIfNotExist(conf))

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	xdb := sqlx.NewDb(db, conf.Database.Engine)

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	codec, err := core.NewAnswersCodec(conf.AnswersSecretKey)
	errAndDie(err)
	mailSvc := emailsvc.NewConsoleService(conf)
	coreLogger := core.NewStdLogger(logger)

	// start CLI
	cli := commandLine{
		db:      db,
		usrSvc:  user.NewService(sqlxrepos.NewUserRepository(xdb), validate),
		secSvc:  section.NewService(sqlxrepos.NewSectionRepository(xdb), validate),
		formSvc: form.NewService(sqlxrepos.NewFormRepository(xdb), mailSvc, coreLogger, codec, conf, validate),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
