package main

import (
	"database/sql"
	"os"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/user"
	emailsvc "github.com/trezcool/madrasa/services/email"
	logsvc "github.com/trezcool/madrasa/services/logger"
	"github.com/trezcool/madrasa/storage/database"
	inmemdb "github.com/trezcool/madrasa/storage/database/inmem"
	sqlxrepos "github.com/trezcool/madrasa/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stdout, "ADMIN : ", conf)
	defer logger.Close()

	var (
		db      *sql.DB
		usrRepo user.Repository
	)
	if conf.Database.Engine == "memory" {
		usrRepo = inmemdb.NewUserRepository(inmemdb.Open())
	} else {
		sqlxDB, err := database.Open(conf)
		if err != nil {
			logger.Fatal(err.Error(), err)
		}
		defer sqlxDB.Close()
		db = sqlxDB.DB
		usrRepo = sqlxrepos.NewUserRepository(sqlxDB)
	}

	tmpls, err := core.ParseEmailTemplates(conf)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}

	// start CLI
	validate, translator := newValidator()
	cli := commandLine{
		conf:       conf,
		db:         db,
		usrSvc:     user.NewService(usrRepo, emailsvc.NewConsoleService(tmpls, logger, conf), conf),
		validate:   validate,
		translator: translator,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		logger.Close()
		os.Exit(1)
	}
}
