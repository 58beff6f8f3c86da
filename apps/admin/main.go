package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
	emailsvc "github.com/madrasa-app/madrasa/services/email"
	logsvc "github.com/madrasa-app/madrasa/services/logger"
	"github.com/madrasa-app/madrasa/storage"
	"github.com/madrasa-app/madrasa/storage/database"
)

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	os.Exit(run(conf, logger))
}

func run(conf *core.Config, logger core.Logger) int {
	defer func() { _ = logger.Sync() }()
	ctx := context.Background()

	// set up store
	store, err := storage.Open(ctx, conf)
	if err != nil {
		logger.Error(fmt.Sprintf("opening store: %v", err), err)
		return 1
	}
	defer func() { _ = store.Close() }()

	// migrations need a raw connection
	var db *sql.DB
	if conf.Storage == core.StoragePostgres {
		sqlxDB, err := database.Open(ctx, conf)
		if err != nil {
			logger.Error(fmt.Sprintf("opening database: %v", err), err)
			return 1
		}
		defer func() { _ = sqlxDB.Close() }()
		db = sqlxDB.DB
	}

	mailSvc, err := emailsvc.New(conf, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("creating email service: %v", err), err)
		return 1
	}

	validate, translator := core.NewValidator()
	account.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:         db,
		svc:        account.NewService(store.Accounts, mailSvc, logger, conf),
		validate:   validate,
		translator: translator,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
