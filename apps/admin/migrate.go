package main

import (
	"context"
	"database/sql"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core/account"
	"github.com/madrasa-app/madrasa/storage/database"
)

var (
	gooseRunFunc = database.RunMigrations // mockable

	errNoSQLDatabase = errors.New("migrations are only available with the postgres storage")
)

type commandLine struct {
	db         *sql.DB // nil unless the storage is postgres
	svc        *account.Service
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLDatabase
	}
	return gooseRunFunc(context.Background(), cli.db, args[0], args[1:]...)
}
