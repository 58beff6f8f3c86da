// Package di wires the API dependencies with a dig container.
package di

import (
	"context"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/madrasa-app/madrasa/apps/api/echo"
	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
	emailsvc "github.com/madrasa-app/madrasa/services/email"
	logsvc "github.com/madrasa-app/madrasa/services/logger"
	schedulersvc "github.com/madrasa-app/madrasa/services/scheduler"
	"github.com/madrasa-app/madrasa/storage"
	"github.com/madrasa-app/madrasa/storage/database"
)

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newStore(conf *core.Config, logger core.Logger) (*storage.Store, error) {
	ctx := context.Background()
	if conf.Storage == core.StoragePostgres {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
	}
	store, err := storage.Open(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	logger.Info("store ready: " + conf.Storage)
	return store, nil
}

func newAccountRepository(store *storage.Store) account.Repository {
	return store.Accounts
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	account.InitValidators(validate, translator)
	return validate, translator
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	svc *account.Service,
	validate *validator.Validate,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		AccountSvc: svc,
		Validate:   validate,
		Translator: translator,
	})
}

func newScheduler(conf *core.Config, logger core.Logger, svc *account.Service) (*schedulersvc.Scheduler, error) {
	s, err := schedulersvc.NewScheduler(logger)
	if err != nil {
		return nil, err
	}
	if err = schedulersvc.RegisterOTPSweeper(s, svc, conf); err != nil {
		return nil, err
	}
	return s, nil
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newStore))
	must(c.Provide(newAccountRepository))
	must(c.Provide(emailsvc.New))
	must(c.Provide(newValidator))
	must(c.Provide(account.NewService))
	must(c.Provide(newServer))
	must(c.Provide(newScheduler))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
