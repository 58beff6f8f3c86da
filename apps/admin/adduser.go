package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
)

// addUser updates or creates an account.Account with the given role.
func (cli *commandLine) addUser(uname, email, pwd, role string) error {
	ctx := context.Background()

	acc, err := cli.svc.GetByUsernameOrEmail(ctx, email)
	if errors.Cause(err) == account.ErrNotFound {
		acc, err = cli.svc.GetByUsernameOrEmail(ctx, uname)
	}
	switch {
	case err == nil:
		if _, err = cli.svc.SetRole(ctx, acc.ID, role); err != nil {
			return err
		}
		_, err = cli.svc.SetPassword(ctx, acc.ID, pwd)
		return err
	case errors.Cause(err) != account.ErrNotFound:
		return err
	}

	na := account.NewAccount{
		Username:        uname,
		Email:           email,
		Role:            role,
		Password:        pwd,
		ConfirmPassword: pwd,
	}
	na.Clean()
	if err := cli.validate.Struct(na); err != nil {
		return core.TranslateValidationErrors(err, cli.translator)
	}
	_, err = cli.svc.Create(ctx, na)
	return err
}
