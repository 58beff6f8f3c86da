package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
	emailsvc "github.com/madrasa-app/madrasa/services/email"
	inmemdb "github.com/madrasa-app/madrasa/storage/database/inmem"
	"github.com/madrasa-app/madrasa/testutil"
)

var accRepo account.Repository

func setup(t *testing.T, db *sql.DB) *commandLine {
	t.Helper()
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	accRepo = inmemdb.NewAccountRepository(inmemdb.NewDB())

	validate, translator := core.NewValidator()
	account.InitValidators(validate, translator)

	return &commandLine{
		db:         db,
		svc:        account.NewService(accRepo, emailsvc.NewConsoleServiceMock(conf, logger), logger, conf),
		validate:   validate,
		translator: translator,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	origRun := gooseRunFunc
	defer func() { gooseRunFunc = origRun }()

	gooseRunFunc = func(_ context.Context, db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	t.Run("no sql database", func(t *testing.T) {
		cli := setup(t, nil)
		checkErr(t, cliTest{wantErr: errNoSQLDatabase}, cli.run([]string{"admin", "migrate", "up"}))
	})

	cli := setup(t, &sql.DB{})
	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "enrollment", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t, nil)
	origRead := readPasswordFunc
	defer func() { readPasswordFunc = origRead }()

	acc := testutil.CreateAccount(t, accRepo, "karim", "karim@test.eg", "old-pass", account.RoleTeacher, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lollol"}, wantErr: account.ErrNotFound},
		{
			name: "password too short", args: []string{"resetpassword", "-username", acc.Username}, extra: extra{pwd: "lol"},
			wantErrStr: "password must contain at least 6 characters",
		},
		{name: "reset with username", args: []string{"resetpassword", "-username", acc.Username}, extra: extra{pwd: "lollol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", acc.Email}, extra: extra{pwd: "lmaolmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			before, err := accRepo.GetAccount(context.Background(), account.GetFilter{ID: acc.ID})
			if err != nil {
				t.Fatalf("GetAccount() failed, %v", err)
			}

			err = cli.run(args)
			checkErr(t, tt, err)
			if err != nil {
				return
			}

			after, err := accRepo.GetAccount(context.Background(), account.GetFilter{ID: acc.ID})
			if err != nil {
				t.Fatalf("GetAccount() failed, %v", err)
			}
			if bytes.Equal(after.PasswordHash, before.PasswordHash) {
				t.Error("failed to update new password")
			}
			if err := after.CheckPassword(tt.extra.(extra).pwd); err != nil {
				t.Errorf("CheckPassword() = %v", err)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t, nil)
	origRead := readPasswordFunc
	defer func() { readPasswordFunc = origRead }()
	readPasswordFunc = func(int) ([]byte, error) { return []byte("admin-pass"), nil }

	existing := testutil.CreateAccount(t, accRepo, "fatma", "fatma@test.eg", "old-pass", account.RoleStudent, false)

	tests := []struct {
		cliTest
		wantUname string
		wantRole  string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"adduser"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "no email", args: []string{"adduser", "-username", "boss"}, wantErr: errHelp}},
		{
			cliTest:   cliTest{name: "create admin", args: []string{"adduser", "-username", "boss", "-email", "Boss@test.eg"}},
			wantUname: "boss", wantRole: account.RoleAdmin,
		},
		{
			cliTest:   cliTest{name: "create teacher", args: []string{"adduser", "-username", "mr_hamdy", "-email", "hamdy@test.eg", "-role", "teacher"}},
			wantUname: "mr_hamdy", wantRole: account.RoleTeacher,
		},
		{
			cliTest:   cliTest{name: "update existing by email", args: []string{"adduser", "-username", "whatever", "-email", existing.Email, "-role", "parent"}},
			wantUname: existing.Username, wantRole: account.RoleParent,
		},
		{
			cliTest: cliTest{
				name: "invalid role", args: []string{"adduser", "-username", "xavier", "-email", "x@test.eg", "-role", "root"},
				wantErrStr: "invalid role",
			},
		},
		{
			cliTest: cliTest{
				name: "invalid email", args: []string{"adduser", "-username", "nour", "-email", "not-an-email"},
				wantErrStr: "enter a valid email address",
			},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			checkErr(t, tt.cliTest, err)
			if err != nil {
				return
			}

			acc, err := accRepo.GetAccount(context.Background(), account.GetFilter{Username: tt.wantUname})
			if err != nil {
				t.Fatalf("GetAccount() failed, %v", err)
			}
			if acc.Role != tt.wantRole {
				t.Errorf("acc.Role = %s, want %s", acc.Role, tt.wantRole)
			}
			if !acc.IsActive {
				t.Error("account is not active")
			}
			if err := acc.CheckPassword("admin-pass"); err != nil {
				t.Errorf("CheckPassword() = %v", err)
			}
		})
	}
}

func Test_commandLine_addUser_passwordPolicy(t *testing.T) {
	cli := setup(t, nil)
	origRead := readPasswordFunc
	defer func() { readPasswordFunc = origRead }()

	tests := []struct {
		cliTest
		pwd string
	}{
		{cliTest: cliTest{name: "too short", wantErrStr: "password must contain at least 6 characters"}, pwd: "abc"},
		{cliTest: cliTest{name: "whitespace", wantErrStr: "password must not contain whitespace"}, pwd: "admin pass"},
		{cliTest: cliTest{name: "similar to username", wantErrStr: "password cannot be similar to the username or email"}, pwd: "rania1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd := tt.pwd
			readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }

			err := cli.run([]string{"admin", "adduser", "-username", "rania", "-email", "rania@test.eg"})
			checkErr(t, tt.cliTest, err)

			_, err = accRepo.GetAccount(context.Background(), account.GetFilter{Email: "rania@test.eg"})
			if errors.Cause(err) != account.ErrNotFound {
				t.Errorf("GetAccount() error = %v, want %v", err, account.ErrNotFound)
			}
		})
	}
}
