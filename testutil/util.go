// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
	logsvc "github.com/madrasa-app/madrasa/services/logger"
)

// NewConfig returns a test configuration that does not read the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Madrasa",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: "noreply@test.eg",
		Storage:          core.StorageMemory,
		Server: core.ServerConfig{
			Host:                      "localhost:8000",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		OTP: core.OTPConfig{
			Timeout:       10 * time.Minute,
			MaxAttempts:   5,
			RateWindow:    time.Minute,
			SweepInterval: time.Minute,
		},
		Email: core.EmailConfig{Provider: core.EmailConsole},
	}
}

// NewLogger returns a logger that reports nowhere.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zap.NewNop(), conf)
}

// CreateAccount stores an account straight through the repository.
func CreateAccount(
	t *testing.T,
	repo account.Repository,
	uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) account.Account {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acc := account.Account{
		ID:        uuid.NewString(),
		Username:  uname,
		Email:     email,
		Role:      role,
		Grade:     account.GradeUnspecified,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := acc.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

// MockNow freezes account.NowFunc at now until the test ends, and returns a function moving it.
func MockNow(t *testing.T, now time.Time) func(time.Time) {
	t.Helper()
	orig := account.NowFunc
	current := now
	account.NowFunc = func() time.Time { return current }
	t.Cleanup(func() { account.NowFunc = orig })
	return func(to time.Time) { current = to }
}
