package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
	emailsvc "github.com/madrasa-app/madrasa/services/email"
	inmemdb "github.com/madrasa-app/madrasa/storage/database/inmem"
	"github.com/madrasa-app/madrasa/testutil"
)

const (
	testEmail = "mona@test.eg"
	testPwd   = "s3cret-pass"
)

type fixture struct {
	conf    *core.Config
	repo    account.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	svc     *account.Service
	acc     account.Account
}

func setup(t *testing.T) *fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	repo := inmemdb.NewAccountRepository(inmemdb.NewDB())
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	return &fixture{
		conf:    conf,
		repo:    repo,
		mailSvc: mailSvc,
		svc:     account.NewService(repo, mailSvc, logger, conf),
		acc:     testutil.CreateAccount(t, repo, "mona", testEmail, testPwd, account.RoleStudent, true),
	}
}

func (f *fixture) reload(t *testing.T) account.Account {
	t.Helper()
	acc, err := f.repo.GetAccount(context.Background(), account.GetFilter{ID: f.acc.ID})
	require.NoError(t, err)
	return acc
}

// issue issues a code and returns it, as read from the sent email.
func (f *fixture) issue(t *testing.T) string {
	t.Helper()
	res, err := f.svc.IssueOTP(context.Background(), testEmail)
	require.NoError(t, err)
	require.Equal(t, account.DeliveredViaEmail, res.DeliveredVia)

	msg, ok := f.mailSvc.LastMessage()
	require.True(t, ok, "no email sent")
	data, ok := msg.TemplateData.(account.OTPMailData)
	require.True(t, ok)
	return data.Code
}

func otherCode(code string) string {
	if code == "123456" {
		return "654321"
	}
	return "123456"
}

type failingMailer struct{}

func (failingMailer) SendMessages(...*core.EmailMessage) {}
func (failingMailer) Send(context.Context, *core.EmailMessage) error {
	return errors.New("smtp: connection refused")
}

// conflictingRepo fails the next `conflicts` updates as if another writer got there first.
type conflictingRepo struct {
	account.Repository
	conflicts int
	updates   int
}

func (r *conflictingRepo) UpdateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	r.updates++
	if r.conflicts > 0 {
		r.conflicts--
		return account.Account{}, account.ErrVersionConflict
	}
	return r.Repository.UpdateAccount(ctx, acc)
}

func TestService_IssueOTP(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.IssueOTP(context.Background(), "nobody@test.eg")
		assert.ErrorIs(t, err, account.ErrNotFound)
		assert.Empty(t, f.mailSvc.SentMessages())
	})

	t.Run("invalid email", func(t *testing.T) {
		f := setup(t)
		for _, email := range []string{"not-an-email", "Mona <mona@test.eg>", "<mona@test.eg>"} {
			_, err := f.svc.IssueOTP(context.Background(), email)
			var verr *core.ValidationError
			require.True(t, errors.As(err, &verr), "%q: got %v", email, err)
			assert.Equal(t, map[string]string{"email": "enter a valid email address"}, verr.FieldMap())
		}
		assert.Empty(t, f.mailSvc.SentMessages())
	})

	t.Run("creates a challenge", func(t *testing.T) {
		f := setup(t)
		now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		testutil.MockNow(t, now)

		res, err := f.svc.IssueOTP(context.Background(), "  MONA@test.eg ")
		require.NoError(t, err)
		assert.Equal(t, account.DeliveredViaEmail, res.DeliveredVia)
		assert.Equal(t, now.Add(10*time.Minute), res.ExpiresAt)

		acc := f.reload(t)
		require.NotNil(t, acc.OTP)
		assert.Regexp(t, `^[1-9]\d{5}$`, acc.OTP.Code)
		assert.Equal(t, now, acc.OTP.IssuedAt)
		assert.Equal(t, now.Add(10*time.Minute), acc.OTP.ExpiresAt)
		assert.False(t, acc.OTP.PreVerified)

		msg, ok := f.mailSvc.LastMessage()
		require.True(t, ok)
		assert.Equal(t, testEmail, msg.To[0].Address)
		assert.Contains(t, msg.TextContent, acc.OTP.Code)
		assert.Contains(t, msg.HTMLContent, acc.OTP.Code)
	})

	t.Run("re-issue replaces the previous code", func(t *testing.T) {
		f := setup(t)
		first := f.issue(t)
		var second string
		for second = f.issue(t); second == first; second = f.issue(t) {
		}

		_, err := f.svc.VerifyOTP(context.Background(), testEmail, first)
		assert.ErrorIs(t, err, account.ErrBadCredential)
		_, err = f.svc.VerifyOTP(context.Background(), testEmail, second)
		assert.NoError(t, err)
	})

	t.Run("re-issue resets the verification", func(t *testing.T) {
		f := setup(t)
		code := f.issue(t)
		_, err := f.svc.VerifyOTP(context.Background(), testEmail, code)
		require.NoError(t, err)

		f.issue(t)
		acc := f.reload(t)
		assert.False(t, acc.OTP.PreVerified)
		assert.Zero(t, acc.OTP.FailedAttempts)
	})

	t.Run("delivery failure falls back", func(t *testing.T) {
		f := setup(t)
		svc := account.NewService(f.repo, failingMailer{}, testutil.NewLogger(f.conf), f.conf)

		res, err := svc.IssueOTP(context.Background(), testEmail)
		require.NoError(t, err)
		assert.Equal(t, account.DeliveredViaFallback, res.DeliveredVia)

		// the code is still usable
		acc := f.reload(t)
		require.NotNil(t, acc.OTP)
		_, err = svc.VerifyOTP(context.Background(), testEmail, acc.OTP.Code)
		assert.NoError(t, err)
	})
}

func TestService_VerifyOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid input comes first", func(t *testing.T) {
		f := setup(t)
		for _, code := range []string{"", "12345", "1234567", "12a456", "١٢٣٤٥٦"} {
			_, err := f.svc.VerifyOTP(ctx, "nobody@test.eg", code)
			assert.True(t, core.IsValidationError(err), "code %q: got %v", code, err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.VerifyOTP(ctx, "nobody@test.eg", "123456")
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("no challenge", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.VerifyOTP(ctx, testEmail, "123456")
		assert.ErrorIs(t, err, account.ErrBadCredential)
	})

	t.Run("success", func(t *testing.T) {
		f := setup(t)
		code := f.issue(t)
		require.False(t, f.reload(t).IsVerified)

		acc, err := f.svc.VerifyOTP(ctx, testEmail, code)
		require.NoError(t, err)
		assert.Equal(t, f.acc.ID, acc.ID)

		acc = f.reload(t)
		assert.True(t, acc.IsVerified)
		require.NotNil(t, acc.OTP, "challenge must be kept for the password reset")
		assert.True(t, acc.OTP.PreVerified)
		assert.Equal(t, code, acc.OTP.Code)

		// verifying twice is fine
		_, err = f.svc.VerifyOTP(ctx, testEmail, code)
		assert.NoError(t, err)
	})

	t.Run("wrong code leaves the challenge usable", func(t *testing.T) {
		f := setup(t)
		code := f.issue(t)

		_, err := f.svc.VerifyOTP(ctx, testEmail, otherCode(code))
		assert.ErrorIs(t, err, account.ErrBadCredential)

		acc := f.reload(t)
		require.NotNil(t, acc.OTP)
		assert.Equal(t, code, acc.OTP.Code)
		assert.False(t, acc.OTP.PreVerified)
		assert.Equal(t, 1, acc.OTP.FailedAttempts)
		assert.False(t, acc.IsVerified)

		_, err = f.svc.VerifyOTP(ctx, testEmail, code)
		assert.NoError(t, err)
	})

	t.Run("expiry boundary", func(t *testing.T) {
		f := setup(t)
		now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		setNow := testutil.MockNow(t, now)
		code := f.issue(t)

		setNow(now.Add(10*time.Minute - time.Millisecond))
		_, err := f.svc.VerifyOTP(ctx, testEmail, code)
		assert.NoError(t, err)

		setNow(now.Add(10 * time.Minute))
		_, err = f.svc.VerifyOTP(ctx, testEmail, code)
		assert.NoError(t, err, "a code is still valid at its expiry instant")
	})

	t.Run("expired code clears the challenge", func(t *testing.T) {
		f := setup(t)
		now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		setNow := testutil.MockNow(t, now)
		code := f.issue(t)

		setNow(now.Add(10*time.Minute + time.Millisecond))
		_, err := f.svc.VerifyOTP(ctx, testEmail, code)
		assert.ErrorIs(t, err, account.ErrExpired)
		assert.Nil(t, f.reload(t).OTP)

		_, err = f.svc.VerifyOTP(ctx, testEmail, code)
		assert.ErrorIs(t, err, account.ErrBadCredential)
	})

	t.Run("too many failed attempts", func(t *testing.T) {
		f := setup(t)
		code := f.issue(t)
		wrong := otherCode(code)

		for i := 1; i < f.conf.OTP.MaxAttempts; i++ {
			_, err := f.svc.VerifyOTP(ctx, testEmail, wrong)
			require.ErrorIs(t, err, account.ErrBadCredential, "attempt %d", i)
		}
		_, err := f.svc.VerifyOTP(ctx, testEmail, wrong)
		assert.ErrorIs(t, err, account.ErrTooManyAttempts)
		assert.Nil(t, f.reload(t).OTP)

		// the right code no longer works
		_, err = f.svc.VerifyOTP(ctx, testEmail, code)
		assert.ErrorIs(t, err, account.ErrBadCredential)
	})
}

func TestService_ResetPasswordWithOTP(t *testing.T) {
	ctx := context.Background()
	reset := func(code, pwd, confirm string) account.OTPPasswordReset {
		return account.OTPPasswordReset{Email: testEmail, Code: code, NewPassword: pwd, ConfirmPassword: confirm}
	}

	t.Run("invalid input regardless of the challenge", func(t *testing.T) {
		f := setup(t)
		tests := []struct {
			name   string
			rp     account.OTPPasswordReset
			fields []string
		}{
			{name: "short password", rp: reset("123456", "12345", "12345"), fields: []string{"newPassword"}},
			{name: "mismatch", rp: reset("123456", "123456", "1234567"), fields: []string{"confirmPassword"}},
			{name: "bad code", rp: reset("12345", "123456", "123456"), fields: []string{"otp"}},
			{name: "all wrong", rp: reset("abc", "1", "2"), fields: []string{"otp", "newPassword", "confirmPassword"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := f.svc.ResetPasswordWithOTP(ctx, tt.rp)
				var verr *core.ValidationError
				require.True(t, errors.As(err, &verr), "got %v", err)
				for _, fld := range tt.fields {
					assert.Contains(t, verr.FieldMap(), fld)
				}
			})
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		f := setup(t)
		rp := reset("123456", "new-pass", "new-pass")
		rp.Email = "nobody@test.eg"
		assert.ErrorIs(t, f.svc.ResetPasswordWithOTP(ctx, rp), account.ErrNotFound)
	})

	t.Run("after verification", func(t *testing.T) {
		f := setup(t)
		code := f.issue(t)
		_, err := f.svc.VerifyOTP(ctx, testEmail, code)
		require.NoError(t, err)

		require.NoError(t, f.svc.ResetPasswordWithOTP(ctx, reset(code, "brand-new", "brand-new")))

		acc := f.reload(t)
		assert.Nil(t, acc.OTP)
		assert.NotNil(t, acc.PasswordChangedAt)
		assert.NoError(t, acc.CheckPassword("brand-new"))
		assert.Error(t, acc.CheckPassword(testPwd))

		// the code is consumed
		err = f.svc.ResetPasswordWithOTP(ctx, reset(code, "another-one", "another-one"))
		assert.ErrorIs(t, err, account.ErrBadCredential)
	})

	t.Run("without prior verification", func(t *testing.T) {
		f := setup(t)
		code := f.issue(t)

		require.NoError(t, f.svc.ResetPasswordWithOTP(ctx, reset(code, "brand-new", "brand-new")))
		acc := f.reload(t)
		assert.Nil(t, acc.OTP)
		assert.True(t, acc.IsVerified)
		assert.NoError(t, acc.CheckPassword("brand-new"))
	})

	t.Run("six characters are enough", func(t *testing.T) {
		f := setup(t)
		code := f.issue(t)
		_, err := f.svc.VerifyOTP(ctx, testEmail, code)
		require.NoError(t, err)

		require.NoError(t, f.svc.ResetPasswordWithOTP(ctx, reset(code, "abcdef", "abcdef")))
		acc := f.reload(t)
		assert.Nil(t, acc.OTP)
		assert.NoError(t, acc.CheckPassword("abcdef"))
	})

	t.Run("wrong code", func(t *testing.T) {
		f := setup(t)
		code := f.issue(t)

		err := f.svc.ResetPasswordWithOTP(ctx, reset(otherCode(code), "brand-new", "brand-new"))
		assert.ErrorIs(t, err, account.ErrBadCredential)
		acc := f.reload(t)
		assert.NoError(t, acc.CheckPassword(testPwd))
		assert.NotNil(t, acc.OTP)
	})

	t.Run("no challenge", func(t *testing.T) {
		f := setup(t)
		err := f.svc.ResetPasswordWithOTP(ctx, reset("123456", "brand-new", "brand-new"))
		assert.ErrorIs(t, err, account.ErrBadCredential)
	})

	t.Run("expired", func(t *testing.T) {
		f := setup(t)
		now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		setNow := testutil.MockNow(t, now)
		code := f.issue(t)
		_, err := f.svc.VerifyOTP(ctx, testEmail, code)
		require.NoError(t, err)

		setNow(now.Add(11 * time.Minute))
		err = f.svc.ResetPasswordWithOTP(ctx, reset(code, "brand-new", "brand-new"))
		assert.ErrorIs(t, err, account.ErrExpired)

		acc := f.reload(t)
		assert.Nil(t, acc.OTP)
		assert.NoError(t, acc.CheckPassword(testPwd))
	})
}

func TestService_versionConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("retries until the write goes through", func(t *testing.T) {
		f := setup(t)
		repo := &conflictingRepo{Repository: f.repo, conflicts: 2}
		svc := account.NewService(repo, f.mailSvc, testutil.NewLogger(f.conf), f.conf)

		_, err := svc.IssueOTP(ctx, testEmail)
		require.NoError(t, err)
		assert.Equal(t, 3, repo.updates)
		assert.NotNil(t, f.reload(t).OTP)
	})

	t.Run("gives up after 3 attempts", func(t *testing.T) {
		f := setup(t)
		repo := &conflictingRepo{Repository: f.repo, conflicts: 3}
		svc := account.NewService(repo, f.mailSvc, testutil.NewLogger(f.conf), f.conf)

		_, err := svc.IssueOTP(ctx, testEmail)
		assert.ErrorIs(t, err, account.ErrVersionConflict)
		assert.Equal(t, 3, repo.updates)
		assert.Nil(t, f.reload(t).OTP)
		assert.Empty(t, f.mailSvc.SentMessages())
	})

	t.Run("a stale write is rejected by the store", func(t *testing.T) {
		f := setup(t)
		stale := f.reload(t)
		f.issue(t)

		stale.OTP = &account.OTPChallenge{Code: "111111", ExpiresAt: time.Now().Add(time.Hour)}
		_, err := f.repo.UpdateAccount(ctx, stale)
		assert.ErrorIs(t, err, account.ErrVersionConflict)
		assert.NotEqual(t, "111111", f.reload(t).OTP.Code)
	})
}

func TestService_PurgeExpiredOTPs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := testutil.CreateAccount(t, f.repo, "salma", "salma@test.eg", testPwd, account.RoleStudent, true)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	setNow := testutil.MockNow(t, now)
	f.issue(t)
	setNow(now.Add(5 * time.Minute))
	_, err := f.svc.IssueOTP(ctx, other.Email)
	require.NoError(t, err)

	setNow(now.Add(12 * time.Minute))
	n, err := f.svc.PurgeExpiredOTPs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, f.reload(t).OTP)

	acc, err := f.repo.GetAccount(ctx, account.GetFilter{ID: other.ID})
	require.NoError(t, err)
	assert.NotNil(t, acc.OTP)
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	na := func(uname, email string) account.NewAccount {
		return account.NewAccount{
			Username:        uname,
			Email:           email,
			Phone:           "01012345678",
			Password:        "kitten-42",
			ConfirmPassword: "kitten-42",
		}
	}

	t.Run("creates an unverified student and sends a code", func(t *testing.T) {
		f := setup(t)
		input := na("Youssef", " Youssef@Test.eg ")
		input.Role = account.RoleAdmin

		acc, res, err := f.svc.Register(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, account.DeliveredViaEmail, res.DeliveredVia)
		assert.Equal(t, account.RoleStudent, acc.Role)
		assert.Equal(t, "youssef@test.eg", acc.Email)
		assert.Equal(t, account.GradeUnspecified, acc.Grade)
		assert.True(t, acc.IsActive)
		assert.False(t, acc.IsVerified)
		assert.NoError(t, acc.CheckPassword("kitten-42"))

		msg, ok := f.mailSvc.LastMessage()
		require.True(t, ok)
		assert.Equal(t, "Welcome to Madrasa", msg.Subject)
		code := msg.TemplateData.(account.OTPMailData).Code

		_, err = f.svc.VerifyOTP(ctx, acc.Email, code)
		require.NoError(t, err)
		acc, err = f.svc.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, acc.IsVerified)
	})

	t.Run("duplicates", func(t *testing.T) {
		f := setup(t)
		_, _, err := f.svc.Register(ctx, na("MONA", "new@test.eg"))
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Contains(t, verr.FieldMap(), "username")

		_, _, err = f.svc.Register(ctx, na("new", testEmail))
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Contains(t, verr.FieldMap(), "email")
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	inactive := testutil.CreateAccount(t, f.repo, "ghost", "ghost@test.eg", testPwd, account.RoleStudent, false)

	_, err := f.svc.Authenticate(ctx, "nobody@test.eg", testPwd)
	assert.ErrorIs(t, err, account.ErrAuthenticationFailed)

	_, err = f.svc.Authenticate(ctx, testEmail, "wrong-pass")
	assert.ErrorIs(t, err, account.ErrAuthenticationFailed)

	_, err = f.svc.Authenticate(ctx, inactive.Email, testPwd)
	assert.ErrorIs(t, err, account.ErrAccountDeactivated)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	testutil.MockNow(t, now)
	acc, err := f.svc.Authenticate(ctx, " Mona@Test.eg", testPwd)
	require.NoError(t, err)
	require.NotNil(t, acc.LastLogin)
	assert.Equal(t, now, *acc.LastLogin)
}

func TestService_SetPassword(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.issue(t)

	_, err := f.svc.SetPassword(ctx, f.acc.ID, "short")
	assert.True(t, core.IsValidationError(err), "got %v", err)

	acc, err := f.svc.SetPassword(ctx, f.acc.ID, "long-enough")
	require.NoError(t, err)
	assert.NoError(t, acc.CheckPassword("long-enough"))
	assert.NotNil(t, acc.PasswordChangedAt)
	assert.Nil(t, acc.OTP, "an administrative reset drops the outstanding code")
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("profile fields", func(t *testing.T) {
		f := setup(t)
		acc, err := f.svc.Update(ctx, f.acc.ID, account.UpdateAccount{Username: " mona_s ", Phone: "01012345678"})
		require.NoError(t, err)
		assert.Equal(t, "mona_s", acc.Username)
		assert.Equal(t, "01012345678", acc.Phone)
		assert.Equal(t, account.GradeUnspecified, acc.Grade, "empty fields are left as they are")
		assert.Nil(t, acc.PasswordChangedAt)
		assert.Equal(t, f.acc.Version+1, acc.Version)
		assert.NoError(t, acc.CheckPassword(testPwd))
	})

	t.Run("password", func(t *testing.T) {
		f := setup(t)
		f.issue(t)
		now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		testutil.MockNow(t, now)

		acc, err := f.svc.Update(ctx, f.acc.ID, account.UpdateAccount{Password: "n3w-secret", ConfirmPassword: "n3w-secret"})
		require.NoError(t, err)
		assert.NoError(t, acc.CheckPassword("n3w-secret"))
		require.NotNil(t, acc.PasswordChangedAt)
		assert.Equal(t, now, *acc.PasswordChangedAt)
		assert.Nil(t, acc.OTP)
		assert.Equal(t, f.acc.Version+2, acc.Version, "one write for the issue, one for the update")
	})

	t.Run("username taken", func(t *testing.T) {
		f := setup(t)
		testutil.CreateAccount(t, f.repo, "hany", "hany@test.eg", "", account.RoleStudent, true)

		_, err := f.svc.Update(ctx, f.acc.ID, account.UpdateAccount{Username: "HANY"})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		assert.Equal(t, map[string]string{"username": account.ErrUsernameExists.Error()}, verr.FieldMap())
		assert.Equal(t, f.acc.Version, f.reload(t).Version)
	})

	t.Run("own username in another case", func(t *testing.T) {
		f := setup(t)
		acc, err := f.svc.Update(ctx, f.acc.ID, account.UpdateAccount{Username: "Mona"})
		require.NoError(t, err)
		assert.Equal(t, "Mona", acc.Username)
	})

	t.Run("invalid input", func(t *testing.T) {
		f := setup(t)
		tests := []struct {
			name   string
			ua     account.UpdateAccount
			fields map[string]string
		}{
			{
				name:   "short password",
				ua:     account.UpdateAccount{Password: "abc", ConfirmPassword: "abc"},
				fields: map[string]string{"password": "password must contain at least 6 characters"},
			},
			{
				name:   "confirmation mismatch",
				ua:     account.UpdateAccount{Password: "n3w-secret", ConfirmPassword: "n3w-secre"},
				fields: map[string]string{"confirmPassword": "passwords do not match"},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Update(ctx, f.acc.ID, tt.ua)
				var verr *core.ValidationError
				require.True(t, errors.As(err, &verr), "got %v", err)
				assert.Equal(t, tt.fields, verr.FieldMap())
			})
		}
		reloaded := f.reload(t)
		assert.NoError(t, reloaded.CheckPassword(testPwd))
	})

	t.Run("no changes", func(t *testing.T) {
		f := setup(t)
		for _, ua := range []account.UpdateAccount{{}, {Username: f.acc.Username, Grade: f.acc.Grade}} {
			_, err := f.svc.Update(ctx, f.acc.ID, ua)
			require.True(t, core.IsValidationError(err), "got %v", err)
			assert.EqualError(t, err, "no changes were made")
		}
		assert.Equal(t, f.acc.Version, f.reload(t).Version)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Update(ctx, "ghost", account.UpdateAccount{Phone: "01012345678"})
		assert.ErrorIs(t, err, account.ErrNotFound)
	})
}

func TestService_Deactivate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.issue(t)

	acc, err := f.svc.Deactivate(ctx, f.acc.ID)
	require.NoError(t, err)
	assert.False(t, acc.IsActive)
	assert.Nil(t, acc.OTP, "a deactivated account keeps no code")

	_, err = f.svc.Authenticate(ctx, testEmail, testPwd)
	assert.ErrorIs(t, err, account.ErrAccountDeactivated)

	inactive := false
	accs, err := f.svc.Query(ctx, account.QueryFilter{IsActive: &inactive})
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Equal(t, f.acc.ID, accs[0].ID)

	again, err := f.svc.Deactivate(ctx, f.acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.Version, again.Version, "deactivating twice writes once")

	_, err = f.svc.Deactivate(ctx, "ghost")
	assert.ErrorIs(t, err, account.ErrNotFound)
}
