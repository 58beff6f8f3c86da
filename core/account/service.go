package account

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound             = errors.New("account not found")
	ErrEmailExists          = errors.New("an account with this email already exists")
	ErrUsernameExists       = errors.New("an account with this username already exists")
	ErrBadCredential        = errors.New("invalid verification code")
	ErrExpired              = errors.New("verification code expired")
	ErrTooManyAttempts      = errors.New("too many failed attempts, request a new code")
	ErrVersionConflict      = errors.New("account was modified concurrently, retry")
	ErrAuthenticationFailed = errors.New("invalid email or password")
	ErrAccountDeactivated   = errors.New("account deactivated")

	errInvalidOTPFormat    = errors.New("code must be exactly 6 digits")
	errPasswordTooShort    = errors.New("password must contain at least 6 characters")
	errPasswordMismatch    = errors.New("passwords do not match")
	errInvalidEmailAddress = errors.New("enter a valid email address")
	errInvalidRole         = errors.New("invalid role")
	errNoChanges           = errors.New("no changes were made")
)

const (
	DeliveredViaEmail    = "email"
	DeliveredViaFallback = "fallback"

	// maxWriteAttempts bounds the read-modify-write retries on version conflicts.
	maxWriteAttempts = 3
	minPasswordLen   = 6
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when taken by an account other than excluded.
		CheckUniqueness(ctx context.Context, username, email string, excluded ...Account) error
		// CreateAccount stores a new account at version 1.
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter) (Account, error)
		// QueryAccounts applies AND operation on available QueryFilter fields, newest first.
		// QueryFilter.Search does a case-insensitive match on one of Account.Username or Account.Email.
		QueryAccounts(ctx context.Context, filter QueryFilter) ([]Account, error)
		// UpdateAccount replaces the stored account if its version still equals acc.Version,
		// and returns it with the version incremented. Otherwise it fails with ErrVersionConflict.
		UpdateAccount(ctx context.Context, acc Account) (Account, error)
		// PurgeExpiredOTPs drops every challenge that expired before now and returns how many were dropped.
		PurgeExpiredOTPs(ctx context.Context, now time.Time) (int, error)
	}

	// IssueResult describes the outcome of an OTP issuance.
	IssueResult struct {
		DeliveredVia string    `json:"deliveredVia"`
		ExpiresAt    time.Time `json:"expiresAt"`
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}

	// transition mutates a freshly read account. persist requests a conditional write of the account,
	// outcome is returned to the caller once the write (if any) succeeded.
	transition func(acc *Account, now time.Time) (persist bool, outcome error)
)

func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, logger: logger, conf: conf}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, excluded ...Account) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, excluded...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Create stores a new account. The input is expected to be cleaned and validated.
func (svc *Service) Create(ctx context.Context, na NewAccount) (Account, error) {
	na.Clean()
	if !(&Account{Role: na.Role}).HasRole(AllRoles...) {
		return Account{}, core.NewValidationError(errInvalidRole, core.FieldError{Field: "role", Error: errInvalidRole.Error()})
	}
	if err := svc.CheckUniqueness(ctx, na.Username, na.Email); err != nil {
		return Account{}, err
	}
	now := NowFunc().UTC()
	acc := Account{
		ID:        uuid.NewString(),
		Username:  na.Username,
		Email:     na.Email,
		Phone:     na.Phone,
		Role:      na.Role,
		Grade:     na.Grade,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateAccount(ctx, acc)
}

// Register creates a student account and sends it a verification code.
func (svc *Service) Register(ctx context.Context, na NewAccount) (Account, IssueResult, error) {
	na.Role = RoleStudent
	acc, err := svc.Create(ctx, na)
	if err != nil {
		return Account{}, IssueResult{}, err
	}
	acc, res, err := svc.issueOTP(ctx, GetFilter{ID: acc.ID}, otpWelcome)
	if err != nil {
		return Account{}, IssueResult{}, err
	}
	return acc, res, nil
}

// Authenticate checks the credentials and records the login time.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (Account, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrAuthenticationFailed
		}
		return Account{}, err
	}
	if err := acc.CheckPassword(pwd); err != nil {
		return Account{}, ErrAuthenticationFailed
	}
	if !acc.IsActive {
		return Account{}, ErrAccountDeactivated
	}
	return svc.apply(ctx, GetFilter{ID: acc.ID}, func(acc *Account, now time.Time) (bool, error) {
		acc.LastLogin = &now
		return true, nil
	})
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// GetByUsernameOrEmail looks the account up by email first, then by username.
func (svc *Service) GetByUsernameOrEmail(ctx context.Context, ident string) (Account, error) {
	ident = core.CleanString(ident)
	acc, err := svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(ident, true /* lower */)})
	if errors.Cause(err) == ErrNotFound {
		return svc.repo.GetAccount(ctx, GetFilter{Username: ident})
	}
	return acc, err
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Account, error) {
	filter.Clean()
	return svc.repo.QueryAccounts(ctx, filter)
}

// SetPassword replaces the password of an account without an OTP (administrative reset).
func (svc *Service) SetPassword(ctx context.Context, id, pwd string) (Account, error) {
	if len(pwd) < minPasswordLen {
		return Account{}, core.NewValidationError(errPasswordTooShort,
			core.FieldError{Field: "password", Error: errPasswordTooShort.Error()})
	}
	hash, err := hashPassword(pwd)
	if err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}
	return svc.apply(ctx, GetFilter{ID: id}, func(acc *Account, now time.Time) (bool, error) {
		acc.PasswordHash = hash
		acc.PasswordChangedAt = &now
		acc.OTP = nil
		return true, nil
	})
}

// Update applies the profile changes of ua to the account. A new password invalidates the tokens issued before it
// and drops any outstanding OTP challenge.
func (svc *Service) Update(ctx context.Context, id string, ua UpdateAccount) (Account, error) {
	ua.Clean()
	if ua.Password != "" && len(ua.Password) < minPasswordLen {
		return Account{}, core.NewValidationError(errPasswordTooShort,
			core.FieldError{Field: "password", Error: errPasswordTooShort.Error()})
	}
	if ua.Password != ua.ConfirmPassword {
		return Account{}, core.NewValidationError(errPasswordMismatch,
			core.FieldError{Field: "confirmPassword", Error: errPasswordMismatch.Error()})
	}

	current, err := svc.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if ua.Username != "" && ua.Username != current.Username {
		if err := svc.CheckUniqueness(ctx, ua.Username, current.Email, current); err != nil {
			return Account{}, err
		}
	}
	var hash []byte
	if ua.Password != "" {
		if hash, err = hashPassword(ua.Password); err != nil {
			return Account{}, errors.Wrap(err, "hashing password")
		}
	}

	return svc.apply(ctx, GetFilter{ID: id}, func(acc *Account, now time.Time) (bool, error) {
		var changed bool
		set := func(dst *string, val string) {
			if val != "" && val != *dst {
				*dst = val
				changed = true
			}
		}
		set(&acc.Username, ua.Username)
		set(&acc.Phone, ua.Phone)
		set(&acc.Grade, ua.Grade)
		if hash != nil {
			acc.PasswordHash = hash
			acc.PasswordChangedAt = &now
			acc.OTP = nil
			changed = true
		}
		if !changed {
			return false, core.NewValidationError(errNoChanges)
		}
		return true, nil
	})
}

// Deactivate disables an account: it can no longer log in and its tokens are rejected.
func (svc *Service) Deactivate(ctx context.Context, id string) (Account, error) {
	return svc.apply(ctx, GetFilter{ID: id}, func(acc *Account, _ time.Time) (bool, error) {
		if !acc.IsActive {
			return false, nil
		}
		acc.IsActive = false
		acc.OTP = nil
		return true, nil
	})
}

// SetRole changes the role of an account and (re)activates it.
func (svc *Service) SetRole(ctx context.Context, id, role string) (Account, error) {
	if !(&Account{Role: role}).HasRole(AllRoles...) {
		return Account{}, core.NewValidationError(errInvalidRole, core.FieldError{Field: "role", Error: errInvalidRole.Error()})
	}
	return svc.apply(ctx, GetFilter{ID: id}, func(acc *Account, _ time.Time) (bool, error) {
		acc.Role = role
		acc.IsActive = true
		return true, nil
	})
}

// IssueOTP creates (or replaces) the account's challenge and emails the code.
// A delivery failure does not fail the issuance: the code stays valid and DeliveredVia is DeliveredViaFallback.
func (svc *Service) IssueOTP(ctx context.Context, email string) (IssueResult, error) {
	email, err := cleanEmail(email)
	if err != nil {
		return IssueResult{}, err
	}
	_, res, err := svc.issueOTP(ctx, GetFilter{Email: email}, otpVerification)
	return res, err
}

func (svc *Service) issueOTP(ctx context.Context, filter GetFilter, purpose otpPurpose) (Account, IssueResult, error) {
	code, err := GenerateOTPCode()
	if err != nil {
		return Account{}, IssueResult{}, err
	}
	acc, err := svc.apply(ctx, filter, func(acc *Account, now time.Time) (bool, error) {
		acc.OTP = &OTPChallenge{Code: code, IssuedAt: now, ExpiresAt: now.Add(svc.conf.OTP.Timeout)}
		return true, nil
	})
	if err != nil {
		return Account{}, IssueResult{}, err
	}

	res := IssueResult{DeliveredVia: DeliveredViaEmail, ExpiresAt: acc.OTP.ExpiresAt}
	if err := svc.mailSvc.Send(ctx, svc.otpMessage(acc, code, purpose)); err != nil {
		svc.logger.Error("otp delivery failed: "+err.Error(), acc, err)
		res.DeliveredVia = DeliveredViaFallback
	}
	return acc, res, nil
}

// VerifyOTP checks code against the account's challenge. On success the account becomes verified and
// the challenge is kept, marked pre-verified, so the same code can authorise a password reset.
func (svc *Service) VerifyOTP(ctx context.Context, email, code string) (Account, error) {
	email, err := cleanEmail(email)
	if err != nil {
		return Account{}, err
	}
	code = core.CleanString(code)
	if !ValidOTPFormat(code) {
		return Account{}, invalidOTPError()
	}

	return svc.apply(ctx, GetFilter{Email: email}, func(acc *Account, now time.Time) (bool, error) {
		ch := acc.OTP
		if ch == nil {
			return false, ErrBadCredential
		}
		if !ch.Matches(code) {
			return svc.recordFailure(acc)
		}
		if ch.Expired(now) {
			acc.OTP = nil
			return true, ErrExpired
		}
		acc.IsVerified = true
		ch.PreVerified = true
		ch.FailedAttempts = 0
		return true, nil
	})
}

// ResetPasswordWithOTP sets a new password when the code matches the account's live challenge,
// whether or not it was verified beforehand. The challenge is consumed in the same write.
func (svc *Service) ResetPasswordWithOTP(ctx context.Context, rp OTPPasswordReset) error {
	email, err := cleanEmail(rp.Email)
	if err != nil {
		return err
	}
	code := core.CleanString(rp.Code)
	if err := validateOTPPasswordReset(code, rp.NewPassword, rp.ConfirmPassword); err != nil {
		return err
	}
	hash, err := hashPassword(rp.NewPassword)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}

	_, err = svc.apply(ctx, GetFilter{Email: email}, func(acc *Account, now time.Time) (bool, error) {
		ch := acc.OTP
		if ch == nil {
			return false, ErrBadCredential
		}
		// a pre-verified challenge is matched against the code that was verified, a fresh one against
		// the code that was issued; both are the stored code.
		if !ch.Matches(code) {
			return svc.recordFailure(acc)
		}
		if ch.Expired(now) {
			acc.OTP = nil
			return true, ErrExpired
		}
		acc.PasswordHash = hash
		acc.PasswordChangedAt = &now
		acc.IsVerified = true
		acc.OTP = nil
		return true, nil
	})
	return err
}

// PurgeExpiredOTPs drops every expired challenge and returns how many were dropped.
func (svc *Service) PurgeExpiredOTPs(ctx context.Context) (int, error) {
	return svc.repo.PurgeExpiredOTPs(ctx, NowFunc().UTC())
}

// recordFailure counts a wrong code; the challenge is dropped once the attempts are exhausted.
func (svc *Service) recordFailure(acc *Account) (bool, error) {
	acc.OTP.FailedAttempts++
	if acc.OTP.FailedAttempts >= svc.conf.OTP.MaxAttempts {
		acc.OTP = nil
		return true, ErrTooManyAttempts
	}
	return true, ErrBadCredential
}

// apply runs tr as an optimistic read-modify-write, retrying on version conflicts.
func (svc *Service) apply(ctx context.Context, filter GetFilter, tr transition) (Account, error) {
	for attempt := 1; ; attempt++ {
		acc, err := svc.repo.GetAccount(ctx, filter)
		if err != nil {
			return Account{}, err
		}
		now := NowFunc().UTC()
		persist, outcome := tr(&acc, now)
		if !persist {
			return acc, outcome
		}

		acc.UpdatedAt = now
		updated, err := svc.repo.UpdateAccount(ctx, acc)
		switch {
		case err == nil:
			return updated, outcome
		case errors.Cause(err) == ErrVersionConflict && attempt < maxWriteAttempts:
			svc.logger.Debug("version conflict, retrying", acc)
			continue
		default:
			return Account{}, err
		}
	}
}

// cleanEmail normalises email and rejects anything but a bare address (no display name or angle brackets).
func cleanEmail(email string) (string, error) {
	email = core.CleanString(email, true /* lower */)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", core.NewValidationError(errInvalidEmailAddress,
			core.FieldError{Field: "email", Error: errInvalidEmailAddress.Error()})
	}
	return addr.Address, nil
}

func invalidOTPError() error {
	return core.NewValidationError(errInvalidOTPFormat, core.FieldError{Field: "otp", Error: errInvalidOTPFormat.Error()})
}

func validateOTPPasswordReset(code, pwd, confirm string) error {
	var flds []core.FieldError
	if !ValidOTPFormat(code) {
		flds = append(flds, core.FieldError{Field: "otp", Error: errInvalidOTPFormat.Error()})
	}
	if len(pwd) < minPasswordLen {
		flds = append(flds, core.FieldError{Field: "newPassword", Error: errPasswordTooShort.Error()})
	}
	if pwd != confirm {
		flds = append(flds, core.FieldError{Field: "confirmPassword", Error: errPasswordMismatch.Error()})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New(flds[0].Error), flds...)
	}
	return nil
}
