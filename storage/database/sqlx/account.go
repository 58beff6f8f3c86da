package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, email, phone, role, grade, password_hash, is_active, is_verified,
	created_at, updated_at, last_login, password_changed_at,
	otp_code, otp_issued_at, otp_expires_at, otp_pre_verified, otp_failed_attempts, version`

// accountRow maps the account table.
type accountRow struct {
	ID                string      `db:"id"`
	Username          string      `db:"username"`
	Email             string      `db:"email"`
	Phone             string      `db:"phone"`
	Role              string      `db:"role"`
	Grade             string      `db:"grade"`
	PasswordHash      []byte      `db:"password_hash"`
	IsActive          bool        `db:"is_active"`
	IsVerified        bool        `db:"is_verified"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
	LastLogin         null.Time   `db:"last_login"`
	PasswordChangedAt null.Time   `db:"password_changed_at"`
	OTPCode           null.String `db:"otp_code"`
	OTPIssuedAt       null.Time   `db:"otp_issued_at"`
	OTPExpiresAt      null.Time   `db:"otp_expires_at"`
	OTPPreVerified    bool        `db:"otp_pre_verified"`
	OTPFailedAttempts int         `db:"otp_failed_attempts"`
	Version           int64       `db:"version"`
}

func toRow(acc account.Account) accountRow {
	row := accountRow{
		ID:                acc.ID,
		Username:          acc.Username,
		Email:             acc.Email,
		Phone:             acc.Phone,
		Role:              acc.Role,
		Grade:             acc.Grade,
		PasswordHash:      acc.PasswordHash,
		IsActive:          acc.IsActive,
		IsVerified:        acc.IsVerified,
		CreatedAt:         acc.CreatedAt,
		UpdatedAt:         acc.UpdatedAt,
		LastLogin:         null.TimeFromPtr(acc.LastLogin),
		PasswordChangedAt: null.TimeFromPtr(acc.PasswordChangedAt),
		Version:           acc.Version,
	}
	if ch := acc.OTP; ch != nil {
		row.OTPCode = null.StringFrom(ch.Code)
		row.OTPIssuedAt = null.TimeFrom(ch.IssuedAt)
		row.OTPExpiresAt = null.TimeFrom(ch.ExpiresAt)
		row.OTPPreVerified = ch.PreVerified
		row.OTPFailedAttempts = ch.FailedAttempts
	}
	return row
}

func (row accountRow) toAccount() account.Account {
	acc := account.Account{
		ID:                row.ID,
		Username:          row.Username,
		Email:             row.Email,
		Phone:             row.Phone,
		Role:              row.Role,
		Grade:             row.Grade,
		PasswordHash:      row.PasswordHash,
		IsActive:          row.IsActive,
		IsVerified:        row.IsVerified,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
		LastLogin:         utcPtr(row.LastLogin),
		PasswordChangedAt: utcPtr(row.PasswordChangedAt),
		Version:           row.Version,
	}
	if row.OTPCode.Valid {
		acc.OTP = &account.OTPChallenge{
			Code:           row.OTPCode.String,
			IssuedAt:       row.OTPIssuedAt.Time.UTC(),
			ExpiresAt:      row.OTPExpiresAt.Time.UTC(),
			PreVerified:    row.OTPPreVerified,
			FailedAttempts: row.OTPFailedAttempts,
		}
	}
	return acc
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type accountRepository struct {
	db core.DBExecutor
}

// NewAccountRepository returns a postgres-backed account.Repository. db may be a *sqlx.DB or a *sqlx.Tx.
func NewAccountRepository(db core.DBExecutor) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CheckUniqueness(ctx context.Context, username, email string, excluded ...account.Account) error {
	q := `SELECT lower(username) = lower(?) AS username_taken FROM account WHERE (lower(username) = lower(?) OR email = ?)`
	args := []interface{}{username, username, email}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, acc := range excluded {
			ids = append(ids, acc.ID)
		}
		q += ` AND id NOT IN (?)`
		args = append(args, ids)
	}
	q += ` ORDER BY 1 DESC LIMIT 1`

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}
	var usernameTaken bool
	err = repo.db.GetContext(ctx, &usernameTaken, repo.db.Rebind(q), args...)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking uniqueness")
	case usernameTaken:
		return account.ErrUsernameExists
	default:
		return account.ErrEmailExists
	}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	acc.Version = 1
	q := `INSERT INTO account (` + accountColumns + `) VALUES (
		:id, :username, :email, :phone, :role, :grade, :password_hash, :is_active, :is_verified,
		:created_at, :updated_at, :last_login, :password_changed_at,
		:otp_code, :otp_issued_at, :otp_expires_at, :otp_pre_verified, :otp_failed_attempts, :version)`
	if _, err := repo.db.NamedExecContext(ctx, q, toRow(acc)); err != nil {
		return account.Account{}, translateError(err, "inserting account")
	}
	return acc, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM account WHERE `
	var arg string
	switch {
	case filter.ID != "":
		q, arg = q+`id = $1`, filter.ID
	case filter.Email != "":
		q, arg = q+`email = $1`, filter.Email
	case filter.Username != "":
		q, arg = q+`lower(username) = lower($1)`, filter.Username
	default:
		return account.Account{}, account.ErrNotFound
	}

	var row accountRow
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "selecting account")
	}
	return row.toAccount(), nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter account.QueryFilter) ([]account.Account, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		conds = append(conds, `(lower(username) LIKE ? OR email LIKE ?)`)
		args = append(args, pattern, pattern)
	}
	if filter.Roles != nil {
		if len(filter.Roles) == 0 {
			return []account.Account{}, nil
		}
		conds = append(conds, `role IN (?)`)
		args = append(args, filter.Roles)
	}
	if filter.IsActive != nil {
		conds = append(conds, `is_active = ?`)
		args = append(args, *filter.IsActive)
	}

	q := `SELECT ` + accountColumns + ` FROM account`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY ` + core.DBOrdering{Field: "created_at"}.String()

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building account query")
	}
	var rows []accountRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting accounts")
	}
	accounts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, row.toAccount())
	}
	return accounts, nil
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	q := `UPDATE account SET
		username = :username, email = :email, phone = :phone, role = :role, grade = :grade,
		password_hash = :password_hash, is_active = :is_active, is_verified = :is_verified,
		updated_at = :updated_at, last_login = :last_login, password_changed_at = :password_changed_at,
		otp_code = :otp_code, otp_issued_at = :otp_issued_at, otp_expires_at = :otp_expires_at,
		otp_pre_verified = :otp_pre_verified, otp_failed_attempts = :otp_failed_attempts,
		version = version + 1
		WHERE id = :id AND version = :version`
	res, err := repo.db.NamedExecContext(ctx, q, toRow(acc))
	if err != nil {
		return account.Account{}, translateError(err, "updating account")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	if n == 0 {
		// tell a stale version from a missing row
		if _, err := repo.GetAccount(ctx, account.GetFilter{ID: acc.ID}); err != nil {
			return account.Account{}, err
		}
		return account.Account{}, account.ErrVersionConflict
	}
	acc.Version++
	return acc, nil
}

func (repo *accountRepository) PurgeExpiredOTPs(ctx context.Context, now time.Time) (int, error) {
	q := `UPDATE account SET
		otp_code = NULL, otp_issued_at = NULL, otp_expires_at = NULL,
		otp_pre_verified = FALSE, otp_failed_attempts = 0, version = version + 1
		WHERE otp_code IS NOT NULL AND otp_expires_at < $1`
	res, err := repo.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, errors.Wrap(err, "purging expired otps")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "purging expired otps")
	}
	return int(n), nil
}

func translateError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if strings.Contains(pqErr.Constraint, "username") {
			return account.ErrUsernameExists
		}
		return account.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
