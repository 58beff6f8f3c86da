package account

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/madrasa-app/madrasa/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Grades
const (
	GradeSecondSecondary = "الصف الثاني الثانوي"
	GradeThirdSecondary  = "الصف الثالث الثانوي"
	GradeUnspecified     = "غير محدد"
)

var (
	AllRoles  = []string{RoleStudent, RoleParent, RoleTeacher, RoleAdmin}
	AllGrades = []string{GradeSecondSecondary, GradeThirdSecondary, GradeUnspecified}
)

// Account is a person that can sign in. Its OTP challenge lives inside the record so that
// every OTP transition is a single conditional write on the account's Version.
type Account struct {
	ID                string        `json:"id"`
	Username          string        `json:"username"`
	Email             string        `json:"email"`
	Phone             string        `json:"phone,omitempty"`
	Role              string        `json:"role"`
	Grade             string        `json:"grade,omitempty"`
	IsActive          bool          `json:"isActive"`
	IsVerified        bool          `json:"isVerified"`
	PasswordHash      []byte        `json:"-"`
	OTP               *OTPChallenge `json:"-"`
	Version           int64         `json:"-"`
	CreatedAt         time.Time     `json:"createdAt"`           // UTC
	UpdatedAt         time.Time     `json:"updatedAt"`           // UTC
	LastLogin         *time.Time    `json:"lastLogin,omitempty"` // UTC
	PasswordChangedAt *time.Time    `json:"-"`                   // UTC
}

func (acc *Account) SetPassword(pwd string) error {
	hash, err := hashPassword(pwd)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	return nil
}

func (acc *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(pwd))
}

func (acc *Account) IsAdmin() bool   { return acc.Role == RoleAdmin }
func (acc *Account) IsTeacher() bool { return acc.Role == RoleTeacher }
func (acc *Account) IsStudent() bool { return acc.Role == RoleStudent }
func (acc *Account) IsParent() bool  { return acc.Role == RoleParent }

// HasRole reports whether the account holds one of roles.
func (acc *Account) HasRole(roles ...string) bool {
	for _, role := range roles {
		if acc.Role == role {
			return true
		}
	}
	return false
}

// PasswordChangedAfter reports whether the password changed after the given moment (usually a token's issue time).
func (acc *Account) PasswordChangedAfter(t time.Time) bool {
	return acc.PasswordChangedAt != nil && acc.PasswordChangedAt.Truncate(time.Second).After(t)
}

// Clone returns a deep copy of the account.
func (acc Account) Clone() Account {
	if acc.PasswordHash != nil {
		acc.PasswordHash = append([]byte(nil), acc.PasswordHash...)
	}
	if acc.OTP != nil {
		otp := *acc.OTP
		acc.OTP = &otp
	}
	if acc.LastLogin != nil {
		t := *acc.LastLogin
		acc.LastLogin = &t
	}
	if acc.PasswordChangedAt != nil {
		t := *acc.PasswordChangedAt
		acc.PasswordChangedAt = &t
	}
	return acc
}

func hashPassword(pwd string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
}

// NewAccount contains information needed to create a new Account.
type NewAccount struct {
	Username        string `json:"username" validate:"required,min=3,max=50"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,egphone"`
	Grade           string `json:"grade" validate:"omitempty,grade"`
	Role            string `json:"-" validate:"omitempty,accountrole"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

func (na *NewAccount) Clean() {
	na.Username = core.CleanString(na.Username)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Phone = core.CleanString(na.Phone)
	na.Grade = core.CleanString(na.Grade)
	if na.Role == "" {
		na.Role = RoleStudent
	}
	if na.Grade == "" {
		na.Grade = GradeUnspecified
	}
}

// UpdateAccount defines what an account may change on its own profile. Empty fields are left as they are.
type UpdateAccount struct {
	Username        string `json:"username" validate:"omitempty,min=3,max=50"`
	Phone           string `json:"phone" validate:"omitempty,egphone"`
	Grade           string `json:"grade" validate:"omitempty,grade"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required_with=Password,eqfield=Password"`
}

func (ua *UpdateAccount) Clean() {
	ua.Username = core.CleanString(ua.Username)
	ua.Phone = core.CleanString(ua.Phone)
	ua.Grade = core.CleanString(ua.Grade)
}

// OTPPasswordReset is the input of an OTP-authorised password reset.
type OTPPasswordReset struct {
	Email           string `json:"email" validate:"required,email"`
	Code            string `json:"otp" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// GetFilter selects a single account; the first non-empty field wins.
type GetFilter struct {
	ID       string
	Email    string
	Username string
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
