package account

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	OTPLength = 6

	otpMin = 100000
	otpMax = 999999
)

var otpRegex = regexp.MustCompile(`^\d{6}$`)

// OTPChallenge is the single outstanding one-time code of an account.
type OTPChallenge struct {
	Code           string
	IssuedAt       time.Time // UTC
	ExpiresAt      time.Time // UTC
	PreVerified    bool
	FailedAttempts int
}

// Expired reports whether the challenge is no longer usable at now. A challenge is still valid at ExpiresAt.
func (ch *OTPChallenge) Expired(now time.Time) bool {
	return now.After(ch.ExpiresAt)
}

// Matches compares code against the stored one in constant time.
func (ch *OTPChallenge) Matches(code string) bool {
	return subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) == 1
}

// GenerateOTPCode returns a 6-digit code drawn uniformly from [100000, 999999] using crypto/rand.
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", errors.Wrap(err, "generating otp")
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// ValidOTPFormat reports whether code is exactly 6 ASCII digits.
func ValidOTPFormat(code string) bool {
	return otpRegex.MatchString(code)
}
