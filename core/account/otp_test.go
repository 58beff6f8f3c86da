package account

import (
	"strconv"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func TestGenerateOTPCode(t *testing.T) {
	g := NewWithT(t)

	for i := 0; i < 500; i++ {
		code, err := GenerateOTPCode()
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(code).To(HaveLen(OTPLength))
		g.Expect(ValidOTPFormat(code)).To(BeTrue())

		n, err := strconv.Atoi(code)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(n).To(BeNumerically(">=", otpMin))
		g.Expect(n).To(BeNumerically("<=", otpMax))
	}
}

func TestValidOTPFormat(t *testing.T) {
	g := NewWithT(t)

	g.Expect(ValidOTPFormat("123456")).To(BeTrue())
	g.Expect(ValidOTPFormat("000000")).To(BeTrue())
	for _, code := range []string{"", "12345", "1234567", "12345a", " 123456", "12 456", "١٢٣٤٥٦"} {
		g.Expect(ValidOTPFormat(code)).To(BeFalse(), "code %q", code)
	}
}

func TestOTPChallenge(t *testing.T) {
	g := NewWithT(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ch := &OTPChallenge{Code: "482913", IssuedAt: now, ExpiresAt: now.Add(10 * time.Minute)}

	g.Expect(ch.Expired(now)).To(BeFalse())
	g.Expect(ch.Expired(ch.ExpiresAt)).To(BeFalse())
	g.Expect(ch.Expired(ch.ExpiresAt.Add(time.Nanosecond))).To(BeTrue())

	g.Expect(ch.Matches("482913")).To(BeTrue())
	g.Expect(ch.Matches("482914")).To(BeFalse())
	g.Expect(ch.Matches("48291")).To(BeFalse())
	g.Expect(ch.Matches("")).To(BeFalse())
}

func TestAccount_Clone(t *testing.T) {
	g := NewWithT(t)
	now := time.Now().UTC()
	acc := Account{
		ID:           "1",
		PasswordHash: []byte("hash"),
		OTP:          &OTPChallenge{Code: "123456"},
		LastLogin:    &now,
	}

	clone := acc.Clone()
	g.Expect(clone).To(Equal(acc))

	clone.OTP.FailedAttempts = 3
	clone.PasswordHash[0] = 'H'
	*clone.LastLogin = now.Add(time.Hour)
	g.Expect(acc.OTP.FailedAttempts).To(BeZero())
	g.Expect(string(acc.PasswordHash)).To(Equal("hash"))
	g.Expect(*acc.LastLogin).To(Equal(now))
}
