package account

import (
	"net/mail"

	"github.com/madrasa-app/madrasa/core"
)

const otpTemplate = "otp_code"

type otpPurpose int

const (
	otpVerification otpPurpose = iota
	otpWelcome
)

// OTPMailData is the data of the otp_code email templates.
type OTPMailData struct {
	Name         string
	Intro        string
	Code         string
	ValidMinutes int
}

func (svc *Service) otpMessage(acc Account, code string, purpose otpPurpose) *core.EmailMessage {
	subject, intro := "Your verification code", "Use the code below to verify your account or reset your password."
	if purpose == otpWelcome {
		subject = "Welcome to " + svc.conf.AppName
		intro = "Thanks for signing up! Use the code below to verify your email address."
	}
	return &core.EmailMessage{
		To:           []mail.Address{{Name: acc.Username, Address: acc.Email}},
		Subject:      subject,
		TemplateName: otpTemplate,
		TemplateData: OTPMailData{
			Name:         acc.Username,
			Intro:        intro,
			Code:         code,
			ValidMinutes: int(svc.conf.OTP.Timeout.Minutes()),
		},
	}
}
