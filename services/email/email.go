// Package emailsvc provides the email backends: console (development and tests), SendGrid and SMTP.
package emailsvc

import (
	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core"
)

// New returns the email service configured by conf.Email.Provider.
func New(conf *core.Config, logger core.Logger) (core.EmailService, error) {
	switch conf.Email.Provider {
	case core.EmailConsole:
		return NewConsoleService(conf, logger), nil
	case core.EmailSendgrid:
		return NewSendgridService(conf, logger), nil
	case core.EmailSMTP:
		return NewSMTPService(conf, logger)
	default:
		return nil, errors.Errorf("unknown email provider %q", conf.Email.Provider)
	}
}
