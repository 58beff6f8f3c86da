package emailsvc

import (
	"context"

	"github.com/pkg/errors"
	gomail "github.com/wneessen/go-mail"

	"github.com/madrasa-app/madrasa/core"
)

type smtpService struct {
	conf       *core.Config
	client     *gomail.Client
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

func NewSMTPService(conf *core.Config, logger core.Logger) (core.EmailService, error) {
	opts := []gomail.Option{
		gomail.WithPort(conf.Email.SMTPPort),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if conf.Email.SMTPUsername != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(conf.Email.SMTPUsername),
			gomail.WithPassword(conf.Email.SMTPPassword),
		)
	}
	client, err := gomail.NewClient(conf.Email.SMTPHost, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating smtp client")
	}
	return &smtpService{
		conf:       conf,
		client:     client,
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}, nil
}

func (svc smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			if err := svc.Send(context.Background(), msg); err != nil {
				svc.logger.Error("sending email: "+err.Error(), err)
			}
		}(msg)
	}
}

func (svc smtpService) Send(ctx context.Context, msg *core.EmailMessage) error {
	if err := msg.Render(svc.conf); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	m, err := svc.prepare(*msg)
	if err != nil {
		return err
	}
	if err = svc.client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrap(err, "sending email")
	}
	return nil
}

func (svc smtpService) prepare(msg core.EmailMessage) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	from := svc.conf.FromEmail()
	if err := m.FromFormat(from.Name, from.Address); err != nil {
		return nil, errors.Wrap(err, "setting sender")
	}
	for _, to := range msg.To {
		if err := m.AddToFormat(to.Name, to.Address); err != nil {
			return nil, errors.Wrapf(err, "adding recipient %s", to.Address)
		}
	}
	for _, cc := range msg.Cc {
		if err := m.AddCcFormat(cc.Name, cc.Address); err != nil {
			return nil, errors.Wrapf(err, "adding cc %s", cc.Address)
		}
	}
	for _, bcc := range msg.Bcc {
		if err := m.AddBccFormat(bcc.Name, bcc.Address); err != nil {
			return nil, errors.Wrapf(err, "adding bcc %s", bcc.Address)
		}
	}
	m.Subject(svc.subjPrefix + msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.TextContent)
	if msg.HTMLContent != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTMLContent)
	}
	return m, nil
}
