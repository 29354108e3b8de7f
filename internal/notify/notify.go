// Package notify sends refund notifications. Delivery is best-effort: callers
// log failures and never fail the request because of them.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
	"golang.org/x/text/language"

	"github.com/tbourn/go-refund-backend/internal/config"
	"github.com/tbourn/go-refund-backend/internal/i18n"
)

// RefundNotice describes a newly submitted portal refund.
type RefundNotice struct {
	RefundID      string
	OrderNumber   string
	Reason        string
	CustomerEmail string
	Locale        language.Tag
}

// Notifier delivers refund notices.
type Notifier interface {
	RefundSubmitted(ctx context.Context, n RefundNotice) error
}

// Noop discards notices.
type Noop struct{}

// RefundSubmitted implements Notifier.
func (Noop) RefundSubmitted(context.Context, RefundNotice) error { return nil }

// Sender is the subset of *mail.Client used to deliver messages.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer notifies the merchant mailbox and the customer over SMTP.
type Mailer struct {
	Sender         Sender
	From           string
	MerchantNotify string
}

// New returns a Mailer for cfg, or Noop when SMTP is not configured.
func New(cfg config.MailConfig) (Notifier, error) {
	if cfg.Host == "" {
		return Noop{}, nil
	}
	opts := []mail.Option{mail.WithPort(cfg.Port), mail.WithTLSPolicy(mail.TLSMandatory)}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, err
	}
	return &Mailer{Sender: client, From: cfg.From, MerchantNotify: cfg.MerchantNotify}, nil
}

// RefundSubmitted implements Notifier.
func (m *Mailer) RefundSubmitted(ctx context.Context, n RefundNotice) error {
	var msgs []*mail.Msg
	if m.MerchantNotify != "" {
		msg, err := m.message(m.MerchantNotify,
			i18n.T(i18n.Default, i18n.MsgMailNewRefundSubject, n.OrderNumber),
			i18n.T(i18n.Default, i18n.MsgMailNewRefundBody, n.OrderNumber, n.Reason))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if n.CustomerEmail != "" {
		msg, err := m.message(n.CustomerEmail,
			i18n.T(n.Locale, i18n.MsgMailReceivedSubject),
			i18n.T(n.Locale, i18n.MsgMailReceivedBody, n.OrderNumber, n.RefundID))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := m.Sender.DialAndSendWithContext(ctx, msgs...); err != nil {
		return errors.Join(errors.New("send refund notification"), err)
	}
	log.Ctx(ctx).Debug().Str("refund_id", n.RefundID).Int("messages", len(msgs)).Msg("refund notification sent")
	return nil
}

func (m *Mailer) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
