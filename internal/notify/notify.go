// Package notify tells requesters about administrator decisions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/appointment-desk/internal/application"
	"gopkg.in/gomail.v2"
)

// SMTPOptions configures the outgoing mail server.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier emails the requester when an appointment is approved or rejected.
type SMTPNotifier struct {
	from   string
	send   func(...*gomail.Message) error
	logger *slog.Logger
}

// NewSMTPNotifier builds a notifier that dials the server for every message.
func NewSMTPNotifier(opts SMTPOptions, logger *slog.Logger) (*SMTPNotifier, error) {
	if opts.Host == "" {
		return nil, errors.New("notify: smtp host is required")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	from := opts.From
	if from == "" {
		from = opts.Username
	}
	if from == "" {
		return nil, errors.New("notify: sender address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	return &SMTPNotifier{from: from, send: dialer.DialAndSend, logger: logger}, nil
}

// NotifyDecision sends the decision email. Appointments without an email
// address or still pending are skipped.
func (n *SMTPNotifier) NotifyDecision(ctx context.Context, appointment application.Appointment) error {
	if appointment.UserEmail == "" || appointment.Status == application.StatusPending {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := n.compose(appointment)
	if err := n.send(msg); err != nil {
		return fmt.Errorf("notify: send to %s: %w", appointment.UserEmail, err)
	}

	n.logger.InfoContext(ctx, "decision email sent",
		slog.String("appointment_id", appointment.ID),
		slog.String("status", string(appointment.Status)),
	)
	return nil
}

func (n *SMTPNotifier) compose(appointment application.Appointment) *gomail.Message {
	subject, body := decisionText(appointment)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", appointment.UserEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return m
}

func decisionText(appointment application.Appointment) (string, string) {
	var b strings.Builder
	name := appointment.UserName
	if name == "" {
		name = "お客様"
	}
	fmt.Fprintf(&b, "%s 様\n\n", name)

	switch appointment.Status {
	case application.StatusApproved:
		fmt.Fprintf(&b, "%s のご予約が承認されました。\n", appointment.Date)
		fmt.Fprintf(&b, "ご来店時間: %s - %s\n", appointment.ArrivalTime, appointment.FinishedTime)
		b.WriteString("\nご来店をお待ちしております。\n")
		return "ご予約が承認されました", b.String()
	default:
		fmt.Fprintf(&b, "誠に恐れ入りますが、%s %s のご予約はお受けできませんでした。\n", appointment.Date, appointment.RequestedTime)
		b.WriteString("\n別の日時でのご予約をご検討ください。\n")
		return "ご予約をお受けできませんでした", b.String()
	}
}

// Nop discards notifications.
type Nop struct{}

// NotifyDecision does nothing.
func (Nop) NotifyDecision(context.Context, application.Appointment) error {
	return nil
}
