// Package mailer sends invoice emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"

	"gopkg.in/gomail.v2"
)

var ErrNoRecipient = errors.New("no recipient email address")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL dials with implicit TLS; otherwise STARTTLS is used when offered.
	SSL      bool
	From     string
	FromName string
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Invoice struct {
	To       string
	OrderID  string
	Total    string
	PDF      []byte
	Filename string
}

var invoiceHTML = template.Must(template.New("invoice").Parse(`<h1>Thank you for your order!</h1>
<p>Your invoice is attached to this email.</p>
<p>Order ID: {{.OrderID}}</p>
<p>Total: {{.Total}}</p>
`))

const invoiceText = "Thank you for your order! Your invoice is attached."

type Mailer struct {
	sender   Sender
	from     string
	fromName string
	log      *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Mailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	return NewWithSender(d, cfg.From, cfg.FromName, log)
}

func NewWithSender(s Sender, from, fromName string, log *slog.Logger) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	if fromName == "" {
		fromName = "Mood Store"
	}
	return &Mailer{sender: s, from: from, fromName: fromName, log: log}
}

// SendInvoice mails the rendered invoice as an attachment. gomail has no
// context support, so ctx is only checked before dialing.
func (m *Mailer) SendInvoice(ctx context.Context, inv Invoice) error {
	if inv.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.invoiceMessage(inv)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send invoice email for order %s: %w", inv.OrderID, err)
	}
	m.log.InfoContext(ctx, "invoice email sent", "order_id", inv.OrderID)
	return nil
}

func (m *Mailer) invoiceMessage(inv Invoice) (*gomail.Message, error) {
	var html bytes.Buffer
	if err := invoiceHTML.Execute(&html, inv); err != nil {
		return nil, fmt.Errorf("render invoice email: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", inv.To)
	msg.SetHeader("Subject", fmt.Sprintf("Your Mood Store Invoice #%s", inv.OrderID))
	msg.SetBody("text/plain", invoiceText)
	msg.AddAlternative("text/html", html.String())

	pdf := inv.PDF
	msg.Attach(inv.Filename,
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(pdf)
			return err
		}),
		gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
	)
	return msg, nil
}
