package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"coffeeshop/internal/config"
	"coffeeshop/internal/usecase"

	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(
	template.New("").
		Funcs(template.FuncMap{
			"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
		}).
		ParseFS(templateFS, "templates/*.html"),
)

type templateData struct {
	CompanyName string
	Mail        usecase.OrderMail
}

// SMTPMailer は gomail でメールを送る。usecase.Notifier を実装する。
type SMTPMailer struct {
	from         string
	companyName  string
	companyEmail string
	send         func(msgs ...*gomail.Message) error
	log          *slog.Logger
}

func NewSMTPMailer(cfg config.MailConfig, log *slog.Logger) *SMTPMailer {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return newSMTPMailer(cfg, d.DialAndSend, log)
}

// 送信先を差し替える（テスト用）
func NewSMTPMailerWithSender(cfg config.MailConfig, s gomail.Sender, log *slog.Logger) *SMTPMailer {
	return newSMTPMailer(cfg, func(msgs ...*gomail.Message) error {
		return gomail.Send(s, msgs...)
	}, log)
}

func newSMTPMailer(cfg config.MailConfig, send func(msgs ...*gomail.Message) error, log *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		from:         cfg.From,
		companyName:  cfg.CompanyName,
		companyEmail: cfg.CompanyEmail,
		send:         send,
		log:          log,
	}
}

func (m *SMTPMailer) SendCustomerConfirmation(ctx context.Context, mail usecase.OrderMail) error {
	if mail.CustomerEmail == "" {
		return errors.New("customer email is empty")
	}
	subject := fmt.Sprintf("Confirmación de Pedido #%d", mail.OrderID)
	return m.deliver(ctx, mail.CustomerEmail, subject, "customer.html", mail)
}

func (m *SMTPMailer) SendCompanyNotification(ctx context.Context, mail usecase.OrderMail) error {
	if m.companyEmail == "" {
		m.log.WarnContext(ctx, "COMPANY_EMAIL not set, company notification skipped", slog.Int64("order_id", mail.OrderID))
		return nil
	}
	subject := fmt.Sprintf("Nuevo Pedido #%d - %s", mail.OrderID, mail.CustomerName)
	return m.deliver(ctx, m.companyEmail, subject, "company.html", mail)
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, subject string, tmpl string, mail usecase.OrderMail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, templateData{CompanyName: m.companyName, Mail: mail}); err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.companyName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}

	m.log.InfoContext(ctx, "email sent",
		slog.String("template", tmpl),
		slog.Int64("order_id", mail.OrderID),
	)
	return nil
}

// SMTP未設定のときの代わり。送らずにログだけ出す。
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendCustomerConfirmation(ctx context.Context, mail usecase.OrderMail) error {
	m.log.InfoContext(ctx, "customer confirmation (smtp disabled)",
		slog.Int64("order_id", mail.OrderID),
		slog.String("to", mail.CustomerEmail),
	)
	return nil
}

func (m *LogMailer) SendCompanyNotification(ctx context.Context, mail usecase.OrderMail) error {
	m.log.InfoContext(ctx, "company notification (smtp disabled)",
		slog.Int64("order_id", mail.OrderID),
	)
	return nil
}
