// Package mail delivers the account emails: address verification, password
// reset and admin-created account notices.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// Recipient is the addressee of a mail.
type Recipient struct {
	Name  string
	Email string
}

// Mailer sends the account emails. Implementations return an error when the
// message could not be handed to the transport.
type Mailer interface {
	SendVerifyEmail(ctx context.Context, to Recipient, url string) error
	SendPasswordReset(ctx context.Context, to Recipient, url string, validFor time.Duration) error
	SendUserInfo(ctx context.Context, to Recipient, password, loginURL string) error
}

// SMTPConfig holds the outgoing server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
	// UseSSL dials with implicit TLS (port 465). Otherwise STARTTLS is used
	// when the server offers it.
	UseSSL  bool
	Timeout time.Duration
}

func (c SMTPConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SMTPMailer is a Mailer over net/smtp rendering the embedded HTML layout.
type SMTPMailer struct {
	cfg       SMTPConfig
	templates *template.Template
	now       func() time.Time
	// deliver hands a complete message to the server; replaced in tests.
	deliver func(ctx context.Context, to string, msg []byte) error
}

// New parses the embedded templates and returns an SMTPMailer.
func New(cfg SMTPConfig) (*SMTPMailer, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	m := &SMTPMailer{cfg: cfg, templates: tmpl, now: time.Now}
	m.deliver = m.smtpDeliver
	return m, nil
}

func (m *SMTPMailer) SendVerifyEmail(ctx context.Context, to Recipient, url string) error {
	return m.send(ctx, to, "Verify Email Address", templateData{
		Title:       "Confirm Your Email Address",
		Description: "Tap the button below to confirm your email address. If you didn't create an account, you can safely delete this email.",
		ButtonText:  "Verify Email Address",
		URL:         url,
	})
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to Recipient, url string, validFor time.Duration) error {
	subject := fmt.Sprintf("Your password reset token (valid for only %d minutes)", int(validFor.Minutes()))
	return m.send(ctx, to, subject, templateData{
		Title:       "Reset Your Password",
		Description: "Tap the button below to reset your customer account password. If you didn't request a new password, you can safely delete this email.",
		ButtonText:  "Reset Password",
		URL:         url,
	})
}

func (m *SMTPMailer) SendUserInfo(ctx context.Context, to Recipient, password, loginURL string) error {
	return m.send(ctx, to, "Account Created", templateData{
		Title:       "User Account Created",
		Description: "A new account has been created to our system by the admin. Please login to your account by the credentials below and don't forget to change your password.",
		ButtonText:  "Go to Login Page",
		URL:         loginURL,
		Credentials: &Credentials{Email: to.Email, Password: password},
	})
}

func (m *SMTPMailer) send(ctx context.Context, to Recipient, subject string, data templateData) error {
	data.FirstName = common.FirstName(to.Name)
	data.AppName = m.cfg.AppName

	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, "email.html", data); err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	msg := m.compose(to.Email, subject, body.Bytes())
	return m.deliver(ctx, to.Email, msg)
}

func (m *SMTPMailer) from() string {
	if m.cfg.AppName == "" || strings.Contains(m.cfg.From, "<") {
		return m.cfg.From
	}
	return fmt.Sprintf("%s <%s>", m.cfg.AppName, m.cfg.From)
}

func (m *SMTPMailer) compose(to, subject string, body []byte) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.from())
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.Write(body)
	return msg.Bytes()
}

// envelopeFrom strips the display name from From.
func envelopeFrom(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: m.cfg.Timeout, KeepAlive: 30 * time.Second}
	if m.cfg.UseSSL {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Host}}
		return td.DialContext(ctx, "tcp", m.cfg.addr())
	}
	return dialer.DialContext(ctx, "tcp", m.cfg.addr())
}

func (m *SMTPMailer) smtpDeliver(ctx context.Context, to string, message []byte) error {
	netConn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server %s: %w", m.cfg.addr(), err)
	}

	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = netConn.SetDeadline(deadline)

	conn, err := smtp.NewClient(netConn, m.cfg.Host)
	if err != nil {
		netConn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer conn.Close()

	if err = conn.Hello("localhost"); err != nil {
		return fmt.Errorf("failed to send HELO: %w", err)
	}

	if !m.cfg.UseSSL {
		if ok, _ := conn.Extension("STARTTLS"); ok {
			if err = conn.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err = conn.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate (user: %s): %w", m.cfg.Username, err)
		}
	}

	if err = conn.Mail(envelopeFrom(m.cfg.From)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = conn.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return conn.Quit()
}

// Nop discards every message.
type Nop struct{}

func (Nop) SendVerifyEmail(context.Context, Recipient, string) error { return nil }

func (Nop) SendPasswordReset(context.Context, Recipient, string, time.Duration) error { return nil }

func (Nop) SendUserInfo(context.Context, Recipient, string, string) error { return nil }
