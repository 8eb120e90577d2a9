// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"
)

var ErrEmailProviderNotConfigured = errors.New("email provider not configured")

// EmailMessage is a rendered email ready for delivery.
type EmailMessage struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
	HTMLBody string `json:"html_body,omitempty"`
}

// EmailSender delivers one message. Implementations must be safe for concurrent use.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// NotificationService renders and sends the marketplace's outgoing emails
type NotificationService interface {
	SendSignupCode(ctx context.Context, email, firstName, code string, validFor time.Duration) error
	SendPasswordReset(ctx context.Context, email, firstName, token string, validFor time.Duration) error
}

// NotificationServiceImpl implements NotificationService
type NotificationServiceImpl struct {
	sender      EmailSender
	productName string
}

// NewNotificationService creates a new notification service
func NewNotificationService(sender EmailSender, productName string) NotificationService {
	if productName == "" {
		productName = "Kisaan"
	}
	return &NotificationServiceImpl{
		sender:      sender,
		productName: productName,
	}
}

// SendSignupCode emails the verification code to a pending signup.
func (s *NotificationServiceImpl) SendSignupCode(ctx context.Context, email, firstName, code string, validFor time.Duration) error {
	if s.sender == nil {
		return ErrEmailProviderNotConfigured
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %s", email)
	}

	minutes := wholeMinutes(validFor)
	greeting := greetingFor(firstName)

	text := fmt.Sprintf("%s,\n\nYour %s verification code is %s.\nIt expires in %d minutes.\n\nIf you did not sign up, ignore this email.\n",
		greeting, s.productName, code, minutes)
	body := fmt.Sprintf(`
		<h3>%s,</h3>
		<p>Your %s verification code is <strong>%s</strong>.</p>
		<p>It expires in %d minutes.</p>
		<p>If you did not sign up, ignore this email.</p>
	`, html.EscapeString(greeting), html.EscapeString(s.productName), code, minutes)

	return s.sender.Send(ctx, EmailMessage{
		To:       email,
		Subject:  fmt.Sprintf("Your OTP for %s app", s.productName),
		TextBody: text,
		HTMLBody: body,
	})
}

// SendPasswordReset emails the token that authorizes one password change.
func (s *NotificationServiceImpl) SendPasswordReset(ctx context.Context, email, firstName, token string, validFor time.Duration) error {
	if s.sender == nil {
		return ErrEmailProviderNotConfigured
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %s", email)
	}

	minutes := wholeMinutes(validFor)
	greeting := greetingFor(firstName)

	text := fmt.Sprintf("%s,\n\nUse this token to choose a new %s password:\n\n%s\n\nIt expires in %d minutes and works once.\nIf you did not ask for a reset, ignore this email.\n",
		greeting, s.productName, token, minutes)
	body := fmt.Sprintf(`
		<h3>%s,</h3>
		<p>Use this token to choose a new %s password:</p>
		<p><code>%s</code></p>
		<p>It expires in %d minutes and works once.</p>
		<p>If you did not ask for a reset, ignore this email.</p>
	`, html.EscapeString(greeting), html.EscapeString(s.productName), html.EscapeString(token), minutes)

	return s.sender.Send(ctx, EmailMessage{
		To:       email,
		Subject:  fmt.Sprintf("Reset your %s password", s.productName),
		TextBody: text,
		HTMLBody: body,
	})
}

func wholeMinutes(d time.Duration) int {
	if m := int(d.Round(time.Minute) / time.Minute); m > 1 {
		return m
	}
	return 1
}

func greetingFor(firstName string) string {
	if firstName == "" {
		return "Hello"
	}
	return "Hello " + firstName
}

// MockEmailSender logs messages and keeps them for inspection.
type MockEmailSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	Err  error
}

func NewMockEmailSender() *MockEmailSender {
	return &MockEmailSender{}
}

func (p *MockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.sent = append(p.sent, msg)
	log.Printf("Email sent to %s [%s]", msg.To, msg.Subject)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (p *MockEmailSender) Sent() []EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EmailMessage, len(p.sent))
	copy(out, p.sent)
	return out
}

// SMTPEmailSender delivers through an SMTP relay with gomail.
type SMTPEmailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPEmailSender(host string, port int, username, password, fromEmail, fromName string) *SMTPEmailSender {
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}
	return &SMTPEmailSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (p *SMTPEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", p.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	if err := p.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}
