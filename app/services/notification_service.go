// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"fmt"
	"sync"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// NotificationService delivers account notices to users
type NotificationService interface {
	SendEmail(email, subject, message string) error
}

// EmailProvider interface for email sending
type EmailProvider interface {
	SendEmail(email, subject, message string) error
}

// NotificationServiceImpl implements NotificationService
type NotificationServiceImpl struct {
	emailProvider EmailProvider
}

// NewNotificationService creates a new notification service
func NewNotificationService(emailProvider EmailProvider) NotificationService {
	return &NotificationServiceImpl{
		emailProvider: emailProvider,
	}
}

// SendEmail sends an email to the specified email address
func (s *NotificationServiceImpl) SendEmail(email, subject, message string) error {
	if s.emailProvider == nil {
		return fmt.Errorf("email provider not configured")
	}

	if err := checkmail.ValidateFormat(email); err != nil {
		return fmt.Errorf("invalid email address %q: %w", email, err)
	}

	return s.emailProvider.SendEmail(email, subject, message)
}

// MockEmailProvider logs and records messages instead of sending them
type MockEmailProvider struct {
	mu   sync.Mutex
	sent []SentEmail
}

// SentEmail is one message captured by MockEmailProvider
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

func NewMockEmailProvider() *MockEmailProvider {
	return &MockEmailProvider{}
}

func (p *MockEmailProvider) SendEmail(email, subject, message string) error {
	p.mu.Lock()
	p.sent = append(p.sent, SentEmail{To: email, Subject: subject, Body: message})
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"to":      email,
		"subject": subject,
	}).Info("Email captured by mock provider")
	return nil
}

// Sent returns a copy of captured messages
func (p *MockEmailProvider) Sent() []SentEmail {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SentEmail(nil), p.sent...)
}

// SMTPEmailProvider sends plain-text mail through an SMTP relay
type SMTPEmailProvider struct {
	dialer    *gomail.Dialer
	fromEmail string
	fromName  string
}

func NewSMTPEmailProvider(host string, port int, username, password, fromEmail, fromName string) EmailProvider {
	return &SMTPEmailProvider{
		dialer:    gomail.NewDialer(host, port, username, password),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (p *SMTPEmailProvider) SendEmail(email, subject, message string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.fromEmail, p.fromName)
	m.SetHeader("To", email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", message)

	if err := p.dialer.DialAndSend(m); err != nil {
		logrus.WithFields(logrus.Fields{
			"to":    email,
			"error": err,
		}).Error("SMTP delivery failed")
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
