package service

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/xxxsen/maildigest/internal/config"
	appErr "github.com/xxxsen/maildigest/internal/pkg/errors"
)

type EmailSender interface {
	Send(to, subject, htmlBody string) error
}

type smtpSender struct {
	cfg config.SMTPConfig
}

func NewEmailSender(cfg config.SMTPConfig) EmailSender {
	return &smtpSender{cfg: cfg}
}

func (s *smtpSender) Send(to, subject, htmlBody string) error {
	from := strings.TrimSpace(s.cfg.From)
	if s.cfg.Host == "" || s.cfg.Port == 0 || from == "" {
		return appErr.ErrInvalid
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := []byte("From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" + htmlBody)
	return smtp.SendMail(addr, auth, from, []string{to}, msg)
}
