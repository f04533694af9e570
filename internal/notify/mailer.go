// Package notify sends critical-health alerts by email.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
)

// HealthAlert is what the alert mail reports about one month.
type HealthAlert struct {
	Email      string
	MonthLabel string
	Income     decimal.Decimal
	Committed  decimal.Decimal
	Health     core.HealthAssessment
}

// Notifier delivers a health alert to its recipient.
type Notifier interface {
	NotifyCriticalHealth(ctx context.Context, alert HealthAlert) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends alerts through an SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *log.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewSMTPMailer(cfg SMTPConfig, logger *log.Logger) *SMTPMailer {
	if logger == nil {
		logger = log.Default()
	}
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentNotify),
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

func (m *SMTPMailer) NotifyCriticalHealth(ctx context.Context, alert HealthAlert) error {
	if alert.Email == "" {
		return fmt.Errorf("send health alert: no recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := composeAlert(m.cfg.From, alert)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(e, addr, auth); err != nil {
		m.logger.ErrorContext(ctx, "Failed to send health alert",
			log.FieldOperation, log.OpNotify,
			log.FieldError, err)
		return fmt.Errorf("send health alert: %w", err)
	}

	m.logger.InfoContext(ctx, "Health alert sent",
		log.FieldOperation, log.OpNotify,
		log.FieldScore, alert.Health.Score,
		"subject", e.Subject)
	return nil
}

func composeAlert(from string, a HealthAlert) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{a.Email}
	e.Subject = fmt.Sprintf("Alerta de saúde financeira: %s", a.MonthLabel)

	var b strings.Builder
	fmt.Fprintf(&b, "Olá,\n\n")
	fmt.Fprintf(&b, "Sua saúde financeira em %s está %s (%d/100).\n\n", a.MonthLabel, a.Health.Status, a.Health.Score)
	fmt.Fprintf(&b, "Renda do mês: %s\n", core.FormatBRL(a.Income))
	fmt.Fprintf(&b, "Comprometido: %s (%s%% da renda)\n\n", core.FormatBRL(a.Committed), a.Health.PercentCommitted.StringFixed(1))
	if a.Health.Recommendation != "" {
		fmt.Fprintf(&b, "%s\n\n", a.Health.Recommendation)
	}
	b.WriteString("Equipe Zoe Finan")
	e.Text = []byte(b.String())
	return e
}
