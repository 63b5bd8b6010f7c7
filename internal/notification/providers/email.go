package providers

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/notification"
)

// EmailProvider sends notifications over SMTP. Settings: smtp_host and
// smtp_port (required), username, password, from, to (list or comma
// separated).
type EmailProvider struct {
	logger   *zap.Logger
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

func NewEmailProvider(logger *zap.Logger) *EmailProvider {
	return &EmailProvider{logger: logger}
}

func (p *EmailProvider) Type() alerting.ChannelType { return alerting.ChannelEmail }

func (p *EmailProvider) Initialize(ctx context.Context, settings map[string]interface{}) error {
	p.host = stringSetting(settings, "smtp_host")
	if p.host == "" {
		return errors.New("email channel requires an smtp_host setting")
	}
	p.port = intSetting(settings, "smtp_port", 587)
	p.username = stringSetting(settings, "username")
	p.password = stringSetting(settings, "password")
	p.from = stringSetting(settings, "from")
	if p.from == "" {
		p.from = p.username
	}
	p.to = stringsSetting(settings, "to")
	if len(p.to) == 0 {
		return errors.New("email channel requires at least one recipient")
	}
	return nil
}

func (p *EmailProvider) Send(ctx context.Context, msg notification.Message) (string, error) {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))

	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}

	body := strings.Join([]string{
		"From: " + p.from,
		"To: " + strings.Join(p.to, ", "),
		"Subject: " + msg.Subject,
		"Date: " + msg.Timestamp.Format(time.RFC1123Z),
		"",
		msg.Body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, p.from, p.to, []byte(body)); err != nil {
		return "", errors.Wrap(err, "failed to send email")
	}
	return fmt.Sprintf("delivered to %d recipients", len(p.to)), nil
}

func (p *EmailProvider) HealthCheck(ctx context.Context) error {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.host, strconv.Itoa(p.port)))
	if err != nil {
		return errors.Wrap(err, "smtp server unreachable")
	}
	return conn.Close()
}

func (p *EmailProvider) Cleanup() error { return nil }
