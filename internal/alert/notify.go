package alert

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/trackv/trackv/internal/monitoring"
)

// LogNotifier writes alert notifications to the diagnostic log. It is the
// default dispatcher when no delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(a Alert) {
	monitoring.Logf("notify: %s alert at junction %s (severity=%s, duration=%dm)",
		a.Type, a.JunctionID, a.Severity, a.DurationMinutes)
}

// MultiNotifier fans an alert out to every configured delivery channel.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(a Alert) {
	for _, n := range m {
		n.Notify(a)
	}
}

// SMSNotifier delivers alerts as short text messages. The send hook is the
// carrier gateway integration point; the default logs the message, which is
// all an unconfigured deployment can do.
type SMSNotifier struct {
	recipients []string
	send       func(to, body string) error
}

// NewSMSNotifier builds an SMS dispatcher for the given phone numbers.
func NewSMSNotifier(recipients []string) *SMSNotifier {
	return &SMSNotifier{
		recipients: recipients,
		send: func(to, body string) error {
			monitoring.Logf("notify: sms to %s: %s", to, body)
			return nil
		},
	}
}

func (n *SMSNotifier) Notify(a Alert) {
	if len(n.recipients) == 0 {
		return
	}
	body := fmt.Sprintf("Track-V %s alert at junction %s (severity %s, %dm)",
		a.Type, a.JunctionID, a.Severity, a.DurationMinutes)
	go func() {
		for _, to := range n.recipients {
			if err := n.send(to, body); err != nil {
				monitoring.Logf("notify: sms delivery to %s failed for alert %s: %v", to, a.ID, err)
			}
		}
	}()
}

// SMTPConfig configures email alert delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Recipients receive every alert. Per-junction inspector routing lives
	// in the operator workflow outside this core.
	Recipients []string
}

// SMTPNotifier delivers alerts by email. Delivery runs in its own goroutine
// per alert and is fire-and-forget: failures are logged, never returned.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier builds an email dispatcher.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

func (n *SMTPNotifier) Notify(a Alert) {
	if n.cfg.Host == "" || len(n.cfg.Recipients) == 0 {
		return
	}
	go func() {
		if err := n.deliver(a); err != nil {
			monitoring.Logf("notify: email delivery failed for alert %s: %v", a.ID, err)
			return
		}
		monitoring.Logf("notify: email sent for alert %s to %d recipients", a.ID, len(n.cfg.Recipients))
	}()
}

func (n *SMTPNotifier) deliver(a Alert) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	return n.send(addr, auth, n.cfg.From, n.cfg.Recipients, n.message(a))
}

// message renders a multipart alternative body with plain text and HTML
// variants.
func (n *SMTPNotifier) message(a Alert) []byte {
	subject := fmt.Sprintf("Track-V Alert: %s at junction %s", a.Type, a.JunctionID)
	text := fmt.Sprintf("Alert: %s\nJunction: %s\nSeverity: %s\nDuration: %d minutes\nTime: %s\n",
		a.Type, a.JunctionID, a.Severity, a.DurationMinutes, a.CreatedAt.UTC().Format(time.RFC3339))
	html := fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<h2 style="color: #ff8c42;">Alert Notification</h2>
<h3>%s</h3>
<p><strong>Junction:</strong> %s</p>
<p><strong>Severity:</strong> %s</p>
<p><strong>Duration:</strong> %d minutes</p>
<p><strong>Time:</strong> %s</p>
</body></html>`,
		a.Type, a.JunctionID, a.Severity, a.DurationMinutes, a.CreatedAt.UTC().Format(time.RFC3339))

	const boundary = "trackv-alert-boundary"
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, text)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, html)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
