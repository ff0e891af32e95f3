package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"
)

// Email backends
const (
	EmailBackendSendgrid = "sendgrid"
	EmailBackendMailgun  = "mailgun"
	EmailBackendSMTP     = "smtp"
)

// sendEmail delivers the alert as an email through the configured backend.
// No backend configured is a configuration error, never a silent success.
func (s *DispatchService) sendEmail(ctx context.Context, alert *AlertContext, cfg *ChannelConfig) (int, string, error) {
	if cfg.EmailFrom == "" || cfg.EmailTo == "" {
		return 0, "", fmt.Errorf("%w: email_from and email_to are required", ErrChannelConfig)
	}

	subject := fmt.Sprintf("[%s] %s %s @ %g", alert.Strategy.Name,
		alert.Signal.Direction, alert.Signal.Symbol, alert.Signal.Price)
	htmlBody := emailHTMLBody(alert)
	textBody := emailTextBody(alert)

	switch cfg.EmailBackend {
	case EmailBackendSendgrid:
		return s.sendViaSendgrid(ctx, cfg, subject, htmlBody, textBody)
	case EmailBackendMailgun:
		return s.sendViaMailgun(ctx, cfg, subject, htmlBody, textBody)
	case EmailBackendSMTP:
		return s.sendViaSMTP(ctx, cfg, subject, htmlBody, textBody)
	default:
		return 0, "", fmt.Errorf("%w: no email backend configured", ErrChannelConfig)
	}
}

func (s *DispatchService) sendViaSendgrid(ctx context.Context, cfg *ChannelConfig, subject, htmlBody, textBody string) (int, string, error) {
	if cfg.APIKey == "" {
		return 0, "", fmt.Errorf("%w: sendgrid api_key not set", ErrChannelConfig)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey).
		SetBody(map[string]interface{}{
			"personalizations": []map[string]interface{}{
				{"to": []map[string]string{{"email": cfg.EmailTo}}},
			},
			"from":    map[string]string{"email": cfg.EmailFrom},
			"subject": subject,
			"content": []map[string]string{
				{"type": "text/plain", "value": textBody},
				{"type": "text/html", "value": htmlBody},
			},
		}).
		Post(s.sendgridURL)

	return checkResponse(resp, err, "sendgrid API")
}

func (s *DispatchService) sendViaMailgun(ctx context.Context, cfg *ChannelConfig, subject, htmlBody, textBody string) (int, string, error) {
	if cfg.APIKey == "" || cfg.MailgunDomain == "" {
		return 0, "", fmt.Errorf("%w: mailgun api_key or domain not set", ErrChannelConfig)
	}

	url := fmt.Sprintf("%s/%s/messages", s.mailgunBaseURL, cfg.MailgunDomain)
	resp, err := s.client.R().
		SetContext(ctx).
		SetBasicAuth("api", cfg.APIKey).
		SetFormData(map[string]string{
			"from":    cfg.EmailFrom,
			"to":      cfg.EmailTo,
			"subject": subject,
			"text":    textBody,
			"html":    htmlBody,
		}).
		Post(url)

	return checkResponse(resp, err, "mailgun API")
}

// sendViaSMTP drives the SMTP session over a connection bound to the
// per-delivery context, so a server that accepts the connection but never
// answers cannot outlive the dispatch timeout
func (s *DispatchService) sendViaSMTP(ctx context.Context, cfg *ChannelConfig, subject, htmlBody, textBody string) (int, string, error) {
	if cfg.SMTPHost == "" || cfg.SMTPPort == 0 {
		return 0, "", fmt.Errorf("%w: smtp_host or smtp_port not set", ErrChannelConfig)
	}

	boundary := "signal-alert-boundary"
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", cfg.EmailFrom))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", cfg.EmailTo))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary))
	msg.WriteString(fmt.Sprintf("--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, textBody))
	msg.WriteString(fmt.Sprintf("--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, htmlBody))
	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, "", fmt.Errorf("smtp dial failed: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		return 0, "", fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer client.Close()

	if cfg.SMTPUser != "" {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.SMTPHost}); err != nil {
				return 0, "", fmt.Errorf("smtp starttls failed: %w", err)
			}
		}
		auth := smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return 0, "", fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(cfg.EmailFrom); err != nil {
		return 0, "", fmt.Errorf("smtp mail failed: %w", err)
	}
	if err := client.Rcpt(cfg.EmailTo); err != nil {
		return 0, "", fmt.Errorf("smtp rcpt failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return 0, "", fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		return 0, "", fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, "", fmt.Errorf("smtp write failed: %w", err)
	}
	_ = client.Quit()

	return http.StatusOK, "", nil
}

func emailHTMLBody(alert *AlertContext) string {
	signal := alert.Signal

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<h2>%s %s %s</h2>", directionEmoji(signal.Direction), signal.Direction, signal.Symbol))
	sb.WriteString("<table>")
	sb.WriteString(fmt.Sprintf("<tr><td><b>Strategy</b></td><td>%s</td></tr>", alert.Strategy.Name))
	sb.WriteString(fmt.Sprintf("<tr><td><b>Price</b></td><td>%g</td></tr>", signal.Price))
	sb.WriteString(fmt.Sprintf("<tr><td><b>Time</b></td><td>%s</td></tr>", signal.SignalTime.Format("2006-01-02 15:04:05 MST")))
	if signal.Interval != "" {
		sb.WriteString(fmt.Sprintf("<tr><td><b>Interval</b></td><td>%s</td></tr>", signal.Interval))
	}
	if alert.Stats != nil {
		sb.WriteString(fmt.Sprintf("<tr><td><b>Win rate</b></td><td>%.1f%% over %d trades</td></tr>",
			alert.Stats.WinRate, alert.Stats.TotalTrades))
	}
	sb.WriteString("</table>")
	if alert.Insight != "" {
		sb.WriteString(fmt.Sprintf("<p><i>%s</i></p>", alert.Insight))
	}
	return sb.String()
}

func emailTextBody(alert *AlertContext) string {
	signal := alert.Signal

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s\n\n", signal.Direction, signal.Symbol))
	sb.WriteString(fmt.Sprintf("Strategy: %s\n", alert.Strategy.Name))
	sb.WriteString(fmt.Sprintf("Price: %g\n", signal.Price))
	sb.WriteString(fmt.Sprintf("Time: %s\n", signal.SignalTime.Format("2006-01-02 15:04:05 MST")))
	if signal.Interval != "" {
		sb.WriteString(fmt.Sprintf("Interval: %s\n", signal.Interval))
	}
	if alert.Stats != nil {
		sb.WriteString(fmt.Sprintf("Win rate: %.1f%% over %d trades\n", alert.Stats.WinRate, alert.Stats.TotalTrades))
	}
	if alert.Insight != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n", alert.Insight))
	}
	return sb.String()
}
