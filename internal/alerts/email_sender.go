package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"log/slog"
)

const (
	smtpSecurityNone     = "none"
	smtpSecurityStartTLS = "starttls"
	smtpSecurityTLS      = "tls"
)

type SMTPSenderOptions struct {
	Host          string
	Port          int
	Username      string
	Password      string
	ReplyTo       string
	Security      string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// SMTPSender delivers EmailMessages over SMTP, one transaction per message.
type SMTPSender struct {
	host          string
	port          int
	username      string
	password      string
	replyTo       string
	security      string
	timeout       time.Duration
	skipTLSVerify bool
	logger        *slog.Logger
	now           func() time.Time
}

func NewSMTPSender(opts SMTPSenderOptions) *SMTPSender {
	security := strings.ToLower(strings.TrimSpace(opts.Security))
	switch security {
	case smtpSecurityNone, smtpSecurityStartTLS, smtpSecurityTLS:
	default:
		security = smtpSecurityStartTLS
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		host:          strings.TrimSpace(opts.Host),
		port:          opts.Port,
		username:      strings.TrimSpace(opts.Username),
		password:      opts.Password,
		replyTo:       strings.TrimSpace(opts.ReplyTo),
		security:      security,
		timeout:       timeout,
		skipTLSVerify: opts.SkipTLSVerify,
		logger:        logger.With("component", "smtp_sender"),
		now:           time.Now,
	}
}

func (s *SMTPSender) SendEmail(ctx context.Context, msg EmailMessage) error {
	if s.host == "" || s.port == 0 {
		return fmt.Errorf("smtp is not configured")
	}
	if strings.TrimSpace(msg.From) == "" {
		return fmt.Errorf("email has no sender")
	}
	recipients := uniqueEmails(append(append(append([]string(nil), msg.To...), msg.CC...), msg.BCC...))
	if len(recipients) == 0 {
		return fmt.Errorf("email has no recipients")
	}

	if err := s.send(ctx, msg.From, recipients, s.buildMessage(msg)); err != nil {
		return fmt.Errorf("email delivery failed: %w", err)
	}
	s.logger.Debug("email sent", "recipients", len(recipients), "subject", msg.Subject)
	return nil
}

// buildMessage renders headers and body. BCC recipients never appear in headers.
func (s *SMTPSender) buildMessage(msg EmailMessage) []byte {
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=UTF-8"
	}
	headers := []string{
		fmt.Sprintf("From: %s", msg.From),
	}
	if to := uniqueEmails(msg.To); len(to) > 0 {
		headers = append(headers, fmt.Sprintf("To: %s", strings.Join(to, ", ")))
	}
	if cc := uniqueEmails(msg.CC); len(cc) > 0 {
		headers = append(headers, fmt.Sprintf("Cc: %s", strings.Join(cc, ", ")))
	}
	headers = append(headers,
		fmt.Sprintf("Subject: %s", sanitizeHeader(msg.Subject)),
		fmt.Sprintf("Date: %s", s.now().Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: %s", contentType),
	)
	if s.replyTo != "" {
		headers = append(headers, fmt.Sprintf("Reply-To: %s", s.replyTo))
	}
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body)
}

func (s *SMTPSender) send(ctx context.Context, from string, recipients []string, message []byte) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(envelopeAddress(from)); err != nil {
		return err
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(envelopeAddress(rcpt)); err != nil {
			return fmt.Errorf("%s: %w", rcpt, err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *SMTPSender) connect(ctx context.Context) (*smtp.Client, error) {
	address := net.JoinHostPort(s.host, fmt.Sprint(s.port))
	dialer := &net.Dialer{Timeout: s.timeout}
	var (
		conn net.Conn
		err  error
	)
	if s.security == smtpSecurityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify}} // #nosec G402
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if s.security == smtpSecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("smtp server does not support STARTTLS")
		}
		tlsConfig := &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify} // #nosec G402
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

// envelopeAddress strips a display name ("Ops <ops@example.com>") for SMTP commands.
func envelopeAddress(addr string) string {
	if parsed, err := mail.ParseAddress(addr); err == nil {
		return parsed.Address
	}
	return strings.TrimSpace(addr)
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

func uniqueEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, email := range emails {
		normalized := strings.TrimSpace(email)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
