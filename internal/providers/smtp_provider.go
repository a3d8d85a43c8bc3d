package providers

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const smtpDialTimeout = 30 * time.Second

// SMTPProvider implements email sending via SMTP.
// Port 465 uses implicit TLS; any other port upgrades with STARTTLS when offered.
type SMTPProvider struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	now      func() time.Time
}

// NewSMTPProvider creates a new SMTP email provider
func NewSMTPProvider(config *ProviderConfig) *SMTPProvider {
	return &SMTPProvider{
		host:     config.SMTPHost,
		port:     config.SMTPPort,
		username: config.SMTPUsername,
		password: config.SMTPPassword,
		from:     config.From,
		fromName: config.FromName,
		now:      time.Now,
	}
}

// Send sends an email via SMTP
func (p *SMTPProvider) Send(ctx context.Context, message *Message) (*SendResult, error) {
	envelopeFrom, recipients, raw, err := p.buildMessage(message)
	if err != nil {
		return failed("SMTP", err)
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return failed("SMTP", fmt.Errorf("smtp dial: %w", err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(smtpDialTimeout))
	}

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		return failed("SMTP", err)
	}
	defer client.Close()

	if !p.implicitTLS() {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err = client.StartTLS(&tls.Config{ServerName: p.host}); err != nil {
				return failed("SMTP", fmt.Errorf("starttls: %w", err))
			}
		}
	}

	if p.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err = client.Auth(smtp.PlainAuth("", p.username, p.password, p.host)); err != nil {
				return failed("SMTP", fmt.Errorf("smtp auth: %w", err))
			}
		}
	}

	if err = client.Mail(envelopeFrom); err != nil {
		return failed("SMTP", err)
	}
	for _, recipient := range recipients {
		if err = client.Rcpt(recipient); err != nil {
			return failed("SMTP", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return failed("SMTP", err)
	}
	if _, err = w.Write(raw); err != nil {
		return failed("SMTP", err)
	}
	if err = w.Close(); err != nil {
		return failed("SMTP", err)
	}
	_ = client.Quit()

	return &SendResult{
		ProviderName: "SMTP",
		Success:      true,
		ProviderData: map[string]interface{}{
			"to":      message.To,
			"subject": message.Subject,
		},
	}, nil
}

func (p *SMTPProvider) implicitTLS() bool {
	return p.port == 465
}

func (p *SMTPProvider) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	if p.implicitTLS() {
		d := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: smtpDialTimeout},
			Config:    &tls.Config{ServerName: p.host},
		}
		return d.DialContext(ctx, "tcp", addr)
	}
	d := &net.Dialer{Timeout: smtpDialTimeout}
	return d.DialContext(ctx, "tcp", addr)
}

// buildMessage renders the RFC 5322 message and the envelope
func (p *SMTPProvider) buildMessage(message *Message) (string, []string, []byte, error) {
	fromAddr, fromName := senderAddress(p.from, p.fromName, message)
	if fromAddr == "" {
		return "", nil, nil, ErrMissingSender
	}
	if err := validateHeaders(message); err != nil {
		return "", nil, nil, err
	}

	headers := make(map[string]string)
	headers["From"] = (&mail.Address{Name: fromName, Address: fromAddr}).String()
	headers["To"] = message.To
	headers["Subject"] = mime.QEncoding.Encode("utf-8", message.Subject)
	headers["MIME-Version"] = "1.0"
	headers["Date"] = p.now().Format(time.RFC1123Z)
	headers["Message-ID"] = fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(fromAddr))

	if len(message.CC) > 0 {
		headers["Cc"] = strings.Join(message.CC, ", ")
	}
	if message.ReplyTo != "" {
		headers["Reply-To"] = message.ReplyTo
	}
	for key, value := range message.Headers {
		headers[key] = value
	}

	var body string
	if message.BodyHTML != "" {
		headers["Content-Type"] = "text/html; charset=utf-8"
		body = message.BodyHTML
	} else {
		headers["Content-Type"] = "text/plain; charset=utf-8"
		body = message.Body
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, headers[k])
	}
	buf.WriteString("\r\n")
	buf.WriteString(body)

	recipients := []string{message.To}
	recipients = append(recipients, message.CC...)
	recipients = append(recipients, message.BCC...)

	return fromAddr, recipients, buf.Bytes(), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

// GetName returns the provider name
func (p *SMTPProvider) GetName() string {
	return "SMTP"
}

// SupportsChannel returns the supported channel
func (p *SMTPProvider) SupportsChannel() string {
	return ChannelEmail
}
