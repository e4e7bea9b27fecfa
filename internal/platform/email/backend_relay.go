package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// sendMail allows tests to override SMTP sending behavior.
var sendMail = smtp.SendMail

// relayBackend hands mail to a local SMTP relay, the development and testing
// transport. The relay is trusted, so no auth is negotiated.
type relayBackend struct {
	host string
	port int
	from string
}

func newRelayBackend(cfg Config) *relayBackend {
	from := cfg.FromAddress
	if from == "" {
		from = "noreply@localhost"
	}
	return &relayBackend{host: cfg.RelayHost, port: cfg.RelayPort, from: from}
}

func (b *relayBackend) Name() string { return "relay" }

func (b *relayBackend) addr() string {
	return fmt.Sprintf("%s:%d", b.host, b.port)
}

const mimeBoundary = "hearthhub-alt-boundary"

// Send builds a multipart/alternative message so mail clients can pick
// between the text and HTML renderings.
func (b *relayBackend) Send(_ context.Context, msg Message) error {
	var sb strings.Builder
	headers := []string{
		"From: " + b.from,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="` + mimeBoundary + `"`,
	}
	sb.WriteString(strings.Join(headers, "\r\n"))
	sb.WriteString("\r\n\r\n")

	sb.WriteString("--" + mimeBoundary + "\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	sb.WriteString(msg.Text)
	sb.WriteString("\r\n--" + mimeBoundary + "\r\n")
	sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	sb.WriteString(msg.HTML)
	sb.WriteString("\r\n--" + mimeBoundary + "--\r\n")

	return sendMail(b.addr(), nil, b.from, []string{msg.To}, []byte(sb.String()))
}

// Probe performs a live handshake with the relay and hangs up without
// sending.
func (b *relayBackend) Probe(ctx context.Context) bool {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", b.addr())
	if err != nil {
		return false
	}
	client, err := smtp.NewClient(conn, b.host)
	if err != nil {
		_ = conn.Close()
		return false
	}
	_ = client.Close()
	return true
}
