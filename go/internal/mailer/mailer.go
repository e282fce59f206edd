// Package mailer delivers room invitations.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

// Message is a plain text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

// Send logs msg
func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("mail not sent, log backend")
	return nil
}

// SMTPConfig holds SMTP settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends through an SMTP relay
type SMTPMailer struct {
	config SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates an SMTP mailer
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config, send: smtp.SendMail}
}

// Send delivers msg
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	addr := m.config.Host + ":" + strconv.Itoa(m.config.Port)
	if err := m.send(addr, auth, m.config.From, []string{msg.To}, m.render(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) render(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}

var invitationTemplate = template.Must(template.New("invitation").Parse(
	`You have been invited to "{{.Title}}" as {{.Role}}.

Open this link to join:
{{.Link}}

The link carries your personal token, do not share it.
`))

// InvitationSender renders invitation mails with join links.
type InvitationSender struct {
	mailer  Mailer
	baseURL string
}

// NewInvitationSender creates an invitation sender. baseURL is the public
// address of the server, join links point under it.
func NewInvitationSender(mailer Mailer, baseURL string) *InvitationSender {
	return &InvitationSender{mailer: mailer, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// JoinLink is the URL that redeems token for slug.
func (s *InvitationSender) JoinLink(slug, token string) string {
	return fmt.Sprintf("%s/api/rooms/%s/join?%s", s.baseURL, url.PathEscape(slug), url.Values{"token": {token}}.Encode())
}

// SendInvitation mails the join link for token to the invitee.
func (s *InvitationSender) SendInvitation(ctx context.Context, room *models.Room, invitee models.Invitee, token string) error {
	title := room.Title
	if title == "" {
		title = room.Slug
	}

	var body bytes.Buffer
	err := invitationTemplate.Execute(&body, map[string]string{
		"Title": title,
		"Role":  string(invitee.Role),
		"Link":  s.JoinLink(room.Slug, token),
	})
	if err != nil {
		return fmt.Errorf("render invitation: %w", err)
	}

	return s.mailer.Send(ctx, Message{
		To:      invitee.Email,
		Subject: fmt.Sprintf("Invitation to %s", title),
		Body:    body.String(),
	})
}
