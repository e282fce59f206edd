package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/metronome/go/internal/models"
)

type recordingMailer struct {
	sent []Message
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func TestInvitationSender(t *testing.T) {
	rec := &recordingMailer{}
	sender := NewInvitationSender(rec, "https://metronome.example/")

	room := models.NewRoom("jam", "Friday Jam", "a@x.com", 0)
	err := sender.SendInvitation(context.Background(), room, models.Invitee{Email: "b@x.com", Role: models.RoleMaestro}, "tok/+1")
	require.NoError(t, err)

	require.Len(t, rec.sent, 1)
	msg := rec.sent[0]
	assert.Equal(t, "b@x.com", msg.To)
	assert.Equal(t, "Invitation to Friday Jam", msg.Subject)
	assert.Contains(t, msg.Body, `"Friday Jam" as maestro`)
	assert.Contains(t, msg.Body, "https://metronome.example/api/rooms/jam/join?token=tok%2F%2B1")
}

func TestInvitationSenderUsesSlugWithoutTitle(t *testing.T) {
	rec := &recordingMailer{}
	sender := NewInvitationSender(rec, "http://localhost:8080")

	room := models.NewRoom("jam", "", "a@x.com", 0)
	require.NoError(t, sender.SendInvitation(context.Background(), room, models.Invitee{Email: "a@x.com", Role: models.RoleOwner}, "t"))
	assert.Equal(t, "Invitation to jam", rec.sent[0].Subject)
}

func TestSMTPMailer(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example", Port: 587, Username: "u", Password: "p", From: "metronome@example"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Message{To: "b@x.com", Subject: "Hi", Body: "line one\nline two"}))
	assert.Equal(t, "smtp.example:587", gotAddr)
	assert.Equal(t, "metronome@example", gotFrom)
	assert.Equal(t, []string{"b@x.com"}, gotTo)
	assert.True(t, strings.HasPrefix(string(gotMsg), "From: metronome@example\r\nTo: b@x.com\r\nSubject: Hi\r\n"))
	assert.True(t, strings.HasSuffix(string(gotMsg), "line one\r\nline two"))

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }
	err := m.Send(context.Background(), Message{To: "b@x.com"})
	assert.ErrorContains(t, err, "relay down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "b@x.com"}), context.Canceled)
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, LogMailer{}.Send(context.Background(), Message{To: "a@x.com"}))
}
