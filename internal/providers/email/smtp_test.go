package email

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg, err := buildMessage("directorio@example.com", []string{"owner@example.com"},
		"Tu plan vence pronto\r\nBcc: attacker@example.com", "<p>hola</p>\n<p>adiós</p>", now)
	require.NoError(t, err)

	head, body, ok := strings.Cut(string(msg), "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "From: directorio@example.com\r\n")
	assert.Contains(t, head, "To: owner@example.com\r\n")
	assert.Contains(t, head, "Date: Sun, 01 Mar 2026 09:00:00 +0000\r\n")
	assert.NotContains(t, head, "\r\nBcc:")
	assert.Equal(t, "<p>hola</p>\r\n<p>adiós</p>", body)

	_, err = buildMessage("not an address", []string{"owner@example.com"}, "s", "b", now)
	assert.Error(t, err)
	_, err = buildMessage("directorio@example.com", []string{"nope"}, "s", "b", now)
	assert.Error(t, err)
}

func TestSMTPSendErrors(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 587, From: "directorio@example.com"})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), errNoRecipients)

	refused := errors.New("connection refused")
	p.dial = func(context.Context, string, string) (net.Conn, error) { return nil, refused }
	err := p.Send(context.Background(), []string{"owner@example.com"}, "s", "b")
	assert.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "smtp.example.com:587")
}
