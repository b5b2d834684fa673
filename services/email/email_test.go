package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/madrasa/core"
	logsvc "github.com/trezcool/madrasa/services/logger"
)

func setup(t *testing.T) (*ConsoleServiceMock, *core.Config) {
	conf := core.NewTestConfig()
	tmpls, err := core.ParseEmailTemplates(conf)
	require.NoError(t, err)
	logger := logsvc.NewRollbarLogger(new(bytes.Buffer), "TEST : ", conf)
	return NewConsoleServiceMock(tmpls, logger, conf), conf
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc, _ := setup(t)
	to := []mail.Address{{Name: "Admin", Address: "admin@school.com"}}

	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "plain", BodyStr: "hello"},
		&core.EmailMessage{
			To:           to,
			Subject:      "reset",
			TemplateName: "password_reset",
			TemplateData: map[string]string{"Name": "Admin", "Link": "http://localhost:3000/reset?token=abc"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		&core.EmailMessage{To: to, Subject: "unknown", TemplateName: "nope"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Contains(t, sent[1].TextContent, "token=abc")
	assert.Contains(t, sent[1].HTMLContent, "token=abc")
	assert.Contains(t, sent[1].TextContent, "Madrasa")
}

func TestConsoleService_format(t *testing.T) {
	svc, _ := setup(t)
	out := svc.format(core.EmailMessage{
		To:          []mail.Address{{Address: "a@b.c"}, {Address: "d@e.f"}},
		Subject:     "Hi",
		TextContent: "body",
		HTMLContent: "<p>body</p>",
	})

	assert.Contains(t, out, "From: noreply@localhost\r\n")
	assert.Contains(t, out, "Subject: [Madrasa] Hi\r\n")
	assert.Contains(t, out, "To: <a@b.c>, <d@e.f>\r\n")
	assert.Equal(t, 2, strings.Count(out, "charset=utf-8"))
}

func TestResendService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	conf.DefaultFromEmail = "Madrasa <noreply@school.com>"
	svc := NewResendService(nil, nil, conf)

	req := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "A", Address: "a@b.c"}},
		Subject:     "Hi",
		TextContent: "body",
	})
	assert.Equal(t, `"Madrasa" <noreply@school.com>`, req.From)
	assert.Equal(t, []string{`"A" <a@b.c>`}, req.To)
	assert.Equal(t, "[Madrasa] Hi", req.Subject)
	assert.Equal(t, "body", req.Text)
	assert.Empty(t, req.Html)
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(nil, nil, conf)

	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Address: "a@b.c"}},
		Subject:     "Hi",
		TextContent: "body",
		HTMLContent: "<p>body</p>",
	})
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Madrasa] Hi", m.Personalizations[0].Subject)
	assert.Equal(t, "a@b.c", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "noreply@localhost", m.From.Address)
	assert.Len(t, m.Content, 2)
}
