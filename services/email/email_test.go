package emailsvc

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/services/logger"
)

func setup(t *testing.T) (*core.Config, core.Logger) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewLogger(io.Discard, "TEST")
	core.ParseEmailTemplates(conf, logger)
	return conf, logger
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf, logger := setup(t)
	svc := NewConsoleServiceMock(conf, logger)

	withAttachment := &core.EmailMessage{
		To:           []mail.Address{{Name: "Jane", Address: "jane@firm.test"}},
		Subject:      "Upcoming practice review PR-1",
		TemplateName: "review_notice",
		TemplateData: map[string]string{
			"ContactName": "Jane",
			"PRNumber":    "PR-1",
			"FirmName":    "Acme LLP",
			"StartDate":   "March 3, 2026",
		},
	}
	require.NoError(t, withAttachment.Attach(strings.NewReader("<p>notice</p>"), "notice.html", "text/html"))

	tests := []struct {
		name     string
		msg      *core.EmailMessage
		wantSent bool
	}{
		{name: "no recipients", msg: &core.EmailMessage{Subject: "lost", BodyStr: "hello"}},
		{name: "no content", msg: &core.EmailMessage{To: []mail.Address{{Address: "a@b.c"}}, Subject: "empty"}},
		{name: "unknown template", msg: &core.EmailMessage{To: []mail.Address{{Address: "a@b.c"}}, TemplateName: "lol"}},
		{name: "plain text", msg: &core.EmailMessage{To: []mail.Address{{Address: "a@b.c"}}, BodyStr: "hello"}, wantSent: true},
		{
			name: "password reset",
			msg: &core.EmailMessage{
				To:           []mail.Address{{Address: "a@b.c"}},
				Subject:      "Password reset",
				TemplateName: "password_reset",
				TemplateData: map[string]string{"Username": "abc", "ResetURL": "http://localhost:3000/change-password/t0k", "ExpiresIn": "3 days"},
			},
			wantSent: true,
		},
		{name: "with attachment", msg: withAttachment, wantSent: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc.Reset()
			svc.SendMessages(tt.msg)
			sent := svc.SentMessages()
			if !tt.wantSent {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			assert.True(t, sent[0].HasContent())
		})
	}

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "PR-1")
	assert.Contains(t, sent[0].HTMLContent, "Acme LLP")
	assert.Equal(t, "text/html", sent[0].Attachments[0].ContentType)
	assert.Equal(t, "PHA+bm90aWNlPC9wPg==", sent[0].Attachments[0].Content.String())
}

func TestConsoleService_send(t *testing.T) {
	conf, logger := setup(t)
	svc := NewConsoleServiceMock(conf, logger)

	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "a@b.c"}},
		Subject:     "Hello",
		TextContent: "hi",
	}
	require.NoError(t, svc.send(msg))
}

func TestSendgridService_prepare(t *testing.T) {
	conf, logger := setup(t)
	svc := NewSendgridService(conf, logger).(*sendgridService)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@firm.test"}},
		Cc:          []mail.Address{{Address: "cc@firm.test"}},
		Subject:     "Password reset",
		TextContent: "text",
		HTMLContent: "<p>html</p>",
	}
	require.NoError(t, msg.Attach(strings.NewReader("hello"), "hello.txt", "text/plain"))

	m := svc.prepare(msg)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[PRS Online] Password reset", m.Personalizations[0].Subject)
	assert.Equal(t, "jane@firm.test", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "cc@firm.test", m.Personalizations[0].CC[0].Address)
	assert.Equal(t, "noreply@localhost", m.From.Address)
	assert.Len(t, m.Content, 2)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "aGVsbG8=", m.Attachments[0].Content)
}

func reviewNoticeMessage(t *testing.T) *core.EmailMessage {
	t.Helper()
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "Jane", Address: "jane@firm.test"}},
		Subject:      "Upcoming practice review PR-1",
		TemplateName: "review_notice",
		TemplateData: map[string]string{
			"ContactName": "Jane",
			"PRNumber":    "PR-1",
			"FirmName":    "Acme LLP",
			"StartDate":   "March 3, 2026",
		},
	}
	require.NoError(t, msg.Attach(strings.NewReader("<p>notice</p>"), "notice-PR-1.html", "text/html"))
	require.NoError(t, msg.Render())
	return msg
}

func TestSendgridService_prepareReviewNotice(t *testing.T) {
	conf, logger := setup(t)
	svc := NewSendgridService(conf, logger).(*sendgridService)

	m := svc.prepare(*reviewNoticeMessage(t))
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[PRS Online] Upcoming practice review PR-1", m.Personalizations[0].Subject)
	assert.Equal(t, "Jane", m.Personalizations[0].To[0].Name)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Contains(t, m.Content[0].Value, "PR-1")
	assert.Equal(t, "text/html", m.Content[1].Type)
	assert.Contains(t, m.Content[1].Value, "Acme LLP")

	require.Len(t, m.Attachments, 1)
	at := m.Attachments[0]
	assert.Equal(t, "notice-PR-1.html", at.Filename)
	assert.Equal(t, "text/html", at.Type)
	assert.Equal(t, "attachment", at.Disposition)
	assert.Equal(t, "PHA+bm90aWNlPC9wPg==", at.Content)
}

func TestSendgridService_send(t *testing.T) {
	conf, logger := setup(t)
	conf.SendgridApiKey = "sg-key"
	svc := NewSendgridService(conf, logger).(*sendgridService)

	var (
		auth string
		body struct {
			Personalizations []struct {
				Subject string `json:"subject"`
			} `json:"personalizations"`
			Attachments []struct {
				Content  string `json:"content"`
				Filename string `json:"filename"`
			} `json:"attachments"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, endpoint, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	defer func(h string) { host = h }(host)
	host = srv.URL

	svc.send(*reviewNoticeMessage(t))

	assert.Equal(t, "Bearer sg-key", auth)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[PRS Online] Upcoming practice review PR-1", body.Personalizations[0].Subject)
	require.Len(t, body.Attachments, 1)
	assert.Equal(t, "notice-PR-1.html", body.Attachments[0].Filename)
	assert.Equal(t, "PHA+bm90aWNlPC9wPg==", body.Attachments[0].Content)
}
