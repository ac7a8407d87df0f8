package notification

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	sent []Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestAggregator_DispatchEmptyIsNoop(t *testing.T) {
	mailer := &captureMailer{}
	auditor := audit.NewMemory()
	a := NewAggregator(mailer, auditor, "ops@example.com")
	out := output.NewBuffer()

	a.Add("id", "1", map[string]any{"name": "x"}, nil)
	require.NoError(t, a.Dispatch(t.Context(), out))

	assert.Equal(t, 0, a.Len())
	assert.Empty(t, mailer.sent)
	assert.Empty(t, out.Lines())
	assert.Empty(t, auditor.Events())
}

func TestAggregator_MergesByKeyAndSends(t *testing.T) {
	mailer := &captureMailer{}
	auditor := audit.NewMemory()
	a := NewAggregator(mailer, auditor, "ops@example.com", WithSubject("Customer import"))
	a.SetContext("Nightly customer import")
	out := output.NewBuffer()

	a.Add("id", "7", map[string]any{"name": "Old", "email": "x@y"}, map[string]any{"name": "New"})
	a.Add("id", "7", map[string]any{"city": "Riga"}, map[string]any{"city": "Oslo"})
	a.Add("id", "9", nil, map[string]any{"name": "<b>Bob</b>"})

	assert.Equal(t, 2, a.Len())
	require.NoError(t, a.Dispatch(t.Context(), out))

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "ops@example.com", msg.To)
	assert.Equal(t, "Customer import", msg.Subject)
	assert.Contains(t, msg.HTML, "Nightly customer import")
	assert.Contains(t, msg.HTML, "<u>name</u>: Old; <u>city</u>: Riga; ")
	assert.Contains(t, msg.HTML, "<u>name</u>: New; <u>city</u>: Oslo; ")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Bob&lt;/b&gt;")
	assert.NotContains(t, msg.HTML, "x@y")
	assert.Equal(t, 1, strings.Count(msg.HTML, "<td>id: 7</td>"))

	assert.True(t, out.Contains("Preparing e-mail notification for 2 records"))
	assert.True(t, out.Contains("E-mail notification sent to ops@example.com"))

	events := auditor.ByCategory(audit.CategoryETL)
	require.Len(t, events, 1)
	assert.Equal(t, "Notifications sent to ops@example.com", events[0].Message)

	assert.Equal(t, 0, a.Len())
}

func TestAggregator_SendErrorPropagates(t *testing.T) {
	mailer := &captureMailer{err: errors.New("connection reset")}
	auditor := audit.NewMemory()
	a := NewAggregator(mailer, auditor, "ops@example.com")
	a.Add("id", "1", nil, map[string]any{"name": "x"})

	err := a.Dispatch(t.Context(), output.NewBuffer())

	require.Error(t, err)
	assert.ErrorIs(t, err, mailer.err)
	assert.Empty(t, auditor.Events())
}

func TestSMTPMailer_Compose(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	var gotAuth smtp.Auth

	m := NewSMTPMailer(SMTPConfig{Addr: "mail.local:587", Username: "u", Password: "p", From: "etl@example.com"})
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotBody = addr, a, from, to, msg
		return nil
	}

	err := m.Send(t.Context(), Message{To: "ops@example.com", Subject: "Hi", HTML: "<p>x</p>"})

	require.NoError(t, err)
	assert.Equal(t, "mail.local:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "etl@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, string(gotBody), "Subject: Hi\r\n")
	assert.Contains(t, string(gotBody), "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(string(gotBody), "\r\n\r\n<p>x</p>"))
}

func TestSMTPMailer_CanceledContext(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Addr: "mail.local:25"})
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be attempted")
		return nil
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.ErrorIs(t, m.Send(ctx, Message{}), context.Canceled)
}
