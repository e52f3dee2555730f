package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lumacare/backoffice/domains/signatures/be/config"
	"github.com/lumacare/backoffice/domains/signatures/be/provider"
)

type stubResolver struct {
	sender config.EmailSender
	err    error
}

func (s *stubResolver) EmailSender(ctx context.Context, agencyID uuid.UUID) (config.EmailSender, error) {
	return s.sender, s.err
}

// captureMailer records sends and fails for addresses listed in failFor.
type captureMailer struct {
	sent    []Email
	failFor map[string]error
}

func (m *captureMailer) Send(ctx context.Context, email Email) (string, error) {
	if err, ok := m.failFor[email.To]; ok {
		return "", err
	}
	m.sent = append(m.sent, email)
	return "msg-" + email.To, nil
}

func notification() Notification {
	return Notification{
		Title:         "Care Agreement",
		CustomMessage: "Please sign by Friday.",
		Recipients: []Recipient{
			{Name: "Ada Client", Email: "ada@example.com", SigningURL: "https://sign.example/a"},
			{Name: "Grace Guardian", Email: "grace@example.com", SigningURL: "https://sign.example/g"},
		},
	}
}

func TestDispatchSendsOneEmailPerRecipient(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{}
	dispatcher := NewDispatcher(
		&stubResolver{sender: config.EmailSender{APIKey: "re_key", From: "no-reply@lumacare.app"}},
		func(apiKey string) Mailer {
			require.Equal(t, "re_key", apiKey)
			return mailer
		},
	)

	outcomes := dispatcher.Dispatch(context.Background(), uuid.New(), notification())

	require.Len(t, outcomes, 2)
	require.Equal(t, "ada@example.com", outcomes[0].Recipient)
	require.True(t, outcomes[0].Sent)
	require.Equal(t, "grace@example.com", outcomes[1].Recipient)
	require.True(t, outcomes[1].Sent)

	require.Len(t, mailer.sent, 2)
	require.Equal(t, "no-reply@lumacare.app", mailer.sent[0].From)
	require.Equal(t, "Signature requested: Care Agreement", mailer.sent[0].Subject)
	require.Contains(t, mailer.sent[0].HTML, "https://sign.example/a")
	require.Contains(t, mailer.sent[1].HTML, "https://sign.example/g")
}

func TestDispatchPartialFailureKeepsOrder(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{failFor: map[string]error{
		"ada@example.com": errors.New("mailbox unavailable"),
	}}
	dispatcher := NewDispatcher(
		&stubResolver{sender: config.EmailSender{APIKey: "re_key", From: "no-reply@lumacare.app"}},
		func(string) Mailer { return mailer },
	)

	outcomes := dispatcher.Dispatch(context.Background(), uuid.New(), notification())

	require.Len(t, outcomes, 2)
	require.False(t, outcomes[0].Sent)
	require.Contains(t, outcomes[0].Error, "mailbox unavailable")
	require.True(t, outcomes[1].Sent)
}

func TestDispatchResolverFailureFailsAllRecipients(t *testing.T) {
	t.Parallel()

	dispatcher := NewDispatcher(
		&stubResolver{err: provider.ErrNotConfigured},
		func(string) Mailer {
			t.Fatal("mailer must not be built without a credential")
			return nil
		},
	)

	outcomes := dispatcher.Dispatch(context.Background(), uuid.New(), notification())

	require.Len(t, outcomes, 2)
	for _, outcome := range outcomes {
		require.False(t, outcome.Sent)
		require.NotEmpty(t, outcome.Error)
	}
}

func TestDispatchSkipsRecipientWithoutURL(t *testing.T) {
	t.Parallel()

	mailer := &captureMailer{}
	dispatcher := NewDispatcher(
		&stubResolver{sender: config.EmailSender{APIKey: "re_key", From: "no-reply@lumacare.app"}},
		func(string) Mailer { return mailer },
	)

	n := notification()
	n.Recipients[0].SigningURL = ""

	outcomes := dispatcher.Dispatch(context.Background(), uuid.New(), n)

	require.Len(t, outcomes, 2)
	require.False(t, outcomes[0].Sent)
	require.Contains(t, outcomes[0].Error, "no signing url")
	require.True(t, outcomes[1].Sent)
	require.Len(t, mailer.sent, 1)
}

func TestRenderInvite(t *testing.T) {
	t.Parallel()

	subject, html, err := RenderInvite(TemplateData{
		RecipientName: "Ada Client",
		Title:         "Care Agreement",
		CustomMessage: "See attached <notes>.",
		SigningURL:    "https://sign.example/a",
		AgencyName:    "Sunrise Home Care",
	})
	require.NoError(t, err)
	require.Equal(t, "Signature requested: Care Agreement", subject)
	require.Contains(t, html, "Hi Ada Client,")
	require.Contains(t, html, "https://sign.example/a")
	require.Contains(t, html, "Sunrise Home Care")
	// html/template escapes user-entered content.
	require.Contains(t, html, "&lt;notes&gt;")
	require.False(t, strings.Contains(html, "<notes>"))
}

func TestRenderInviteDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	_, html, err := RenderInvite(TemplateData{Title: "Care Agreement", SigningURL: "https://sign.example/a"})
	require.NoError(t, err)
	require.Contains(t, html, "Hi there,")

	_, _, err = RenderInvite(TemplateData{SigningURL: "https://sign.example/a"})
	require.Error(t, err)

	_, _, err = RenderInvite(TemplateData{Title: "Care Agreement"})
	require.Error(t, err)
}
