// Package notify sends the transactional signature-invitation emails. Email
// delivery is best effort: a failed send never rolls back the request that
// triggered it, it only shows up in the per-recipient outcome list.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"

	"github.com/lumacare/backoffice/domains/signatures/be/config"
)

// Email is one rendered message ready for dispatch.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer is the outbound email seam; the production implementation wraps the
// Resend SDK.
type Mailer interface {
	Send(ctx context.Context, email Email) (id string, err error)
}

// MailerFactory builds a Mailer from a resolved, tenant-scoped credential.
type MailerFactory func(apiKey string) Mailer

// ResendMailer dispatches through the Resend API.
type ResendMailer struct {
	client *resend.Client
}

// NewResendMailer constructs a mailer for the given API key.
func NewResendMailer(apiKey string) Mailer {
	return &ResendMailer{client: resend.NewClient(apiKey)}
}

func (m *ResendMailer) Send(ctx context.Context, email Email) (string, error) {
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    email.From,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("send email via resend: %w", err)
	}
	return sent.Id, nil
}

// Recipient is one notification target with its direct-access signing URL.
type Recipient struct {
	Name       string
	Email      string
	SigningURL string
}

// Notification describes the emails to send for one created request.
type Notification struct {
	Title         string
	CustomMessage string
	AgencyName    string
	Recipients    []Recipient
}

// Outcome is the per-recipient delivery result, in dispatch order.
type Outcome struct {
	Recipient string `json:"recipient"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

// SenderResolver resolves the tenant's email credential and sender identity.
type SenderResolver interface {
	EmailSender(ctx context.Context, agencyID uuid.UUID) (config.EmailSender, error)
}

// Dispatcher renders the invitation template and delivers one email per
// recipient that carries a signing URL. Delivery is sequential so the outcome
// slice order matches the recipient order.
type Dispatcher struct {
	resolver SenderResolver
	factory  MailerFactory
}

// NewDispatcher constructs a Dispatcher. A nil factory defaults to the Resend
// implementation.
func NewDispatcher(resolver SenderResolver, factory MailerFactory) *Dispatcher {
	if resolver == nil {
		panic("sender resolver is required")
	}
	if factory == nil {
		factory = NewResendMailer
	}
	return &Dispatcher{resolver: resolver, factory: factory}
}

// Dispatch sends the notification emails and collects per-recipient outcomes.
// It never returns an error for individual delivery failures.
func (d *Dispatcher) Dispatch(ctx context.Context, agencyID uuid.UUID, n Notification) []Outcome {
	outcomes := make([]Outcome, 0, len(n.Recipients))

	sender, err := d.resolver.EmailSender(ctx, agencyID)
	if err != nil {
		for _, recipient := range n.Recipients {
			outcomes = append(outcomes, Outcome{Recipient: recipient.Email, Error: err.Error()})
		}
		return outcomes
	}

	mailer := d.factory(sender.APIKey)
	for _, recipient := range n.Recipients {
		if recipient.SigningURL == "" {
			outcomes = append(outcomes, Outcome{Recipient: recipient.Email, Error: "no signing url available"})
			continue
		}

		subject, html, err := RenderInvite(TemplateData{
			RecipientName: recipient.Name,
			Title:         n.Title,
			CustomMessage: n.CustomMessage,
			SigningURL:    recipient.SigningURL,
			AgencyName:    n.AgencyName,
		})
		if err != nil {
			outcomes = append(outcomes, Outcome{Recipient: recipient.Email, Error: err.Error()})
			continue
		}

		if _, err := mailer.Send(ctx, Email{
			From:    sender.From,
			To:      recipient.Email,
			Subject: subject,
			HTML:    html,
		}); err != nil {
			outcomes = append(outcomes, Outcome{Recipient: recipient.Email, Error: err.Error()})
			continue
		}

		outcomes = append(outcomes, Outcome{Recipient: recipient.Email, Sent: true})
	}

	return outcomes
}
