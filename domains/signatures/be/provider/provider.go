// Package provider contains the adapters for the external e-signature
// services. Each adapter is constructed per call from a tenant-resolved
// credential; nothing in this package holds long-lived state.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Kind identifies an e-signature provider.
type Kind string

const (
	KindBoldSign Kind = "boldsign"
	KindJotForm  Kind = "jotform"
)

// ParseKind validates a client-supplied provider name.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case KindBoldSign:
		return KindBoldSign, nil
	case KindJotForm:
		return KindJotForm, nil
	default:
		return "", fmt.Errorf("unknown e-signature provider %q", value)
	}
}

// Signer is one party expected to sign, already mapped onto a provider role.
type Signer struct {
	Name  string
	Email string
	Role  string
}

// TemplateSummary describes a reusable document definition offered by a provider.
type TemplateSummary struct {
	ID    string
	Name  string
	Roles []string
}

// SendParams carries everything an adapter needs to dispatch a signing request.
type SendParams struct {
	DocumentID string
	Title      string
	Message    string
	Signers    []Signer
	// TemplateRoles is the ordered role list declared by the selected
	// template. Providers without a role concept leave it empty.
	TemplateRoles []string
}

// SendResult is the provider's synchronous answer to a send.
type SendResult struct {
	ExternalDocumentID string
	// SigningLinks maps signer email to a direct-access URL when the provider
	// returns one synchronously.
	SigningLinks map[string]string
	// FormURL is the public form link for providers without a server-side
	// request object (JotForm).
	FormURL string
	// Metadata keeps the raw provider payload for auditing.
	Metadata map[string]any
}

// Status is the reconciled view of an external signing transaction.
type Status struct {
	DocumentID        string
	Completed         bool
	StillPending      bool
	SignedAt          *time.Time
	SignedDocumentURL string
}

// DocumentSummary is one row of a provider's document listing.
type DocumentSummary struct {
	ID        string
	Title     string
	Status    string
	CreatedAt time.Time
}

// DocumentPage is a page of provider documents plus the unpaged total.
type DocumentPage struct {
	Documents  []DocumentSummary
	TotalCount int
}

// Adapter is the uniform contract over structurally different providers.
//
// Send is not idempotent: a retried send creates a duplicate real-world
// signature request, so implementations perform it exactly once. GetStatus,
// ListTemplates and ListDocuments are safe to retry and adapters wrap them in
// a bounded backoff.
type Adapter interface {
	Name() Kind
	ListTemplates(ctx context.Context) ([]TemplateSummary, error)
	Send(ctx context.Context, params SendParams) (SendResult, error)
	GetStatus(ctx context.Context, documentID string) (Status, error)
	ListDocuments(ctx context.Context, page, pageSize int) (DocumentPage, error)
}

// ErrNotConfigured signals the agency has no credential for the requested
// provider, neither in its settings nor in process configuration.
var ErrNotConfigured = errors.New("e-signature provider is not configured for this agency")

// ProviderError is a normalized non-2xx answer from an external API.
type ProviderError struct {
	Provider   Kind
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s rejected the request (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// NotAReusableTemplateError is raised when a BoldSign send targets a completed
// document and the document-send fallback also failed.
type NotAReusableTemplateError struct {
	DocumentID string
	Hint       string
	Attempts   []string
}

func (e *NotAReusableTemplateError) Error() string {
	return fmt.Sprintf("document %s is not a reusable template: %s", e.DocumentID, e.Hint)
}

// New constructs the adapter for the given provider kind.
func New(kind Kind, apiKey string, opts ...Option) (Adapter, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	switch kind {
	case KindBoldSign:
		return newBoldSignAdapter(apiKey, cfg), nil
	case KindJotForm:
		return newJotFormAdapter(apiKey, cfg), nil
	default:
		return nil, fmt.Errorf("unknown e-signature provider %q", kind)
	}
}

// Option customizes adapter construction; used by tests to point adapters at
// httptest servers.
type Option func(*options)

type options struct {
	httpClient *http.Client
	baseURL    string
	formURL    string
	maxRetries uint64
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}
}

// WithHTTPClient overrides the outbound HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithBaseURL overrides the provider API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithFormURL overrides the public form URL prefix (JotForm only).
func WithFormURL(formURL string) Option {
	return func(o *options) { o.formURL = formURL }
}

// WithMaxRetries bounds the retry budget for idempotent reads.
func WithMaxRetries(n uint64) Option {
	return func(o *options) { o.maxRetries = n }
}

// retryIdempotent runs fn with bounded exponential backoff. Provider
// rejections are permanent: only transport-level failures are retried.
func retryIdempotent(ctx context.Context, maxRetries uint64, fn func() error) error {
	op := func() error {
		err := fn()
		var providerErr *ProviderError
		if errors.As(err, &providerErr) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.Retry(op, policy)
}
