// Package config resolves provider credentials and sender identity for an
// agency: tenant-scoped settings first, process-level configuration as the
// fallback, and an explicit not-configured signal when both are absent.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lumacare/backoffice/domains/signatures/be/provider"
	"github.com/lumacare/backoffice/platform/go/persistence"
)

// Setting keys stored per agency.
const (
	KeyBoldSignAPIKey = "boldsign_api_key"
	KeyJotFormAPIKey  = "jotform_api_key"
	KeyResendAPIKey   = "resend_api_key"
	KeyResendFrom     = "resend_from"
)

// SettingsReader is the read side of the agency settings store.
type SettingsReader interface {
	Get(ctx context.Context, agencyID uuid.UUID, key string) (string, error)
}

// Fallbacks holds the process-level credentials used when an agency has no
// stored value of its own.
type Fallbacks struct {
	BoldSignAPIKey string
	JotFormAPIKey  string
	ResendAPIKey   string
	ResendFrom     string
}

// EmailSender is the resolved dispatch identity for transactional email.
type EmailSender struct {
	APIKey string
	From   string
}

// Resolver looks up credentials for a specific agency.
type Resolver struct {
	settings  SettingsReader
	fallbacks Fallbacks
}

// NewResolver constructs a Resolver.
func NewResolver(settings SettingsReader, fallbacks Fallbacks) *Resolver {
	if settings == nil {
		panic("settings reader is required")
	}
	return &Resolver{settings: settings, fallbacks: fallbacks}
}

// ProviderKey resolves the API credential for an e-signature provider.
// Returns provider.ErrNotConfigured when neither the agency settings nor the
// process configuration carry a value.
func (r *Resolver) ProviderKey(ctx context.Context, agencyID uuid.UUID, kind provider.Kind) (string, error) {
	var key, fallback string
	switch kind {
	case provider.KindBoldSign:
		key, fallback = KeyBoldSignAPIKey, r.fallbacks.BoldSignAPIKey
	case provider.KindJotForm:
		key, fallback = KeyJotFormAPIKey, r.fallbacks.JotFormAPIKey
	default:
		return "", fmt.Errorf("unknown e-signature provider %q", kind)
	}

	return r.resolve(ctx, agencyID, key, fallback)
}

// EmailSender resolves the transactional email credential and default sender
// identity for an agency.
func (r *Resolver) EmailSender(ctx context.Context, agencyID uuid.UUID) (EmailSender, error) {
	apiKey, err := r.resolve(ctx, agencyID, KeyResendAPIKey, r.fallbacks.ResendAPIKey)
	if err != nil {
		return EmailSender{}, err
	}

	from, err := r.resolve(ctx, agencyID, KeyResendFrom, r.fallbacks.ResendFrom)
	if err != nil {
		return EmailSender{}, err
	}

	return EmailSender{APIKey: apiKey, From: from}, nil
}

func (r *Resolver) resolve(ctx context.Context, agencyID uuid.UUID, key, fallback string) (string, error) {
	value, err := r.settings.Get(ctx, agencyID, key)
	switch {
	case err == nil && strings.TrimSpace(value) != "":
		return value, nil
	case err != nil && !errors.Is(err, persistence.ErrSettingNotFound):
		return "", fmt.Errorf("read agency setting %q: %w", key, err)
	}

	if strings.TrimSpace(fallback) != "" {
		return fallback, nil
	}

	return "", provider.ErrNotConfigured
}

// Source builds adapters per call from resolved, tenant-scoped credentials.
// There is deliberately no cached client: credentials rotate per tenant.
type Source struct {
	resolver *Resolver
	opts     []provider.Option
}

// NewSource constructs a Source. Extra options (test base URLs) apply to every
// adapter it builds.
func NewSource(resolver *Resolver, opts ...provider.Option) *Source {
	if resolver == nil {
		panic("credential resolver is required")
	}
	return &Source{resolver: resolver, opts: opts}
}

// Adapter resolves the agency's credential and constructs the adapter.
func (s *Source) Adapter(ctx context.Context, agencyID uuid.UUID, kind provider.Kind) (provider.Adapter, error) {
	apiKey, err := s.resolver.ProviderKey(ctx, agencyID, kind)
	if err != nil {
		return nil, err
	}
	return provider.New(kind, apiKey, s.opts...)
}

// JotForm resolves the agency's credential and constructs the concrete JotForm
// adapter for the integrations pass-through surface.
func (s *Source) JotForm(ctx context.Context, agencyID uuid.UUID) (*provider.JotFormAdapter, error) {
	apiKey, err := s.resolver.ProviderKey(ctx, agencyID, provider.KindJotForm)
	if err != nil {
		return nil, err
	}
	return provider.NewJotForm(apiKey, s.opts...)
}
