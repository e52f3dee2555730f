package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumacare/backoffice/domains/signatures/be/notify"
	"github.com/lumacare/backoffice/domains/signatures/be/provider"
)

// AdapterSource builds a provider adapter from the agency's resolved
// credential. Constructed per call so tenant credential rotation takes effect
// immediately.
type AdapterSource interface {
	Adapter(ctx context.Context, agencyID uuid.UUID, kind provider.Kind) (provider.Adapter, error)
}

// Notifier dispatches the invitation emails for a created request.
type Notifier interface {
	Dispatch(ctx context.Context, agencyID uuid.UUID, n notify.Notification) []notify.Outcome
}

// RecipientInput is one caller-supplied signing party.
type RecipientInput struct {
	Name  string
	Email string
	Role  string
}

// CreateInput is the composer's submission payload.
type CreateInput struct {
	Title             string
	CustomMessage     string
	Provider          string
	ExternalRequestID string
	Recipients        []RecipientInput
	// Status optionally overrides the initial state; only draft and sent are
	// accepted. Draft skips the provider dispatch entirely.
	Status            string
	RelatedEntityType string
	RelatedEntityID   string
}

// CreateResult carries the created request rows plus the per-recipient email
// outcomes, in recipient order, so callers can render partial-failure status.
type CreateResult struct {
	Requests      []SignatureRequest
	Notifications []notify.Outcome
}

// SyncResult is the outcome of an on-demand status reconciliation.
type SyncResult struct {
	Request SignatureRequest
	// Updated reports whether the stored request was mutated.
	Updated bool
	// StillPending reports the provider has no terminal submission yet.
	StillPending bool
}

// Service orchestrates signature request composition, listing and
// reconciliation for one agency at a time.
type Service interface {
	Create(ctx context.Context, agencyID uuid.UUID, input CreateInput) (CreateResult, error)
	List(ctx context.Context, agencyID uuid.UUID, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, agencyID, id uuid.UUID) (SignatureRequest, error)
	Sync(ctx context.Context, agencyID, id uuid.UUID) (SyncResult, error)
	Purge(ctx context.Context, agencyID uuid.UUID) (int64, error)
	Templates(ctx context.Context, agencyID uuid.UUID, kind provider.Kind) ([]provider.TemplateSummary, error)
}

type service struct {
	repo     Repository
	source   AdapterSource
	notifier Notifier
	now      func() time.Time

	templates templateCache
}

// New constructs a Service instance.
func New(repo Repository, source AdapterSource, notifier Notifier) Service {
	if repo == nil {
		panic("signature request repository is required")
	}
	if source == nil {
		panic("adapter source is required")
	}
	if notifier == nil {
		panic("notifier is required")
	}

	return &service{
		repo:      repo,
		source:    source,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
		templates: templateCache{ttl: 5 * time.Minute},
	}
}

func (s *service) Create(ctx context.Context, agencyID uuid.UUID, input CreateInput) (CreateResult, error) {
	kind, initial, err := s.validateCreate(input)
	if err != nil {
		return CreateResult{}, err
	}

	if initial == StatusDraft {
		return s.createDraft(ctx, agencyID, kind, input)
	}

	adapter, err := s.source.Adapter(ctx, agencyID, kind)
	if err != nil {
		return CreateResult{}, err
	}

	switch kind {
	case provider.KindJotForm:
		return s.createJotForm(ctx, agencyID, adapter, input)
	default:
		return s.createBoldSign(ctx, agencyID, adapter, input)
	}
}

// validateCreate enforces the submission preconditions before any network
// call: provider known, document selected, title present, every recipient
// fully identified.
func (s *service) validateCreate(input CreateInput) (provider.Kind, Status, error) {
	kind, err := provider.ParseKind(input.Provider)
	if err != nil {
		return "", "", &ValidationError{Field: "provider", Reason: err.Error()}
	}
	if strings.TrimSpace(input.ExternalRequestID) == "" {
		return "", "", &ValidationError{Field: "external_request_id", Reason: "a document or form must be selected"}
	}
	if strings.TrimSpace(input.Title) == "" {
		return "", "", &ValidationError{Field: "title", Reason: "title is required"}
	}
	if len(input.Recipients) == 0 {
		return "", "", &ValidationError{Field: "recipients", Reason: "at least one recipient is required"}
	}
	for i, recipient := range input.Recipients {
		if strings.TrimSpace(recipient.Name) == "" {
			return "", "", &ValidationError{Field: fmt.Sprintf("recipients[%d].name", i), Reason: "signer name is required"}
		}
		if strings.TrimSpace(recipient.Email) == "" {
			return "", "", &ValidationError{Field: fmt.Sprintf("recipients[%d].email", i), Reason: "signer email is required"}
		}
	}

	initial := StatusSent
	if input.Status != "" {
		parsed, err := ParseStatus(input.Status)
		if err != nil {
			return "", "", &ValidationError{Field: "status", Reason: err.Error()}
		}
		if parsed != StatusDraft && parsed != StatusSent {
			return "", "", &ValidationError{Field: "status", Reason: "a new request may only start as draft or sent"}
		}
		initial = parsed
	}

	return kind, initial, nil
}

// createDraft persists the request without dispatching to the provider or
// sending any email.
func (s *service) createDraft(ctx context.Context, agencyID uuid.UUID, kind provider.Kind, input CreateInput) (CreateResult, error) {
	request := s.newRequest(agencyID, kind, input, StatusDraft)
	request.Recipients = recipientsFromInput(input.Recipients, provider.DefaultSignerRole)

	created, err := s.repo.Create(ctx, request)
	if err != nil {
		return CreateResult{}, err
	}

	return CreateResult{Requests: []SignatureRequest{created}}, nil
}

// createBoldSign resolves the template's declared roles, binds signers onto
// them and dispatches a single multi-signer request.
func (s *service) createBoldSign(ctx context.Context, agencyID uuid.UUID, adapter provider.Adapter, input CreateInput) (CreateResult, error) {
	templateRoles := s.lookupTemplateRoles(ctx, agencyID, adapter, input.ExternalRequestID)

	signers := make([]SignerInput, 0, len(input.Recipients))
	for _, recipient := range input.Recipients {
		signers = append(signers, SignerInput{Name: recipient.Name, Email: recipient.Email})
	}

	resolved, err := ResolveRoles(templateRoles, signers)
	if err != nil {
		return CreateResult{}, err
	}

	sendSigners := make([]provider.Signer, 0, len(resolved))
	for _, role := range resolved {
		sendSigners = append(sendSigners, provider.Signer{
			Name:  role.SignerName,
			Email: role.SignerEmail,
			Role:  role.RoleName,
		})
	}

	result, err := adapter.Send(ctx, provider.SendParams{
		DocumentID:    input.ExternalRequestID,
		Title:         input.Title,
		Message:       input.CustomMessage,
		Signers:       sendSigners,
		TemplateRoles: templateRoles,
	})
	if err != nil {
		return CreateResult{}, err
	}

	now := s.now()
	request := s.newRequest(agencyID, provider.KindBoldSign, input, StatusSent)
	request.ExternalDocumentID = result.ExternalDocumentID
	request.SentDate = &now
	request.Metadata = result.Metadata
	request.Recipients = make([]Recipient, 0, len(input.Recipients))
	for i, recipient := range input.Recipients {
		role := recipient.Role
		if role == "" && i < len(resolved) {
			role = resolved[i].RoleName
		}
		if role == "" {
			role = provider.DefaultSignerRole
		}
		request.Recipients = append(request.Recipients, Recipient{Name: recipient.Name, Email: recipient.Email, Role: role})
	}

	created, err := s.repo.Create(ctx, request)
	if err != nil {
		return CreateResult{}, err
	}

	outcomes := s.dispatchNotifications(ctx, agencyID, input, created.Recipients, func(email string) string {
		return result.SigningLinks[email]
	})

	return CreateResult{Requests: []SignatureRequest{created}, Notifications: outcomes}, nil
}

// createJotForm dispatches once (there is no server-side request object on the
// JotForm side) and stores one request row per recipient, each carrying the
// form's public URL. This is the legacy single-signer path.
func (s *service) createJotForm(ctx context.Context, agencyID uuid.UUID, adapter provider.Adapter, input CreateInput) (CreateResult, error) {
	result, err := adapter.Send(ctx, provider.SendParams{
		DocumentID: input.ExternalRequestID,
		Title:      input.Title,
		Message:    input.CustomMessage,
	})
	if err != nil {
		return CreateResult{}, err
	}

	now := s.now()
	requests := make([]SignatureRequest, 0, len(input.Recipients))
	for _, recipient := range input.Recipients {
		request := s.newRequest(agencyID, provider.KindJotForm, input, StatusSent)
		request.ExternalDocumentID = result.ExternalDocumentID
		request.SentDate = &now
		request.SignatureURL = result.FormURL
		request.Metadata = result.Metadata
		request.Recipients = []Recipient{{Name: recipient.Name, Email: recipient.Email, Role: provider.DefaultSignerRole}}

		created, err := s.repo.Create(ctx, request)
		if err != nil {
			return CreateResult{}, err
		}
		requests = append(requests, created)
	}

	outcomes := s.dispatchNotifications(ctx, agencyID, input, recipientsFromInput(input.Recipients, provider.DefaultSignerRole), func(string) string {
		return result.FormURL
	})

	return CreateResult{Requests: requests, Notifications: outcomes}, nil
}

func (s *service) newRequest(agencyID uuid.UUID, kind provider.Kind, input CreateInput, status Status) SignatureRequest {
	now := s.now()
	return SignatureRequest{
		ID:                uuid.New(),
		AgencyID:          agencyID,
		Title:             strings.TrimSpace(input.Title),
		CustomMessage:     input.CustomMessage,
		Provider:          kind,
		ExternalRequestID: input.ExternalRequestID,
		Status:            status,
		RelatedEntityType: input.RelatedEntityType,
		RelatedEntityID:   input.RelatedEntityID,
		CreatedDate:       now,
		UpdatedDate:       now,
	}
}

// dispatchNotifications emails every recipient that has a direct-access URL.
// Delivery failures never roll back the created request rows.
func (s *service) dispatchNotifications(ctx context.Context, agencyID uuid.UUID, input CreateInput, recipients []Recipient, urlFor func(email string) string) []notify.Outcome {
	targets := make([]notify.Recipient, 0, len(recipients))
	for _, recipient := range recipients {
		url := urlFor(recipient.Email)
		if url == "" {
			continue
		}
		targets = append(targets, notify.Recipient{Name: recipient.Name, Email: recipient.Email, SigningURL: url})
	}
	if len(targets) == 0 {
		return nil
	}

	return s.notifier.Dispatch(ctx, agencyID, notify.Notification{
		Title:         input.Title,
		CustomMessage: input.CustomMessage,
		Recipients:    targets,
	})
}

func (s *service) List(ctx context.Context, agencyID uuid.UUID, opts ListOptions) (ListResult, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = 20
	}

	return s.repo.List(ctx, agencyID, opts)
}

func (s *service) Get(ctx context.Context, agencyID, id uuid.UUID) (SignatureRequest, error) {
	return s.repo.Get(ctx, agencyID, id)
}

func (s *service) Purge(ctx context.Context, agencyID uuid.UUID) (int64, error) {
	return s.repo.DeleteByAgency(ctx, agencyID)
}

// Templates lists a provider's reusable documents, cached briefly per agency
// and provider so repeated provider switching does not refetch.
func (s *service) Templates(ctx context.Context, agencyID uuid.UUID, kind provider.Kind) ([]provider.TemplateSummary, error) {
	if cached, ok := s.templates.get(agencyID, kind); ok {
		return cached, nil
	}

	adapter, err := s.source.Adapter(ctx, agencyID, kind)
	if err != nil {
		return nil, err
	}

	templates, err := adapter.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	s.templates.put(agencyID, kind, templates)
	return templates, nil
}

// lookupTemplateRoles resolves the ordered role names a template declares.
// Missing template metadata degrades to positional roles derived from the
// supplied signers rather than failing the whole send.
func (s *service) lookupTemplateRoles(ctx context.Context, agencyID uuid.UUID, adapter provider.Adapter, templateID string) []string {
	templates, ok := s.templates.get(agencyID, adapter.Name())
	if !ok {
		fetched, err := adapter.ListTemplates(ctx)
		if err != nil {
			return nil
		}
		s.templates.put(agencyID, adapter.Name(), fetched)
		templates = fetched
	}

	for _, template := range templates {
		if template.ID == templateID {
			return template.Roles
		}
	}
	return nil
}

func recipientsFromInput(inputs []RecipientInput, defaultRole string) []Recipient {
	recipients := make([]Recipient, 0, len(inputs))
	for _, input := range inputs {
		role := input.Role
		if role == "" {
			role = defaultRole
		}
		recipients = append(recipients, Recipient{Name: input.Name, Email: input.Email, Role: role})
	}
	return recipients
}

// templateCache is a small TTL cache for provider template listings.
type templateCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[templateCacheKey]templateCacheEntry
}

type templateCacheKey struct {
	agencyID uuid.UUID
	kind     provider.Kind
}

type templateCacheEntry struct {
	templates []provider.TemplateSummary
	expires   time.Time
}

func (c *templateCache) get(agencyID uuid.UUID, kind provider.Kind) ([]provider.TemplateSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[templateCacheKey{agencyID: agencyID, kind: kind}]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.templates, true
}

func (c *templateCache) put(agencyID uuid.UUID, kind provider.Kind, templates []provider.TemplateSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = make(map[templateCacheKey]templateCacheEntry)
	}
	c.entries[templateCacheKey{agencyID: agencyID, kind: kind}] = templateCacheEntry{
		templates: templates,
		expires:   time.Now().Add(c.ttl),
	}
}
