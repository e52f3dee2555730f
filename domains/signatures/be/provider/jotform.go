package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	defaultJotFormBaseURL = "https://api.jotform.com"
	defaultJotFormFormURL = "https://form.jotform.com"
	jotFormPDFURLPattern  = "https://www.jotform.com/pdf-submission"
)

// DefaultSignerRole is the label used when a provider declares no role of its
// own. JotForm has no native multi-party role concept, so its role resolution
// always yields exactly this one synthetic role.
const DefaultSignerRole = "Signer"

// JotFormAdapter talks to the JotForm REST API. Authentication is an apiKey
// query parameter. It is exported because the integrations pass-through
// endpoint uses the raw form operations in addition to the Adapter contract.
type JotFormAdapter struct {
	apiKey     string
	baseURL    string
	formURL    string
	client     *http.Client
	maxRetries uint64
}

// NewJotForm constructs the adapter from a resolved credential.
func NewJotForm(apiKey string, opts ...Option) (*JotFormAdapter, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	return newJotFormAdapter(apiKey, cfg), nil
}

func newJotFormAdapter(apiKey string, cfg options) *JotFormAdapter {
	baseURL := cfg.baseURL
	if baseURL == "" {
		baseURL = defaultJotFormBaseURL
	}
	formURL := cfg.formURL
	if formURL == "" {
		formURL = defaultJotFormFormURL
	}

	return &JotFormAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		formURL:    strings.TrimRight(formURL, "/"),
		client:     cfg.httpClient,
		maxRetries: cfg.maxRetries,
	}
}

func (a *JotFormAdapter) Name() Kind { return KindJotForm }

// JotFormForm is the raw form record returned by the JotForm API.
type JotFormForm struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

func (a *JotFormAdapter) ListTemplates(ctx context.Context) ([]TemplateSummary, error) {
	forms, err := a.GetForms(ctx)
	if err != nil {
		return nil, err
	}

	templates := make([]TemplateSummary, 0, len(forms))
	for _, form := range forms {
		if !strings.EqualFold(form.Status, "ENABLED") {
			continue
		}
		templates = append(templates, TemplateSummary{
			ID:    form.ID,
			Name:  form.Title,
			Roles: []string{DefaultSignerRole},
		})
	}

	return templates, nil
}

// GetForms lists the account's forms. Idempotent.
func (a *JotFormAdapter) GetForms(ctx context.Context) ([]JotFormForm, error) {
	var forms []JotFormForm
	err := retryIdempotent(ctx, a.maxRetries, func() error {
		return a.getJSON(ctx, "/user/forms", nil, &forms)
	})
	if err != nil {
		return nil, err
	}
	return forms, nil
}

// GetForm fetches a single form. Idempotent.
func (a *JotFormAdapter) GetForm(ctx context.Context, formID string) (JotFormForm, error) {
	if formID == "" {
		return JotFormForm{}, errors.New("form id is required")
	}

	var form JotFormForm
	err := retryIdempotent(ctx, a.maxRetries, func() error {
		return a.getJSON(ctx, "/form/"+url.PathEscape(formID), nil, &form)
	})
	if err != nil {
		return JotFormForm{}, err
	}
	return form, nil
}

// Send verifies the form exists and returns its public URL. JotForm has no
// server-side signature-request object: distributing the URL to signers is the
// caller's responsibility, which is why the dispatcher emails it out.
func (a *JotFormAdapter) Send(ctx context.Context, params SendParams) (SendResult, error) {
	if params.DocumentID == "" {
		return SendResult{}, errors.New("form id is required")
	}

	form, err := a.GetForm(ctx, params.DocumentID)
	if err != nil {
		return SendResult{}, err
	}

	formURL := form.URL
	if formURL == "" {
		formURL = a.formURL + "/" + form.ID
	}

	return SendResult{
		ExternalDocumentID: form.ID,
		FormURL:            formURL,
		Metadata: map[string]any{
			"jotformFormId":    form.ID,
			"jotformFormTitle": form.Title,
		},
	}, nil
}

// JotFormAnswer is one answered field of a submission.
type JotFormAnswer struct {
	Type   string          `json:"type"`
	Answer json.RawMessage `json:"answer"`
}

// JotFormSubmission is the raw submission record returned by the JotForm API.
type JotFormSubmission struct {
	ID        string                   `json:"id"`
	Status    string                   `json:"status"`
	CreatedAt string                   `json:"created_at"`
	Answers   map[string]JotFormAnswer `json:"answers"`
}

// GetSubmissions lists a form's submissions, most recent first. Idempotent.
func (a *JotFormAdapter) GetSubmissions(ctx context.Context, formID string) ([]JotFormSubmission, error) {
	if formID == "" {
		return nil, errors.New("form id is required")
	}

	var submissions []JotFormSubmission
	err := retryIdempotent(ctx, a.maxRetries, func() error {
		return a.getJSON(ctx, "/form/"+url.PathEscape(formID)+"/submissions", url.Values{"orderby": {"created_at"}}, &submissions)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(submissions, func(i, j int) bool {
		return submissions[i].CreatedAt > submissions[j].CreatedAt
	})

	return submissions, nil
}

// GetStatus reconciles by listing the form's submissions and inspecting the
// most recent one. No submission yet means the request is still pending, not
// an error.
func (a *JotFormAdapter) GetStatus(ctx context.Context, documentID string) (Status, error) {
	submissions, err := a.GetSubmissions(ctx, documentID)
	if err != nil {
		return Status{}, err
	}

	if len(submissions) == 0 {
		return Status{DocumentID: documentID, StillPending: true}, nil
	}

	latest := submissions[0]
	status := Status{DocumentID: documentID}
	switch strings.ToUpper(latest.Status) {
	case "ACTIVE", "COMPLETED":
		status.Completed = true
		if signedAt, parseErr := time.Parse("2006-01-02 15:04:05", latest.CreatedAt); parseErr == nil {
			signedAt = signedAt.UTC()
			status.SignedAt = &signedAt
		}
		status.SignedDocumentURL = signedDocumentURL(latest)
	default:
		status.StillPending = true
	}

	return status, nil
}

// signedDocumentURL extracts the PDF link from whichever answer field is typed
// as a file output, falling back to the predictable pdf-submission URL.
func signedDocumentURL(submission JotFormSubmission) string {
	for _, answer := range submission.Answers {
		if !isFileAnswer(answer.Type) || len(answer.Answer) == 0 {
			continue
		}

		var single string
		if err := json.Unmarshal(answer.Answer, &single); err == nil && single != "" {
			return single
		}

		var many []string
		if err := json.Unmarshal(answer.Answer, &many); err == nil && len(many) > 0 && many[0] != "" {
			return many[0]
		}
	}

	return jotFormPDFURLPattern + "/" + submission.ID
}

func isFileAnswer(answerType string) bool {
	switch answerType {
	case "control_fileupload", "control_signature":
		return true
	default:
		return false
	}
}

func (a *JotFormAdapter) ListDocuments(ctx context.Context, page, pageSize int) (DocumentPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	forms, err := a.GetForms(ctx)
	if err != nil {
		return DocumentPage{}, err
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(forms) {
		start = len(forms)
	}
	if end > len(forms) {
		end = len(forms)
	}

	documents := make([]DocumentSummary, 0, end-start)
	for _, form := range forms[start:end] {
		documents = append(documents, DocumentSummary{
			ID:     form.ID,
			Title:  form.Title,
			Status: form.Status,
		})
	}

	return DocumentPage{Documents: documents, TotalCount: len(forms)}, nil
}

type jotFormEnvelope struct {
	ResponseCode int             `json:"responseCode"`
	Message      string          `json:"message"`
	Content      json.RawMessage `json:"content"`
}

func (a *JotFormAdapter) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", a.apiKey)

	endpoint := a.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build jotform request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("call jotform: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read jotform response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{Provider: KindJotForm, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var envelope jotFormEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode jotform envelope: %w", err)
	}
	if envelope.ResponseCode != 0 && envelope.ResponseCode != http.StatusOK {
		return &ProviderError{Provider: KindJotForm, StatusCode: envelope.ResponseCode, Body: envelope.Message}
	}

	if out != nil && len(envelope.Content) > 0 {
		if err := json.Unmarshal(envelope.Content, out); err != nil {
			return fmt.Errorf("decode jotform content: %w", err)
		}
	}

	return nil
}
