package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBoldSignBaseURL = "https://api.boldsign.com/v1"

// Placeholder identity injected when a template declares more roles than the
// caller supplied signers. BoldSign rejects sends with unfilled roles, so the
// remainder is padded with a fixed synthetic signer.
const (
	PlaceholderSignerName  = "Additional Signer"
	PlaceholderSignerEmail = "placeholder@lumacare.app"
)

// boldSignAdapter talks to the BoldSign REST API. Authentication is an API-key
// header; templates expose a fixed, ordered list of named roles.
type boldSignAdapter struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	maxRetries uint64
}

func newBoldSignAdapter(apiKey string, cfg options) *boldSignAdapter {
	baseURL := cfg.baseURL
	if baseURL == "" {
		baseURL = defaultBoldSignBaseURL
	}

	return &boldSignAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     cfg.httpClient,
		maxRetries: cfg.maxRetries,
	}
}

func (a *boldSignAdapter) Name() Kind { return KindBoldSign }

type boldSignTemplateRole struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type boldSignTemplateRow struct {
	DocumentID   string                 `json:"documentId"`
	TemplateName string                 `json:"templateName"`
	Roles        []boldSignTemplateRole `json:"roles"`
}

type boldSignTemplateList struct {
	Result []boldSignTemplateRow `json:"result"`
}

func (a *boldSignAdapter) ListTemplates(ctx context.Context) ([]TemplateSummary, error) {
	var payload boldSignTemplateList
	err := retryIdempotent(ctx, a.maxRetries, func() error {
		return a.doJSON(ctx, http.MethodGet, a.baseURL+"/template/list?Page=1&PageSize=100", nil, &payload)
	})
	if err != nil {
		return nil, err
	}

	templates := make([]TemplateSummary, 0, len(payload.Result))
	for _, row := range payload.Result {
		roles := make([]string, 0, len(row.Roles))
		for _, role := range row.Roles {
			roles = append(roles, role.Name)
		}
		templates = append(templates, TemplateSummary{
			ID:    row.DocumentID,
			Name:  row.TemplateName,
			Roles: roles,
		})
	}

	return templates, nil
}

type boldSignSendRole struct {
	RoleIndex   int    `json:"roleIndex"`
	SignerName  string `json:"signerName"`
	SignerEmail string `json:"signerEmail"`
	SignerType  string `json:"signerType"`
}

type boldSignSendBody struct {
	Title   string             `json:"title"`
	Message string             `json:"message"`
	Roles   []boldSignSendRole `json:"roles"`
}

type boldSignSendResponse struct {
	DocumentID   string            `json:"documentId"`
	SigningLinks map[string]string `json:"signingLinks"`
}

// sendStrategy is one discrete, typed attempt in the send cascade.
type sendStrategy struct {
	name string
	fn   func(ctx context.Context, params SendParams) (SendResult, error)
}

// Send dispatches a signing request. The target id is tried as a reusable
// template first; when BoldSign reports it as a completed document instead,
// a direct document-based send is attempted. Failure of both raises
// NotAReusableTemplateError carrying the original id. Send is performed
// exactly once per strategy; it is never wrapped in a retry.
func (a *boldSignAdapter) Send(ctx context.Context, params SendParams) (SendResult, error) {
	if params.DocumentID == "" {
		return SendResult{}, errors.New("document id is required")
	}

	strategies := []sendStrategy{
		{name: "template-send", fn: a.sendFromTemplate},
		{name: "document-send", fn: a.sendFromDocument},
	}

	var attempts []string
	for i, strategy := range strategies {
		result, err := strategy.fn(ctx, params)
		if err == nil {
			return result, nil
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", strategy.name, err))

		// Only a completed-document rejection moves the cascade forward; any
		// other failure from the first strategy is surfaced as-is.
		if i == 0 && !indicatesCompletedDocument(err) {
			return SendResult{}, err
		}
	}

	return SendResult{}, &NotAReusableTemplateError{
		DocumentID: params.DocumentID,
		Hint:       "the id refers to a completed document; create a reusable template in BoldSign and send from that instead",
		Attempts:   attempts,
	}
}

func (a *boldSignAdapter) sendFromTemplate(ctx context.Context, params SendParams) (SendResult, error) {
	endpoint := a.baseURL + "/template/send?templateId=" + url.QueryEscape(params.DocumentID)
	return a.dispatch(ctx, endpoint, params)
}

func (a *boldSignAdapter) sendFromDocument(ctx context.Context, params SendParams) (SendResult, error) {
	endpoint := a.baseURL + "/document/send?documentId=" + url.QueryEscape(params.DocumentID)
	return a.dispatch(ctx, endpoint, params)
}

func (a *boldSignAdapter) dispatch(ctx context.Context, endpoint string, params SendParams) (SendResult, error) {
	body := boldSignSendBody{
		Title:   params.Title,
		Message: params.Message,
		Roles:   fillRoles(params.TemplateRoles, params.Signers),
	}

	var resp boldSignSendResponse
	if err := a.doJSON(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return SendResult{}, err
	}

	return SendResult{
		ExternalDocumentID: resp.DocumentID,
		SigningLinks:       resp.SigningLinks,
		Metadata: map[string]any{
			"boldsignDocumentId": resp.DocumentID,
		},
	}, nil
}

// fillRoles maps signers positionally onto the template's ordered roles. When
// a template declares more roles than signers were supplied, the remaining
// roles are filled with the fixed placeholder signer.
func fillRoles(templateRoles []string, signers []Signer) []boldSignSendRole {
	count := len(templateRoles)
	if count == 0 {
		count = len(signers)
	}

	roles := make([]boldSignSendRole, 0, count)
	for i := 0; i < count; i++ {
		role := boldSignSendRole{RoleIndex: i + 1, SignerType: "Signer"}
		if i < len(signers) {
			role.SignerName = signers[i].Name
			role.SignerEmail = signers[i].Email
		} else {
			role.SignerName = PlaceholderSignerName
			role.SignerEmail = PlaceholderSignerEmail
		}
		roles = append(roles, role)
	}

	return roles
}

// indicatesCompletedDocument recognizes BoldSign's rejection of a send against
// an id that belongs to a finished document rather than a reusable template.
func indicatesCompletedDocument(err error) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}
	if providerErr.StatusCode < 400 || providerErr.StatusCode >= 500 {
		return false
	}

	body := strings.ToLower(providerErr.Body)
	return strings.Contains(body, "completed") || strings.Contains(body, "not a template")
}

type boldSignDocumentResponse struct {
	DocumentID        string     `json:"documentId"`
	Status            string     `json:"status"`
	CompletedDate     *time.Time `json:"completedDate"`
	SignedDocumentURL string     `json:"signedDocumentUrl"`
}

func (a *boldSignAdapter) GetStatus(ctx context.Context, documentID string) (Status, error) {
	if documentID == "" {
		return Status{}, errors.New("document id is required")
	}

	var resp boldSignDocumentResponse
	err := retryIdempotent(ctx, a.maxRetries, func() error {
		return a.doJSON(ctx, http.MethodGet, a.baseURL+"/document/"+url.PathEscape(documentID), nil, &resp)
	})
	if err != nil {
		return Status{}, err
	}

	status := Status{DocumentID: documentID}
	if strings.EqualFold(resp.Status, "Completed") {
		status.Completed = true
		status.SignedAt = resp.CompletedDate
		status.SignedDocumentURL = resp.SignedDocumentURL
	} else {
		status.StillPending = true
	}

	return status, nil
}

type boldSignDocumentRow struct {
	DocumentID   string `json:"documentId"`
	MessageTitle string `json:"messageTitle"`
	Status       string `json:"status"`
	CreatedDate  int64  `json:"createdDate"`
}

type boldSignDocumentList struct {
	Result      []boldSignDocumentRow `json:"result"`
	PageDetails struct {
		TotalRecordsCount int `json:"totalRecordsCount"`
	} `json:"pageDetails"`
}

func (a *boldSignAdapter) ListDocuments(ctx context.Context, page, pageSize int) (DocumentPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	endpoint := fmt.Sprintf("%s/document/list?Page=%d&PageSize=%d", a.baseURL, page, pageSize)

	var payload boldSignDocumentList
	err := retryIdempotent(ctx, a.maxRetries, func() error {
		return a.doJSON(ctx, http.MethodGet, endpoint, nil, &payload)
	})
	if err != nil {
		return DocumentPage{}, err
	}

	documents := make([]DocumentSummary, 0, len(payload.Result))
	for _, row := range payload.Result {
		documents = append(documents, DocumentSummary{
			ID:        row.DocumentID,
			Title:     row.MessageTitle,
			Status:    row.Status,
			CreatedAt: time.Unix(row.CreatedDate, 0).UTC(),
		})
	}

	return DocumentPage{Documents: documents, TotalCount: payload.PageDetails.TotalRecordsCount}, nil
}

func (a *boldSignAdapter) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode boldsign request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build boldsign request: %w", err)
	}
	req.Header.Set("X-API-KEY", a.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("call boldsign: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read boldsign response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{Provider: KindBoldSign, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode boldsign response: %w", err)
		}
	}

	return nil
}
