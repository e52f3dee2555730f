package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumacare/backoffice/domains/signatures/be/notify"
	"github.com/lumacare/backoffice/domains/signatures/be/provider"
	"github.com/lumacare/backoffice/domains/signatures/be/service"
	"github.com/lumacare/backoffice/platform/go/httpx"
	"github.com/lumacare/backoffice/platform/go/tenant"
)

// Handler exposes the signature request REST surface.
type Handler struct {
	svc    service.Service
	source service.AdapterSource
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, source service.AdapterSource, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("signatures service is required")
	}
	if source == nil {
		panic("adapter source is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, source: source, logger: logger}
}

// Routes registers the signature and BoldSign pass-through endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/signatures", h.createSignature)
	r.Get("/signatures", h.listSignatures)
	r.Get("/signatures/{id}", h.getSignature)
	r.Post("/signatures/{id}/sync", h.syncSignature)
	r.Delete("/signatures", h.purgeSignatures)

	r.Get("/boldsign/templates", h.listBoldSignTemplates)
	r.Post("/boldsign/send", h.boldSignSend)
	r.Get("/boldsign/documents", h.listBoldSignDocuments)
	r.Get("/boldsign/documents/{id}", h.getBoldSignDocument)
}

type recipientPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type createSignatureRequest struct {
	Title             string             `json:"title"`
	CustomMessage     string             `json:"custom_message"`
	Provider          string             `json:"provider"`
	ExternalRequestID string             `json:"external_request_id"`
	Recipients        []recipientPayload `json:"recipients"`
	Status            string             `json:"status,omitempty"`
	RelatedEntityType string             `json:"related_entity_type,omitempty"`
	RelatedEntityID   string             `json:"related_entity_id,omitempty"`
	// FormURL is accepted for legacy clients that resolved the form link
	// themselves; the adapter-returned URL is authoritative.
	FormURL string `json:"form_url,omitempty"`
}

type signatureRequestPayload struct {
	ID                 uuid.UUID          `json:"id"`
	Title              string             `json:"title"`
	CustomMessage      string             `json:"custom_message,omitempty"`
	Provider           string             `json:"provider"`
	ExternalRequestID  string             `json:"external_request_id"`
	ExternalDocumentID string             `json:"external_document_id,omitempty"`
	Recipients         []recipientPayload `json:"recipients"`
	Status             string             `json:"status"`
	SentDate           *time.Time         `json:"sent_date,omitempty"`
	SignedDate         *time.Time         `json:"signed_date,omitempty"`
	SignatureURL       string             `json:"signature_url,omitempty"`
	FormURL            string             `json:"formUrl,omitempty"`
	SignedDocumentURL  string             `json:"signed_document_url,omitempty"`
	RelatedEntityType  string             `json:"related_entity_type,omitempty"`
	RelatedEntityID    string             `json:"related_entity_id,omitempty"`
	CreatedDate        time.Time          `json:"created_date"`
	UpdatedDate        time.Time          `json:"updated_date"`
}

type createSignatureResponse struct {
	Requests      []signatureRequestPayload `json:"requests"`
	Notifications []notify.Outcome          `json:"notifications,omitempty"`
}

func (h *Handler) createSignature(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	var body createSignatureRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	recipients := make([]service.RecipientInput, 0, len(body.Recipients))
	for _, recipient := range body.Recipients {
		recipients = append(recipients, service.RecipientInput{Name: recipient.Name, Email: recipient.Email, Role: recipient.Role})
	}

	result, err := h.svc.Create(r.Context(), scope.AgencyID, service.CreateInput{
		Title:             body.Title,
		CustomMessage:     body.CustomMessage,
		Provider:          body.Provider,
		ExternalRequestID: body.ExternalRequestID,
		Recipients:        recipients,
		Status:            body.Status,
		RelatedEntityType: body.RelatedEntityType,
		RelatedEntityID:   body.RelatedEntityID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	payloads := make([]signatureRequestPayload, 0, len(result.Requests))
	for _, request := range result.Requests {
		payloads = append(payloads, toPayload(request))
	}

	httpx.WriteJSON(w, http.StatusCreated, createSignatureResponse{
		Requests:      payloads,
		Notifications: result.Notifications,
	})
}

type listSignaturesResponse struct {
	Items      []signatureRequestPayload `json:"items"`
	Page       int                       `json:"page"`
	PageSize   int                       `json:"page_size"`
	TotalItems int                       `json:"total_items"`
	TotalPages int                       `json:"total_pages"`
}

func (h *Handler) listSignatures(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	result, err := h.svc.List(r.Context(), scope.AgencyID, service.ListOptions{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	items := make([]signatureRequestPayload, 0, len(result.Items))
	for _, request := range result.Items {
		items = append(items, toPayload(request))
	}

	httpx.WriteJSON(w, http.StatusOK, listSignaturesResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) getSignature(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteFieldError(w, "id", "must be a valid uuid")
		return
	}

	request, err := h.svc.Get(r.Context(), scope.AgencyID, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toPayload(request))
}

type syncResponse struct {
	Request      signatureRequestPayload `json:"request"`
	Updated      bool                    `json:"updated"`
	StillPending bool                    `json:"still_pending"`
}

func (h *Handler) syncSignature(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteFieldError(w, "id", "must be a valid uuid")
		return
	}

	result, err := h.svc.Sync(r.Context(), scope.AgencyID, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, syncResponse{
		Request:      toPayload(result.Request),
		Updated:      result.Updated,
		StillPending: result.StillPending,
	})
}

func (h *Handler) purgeSignatures(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	deleted, err := h.svc.Purge(r.Context(), scope.AgencyID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

type templatePayload struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (h *Handler) listBoldSignTemplates(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	templates, err := h.svc.Templates(r.Context(), scope.AgencyID, provider.KindBoldSign)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	payload := make([]templatePayload, 0, len(templates))
	for _, template := range templates {
		payload = append(payload, templatePayload{ID: template.ID, Name: template.Name, Roles: template.Roles})
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"templates": payload})
}

type boldSignSendRequest struct {
	DocumentID string             `json:"document_id"`
	Title      string             `json:"title"`
	Message    string             `json:"message,omitempty"`
	Signers    []recipientPayload `json:"signers"`
}

// boldSignSend is the raw adapter pass-through: it dispatches without creating
// a stored request. The composed POST /signatures path is preferred; this
// endpoint backs the document-centric screens.
func (h *Handler) boldSignSend(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	var body boldSignSendRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if body.DocumentID == "" {
		httpx.WriteFieldError(w, "document_id", "document id is required")
		return
	}

	adapter, err := h.source.Adapter(r.Context(), scope.AgencyID, provider.KindBoldSign)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	signers := make([]provider.Signer, 0, len(body.Signers))
	for _, signer := range body.Signers {
		signers = append(signers, provider.Signer{Name: signer.Name, Email: signer.Email, Role: signer.Role})
	}

	result, err := adapter.Send(r.Context(), provider.SendParams{
		DocumentID: body.DocumentID,
		Title:      body.Title,
		Message:    body.Message,
		Signers:    signers,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"external_document_id": result.ExternalDocumentID,
		"signing_links":        result.SigningLinks,
	})
}

func (h *Handler) listBoldSignDocuments(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	adapter, err := h.source.Adapter(r.Context(), scope.AgencyID, provider.KindBoldSign)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	page, err := adapter.ListDocuments(r.Context(), queryInt(r, "page", 1), queryInt(r, "page_size", 20))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"documents":   page.Documents,
		"total_count": page.TotalCount,
	})
}

func (h *Handler) getBoldSignDocument(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		httpx.WriteFieldError(w, "id", "document id is required")
		return
	}

	adapter, err := h.source.Adapter(r.Context(), scope.AgencyID, provider.KindBoldSign)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status, err := adapter.GetStatus(r.Context(), documentID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"document_id":         status.DocumentID,
		"completed":           status.Completed,
		"still_pending":       status.StillPending,
		"signed_at":           status.SignedAt,
		"signed_document_url": status.SignedDocumentURL,
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		httpx.WriteFieldError(w, validationErr.Field, validationErr.Reason)
		return
	}

	var roleErr *service.RoleMismatchError
	if errors.As(err, &roleErr) {
		httpx.WriteError(w, http.StatusBadRequest, "role_mismatch", roleErr.Error())
		return
	}

	var templateErr *provider.NotAReusableTemplateError
	if errors.As(err, &templateErr) {
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]any{
				"code":        "not_a_reusable_template",
				"message":     templateErr.Error(),
				"document_id": templateErr.DocumentID,
				"hint":        templateErr.Hint,
			},
		})
		return
	}

	var providerErr *provider.ProviderError
	if errors.As(err, &providerErr) {
		httpx.WriteError(w, http.StatusBadGateway, "provider_rejected", providerErr.Error())
		return
	}

	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "not_configured", err.Error())
	case errors.Is(err, service.ErrRequestNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "signature request not found")
	case errors.Is(err, service.ErrIllegalTransition):
		httpx.WriteError(w, http.StatusConflict, "illegal_transition", err.Error())
	default:
		h.logger.Error("signatures handler", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func toPayload(request service.SignatureRequest) signatureRequestPayload {
	recipients := make([]recipientPayload, 0, len(request.Recipients))
	for _, recipient := range request.Recipients {
		recipients = append(recipients, recipientPayload{Name: recipient.Name, Email: recipient.Email, Role: recipient.Role})
	}

	return signatureRequestPayload{
		ID:                 request.ID,
		Title:              request.Title,
		CustomMessage:      request.CustomMessage,
		Provider:           string(request.Provider),
		ExternalRequestID:  request.ExternalRequestID,
		ExternalDocumentID: request.ExternalDocumentID,
		Recipients:         recipients,
		Status:             string(request.Status),
		SentDate:           request.SentDate,
		SignedDate:         request.SignedDate,
		SignatureURL:       request.SignatureURL,
		FormURL:            request.SignatureURL,
		SignedDocumentURL:  request.SignedDocumentURL,
		RelatedEntityType:  request.RelatedEntityType,
		RelatedEntityID:    request.RelatedEntityID,
		CreatedDate:        request.CreatedDate,
		UpdatedDate:        request.UpdatedDate,
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
