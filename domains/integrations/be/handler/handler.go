package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	sigconfig "github.com/lumacare/backoffice/domains/signatures/be/config"
	"github.com/lumacare/backoffice/domains/signatures/be/notify"
	"github.com/lumacare/backoffice/domains/signatures/be/provider"
	"github.com/lumacare/backoffice/platform/go/httpx"
	"github.com/lumacare/backoffice/platform/go/tenant"
)

// JotForm actions accepted by the integration dispatch endpoint.
const (
	ActionGetForms             = "getForms"
	ActionGetForm              = "getForm"
	ActionGetSubmissions       = "getSubmissions"
	ActionSendSignatureRequest = "sendSignatureRequest"

	ActionSendEmail = "sendEmail"
)

// Handler exposes the raw third-party integration endpoints. Unlike the
// signatures surface these do not touch the request store: they proxy
// tenant-credentialed calls for the settings and document screens.
type Handler struct {
	source        *sigconfig.Source
	resolver      *sigconfig.Resolver
	mailerFactory notify.MailerFactory
	logger        *zap.Logger
}

// New constructs a Handler instance.
func New(source *sigconfig.Source, resolver *sigconfig.Resolver, factory notify.MailerFactory, logger *zap.Logger) *Handler {
	if source == nil {
		panic("adapter source is required")
	}
	if resolver == nil {
		panic("config resolver is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if factory == nil {
		factory = notify.NewResendMailer
	}

	return &Handler{source: source, resolver: resolver, mailerFactory: factory, logger: logger}
}

// Routes registers the integration dispatch endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/integrations/jotform", h.jotForm)
	r.Post("/integrations/resend", h.resend)
}

type jotFormRequest struct {
	Action  string             `json:"action"`
	FormID  string             `json:"form_id,omitempty"`
	Title   string             `json:"title,omitempty"`
	Message string             `json:"message,omitempty"`
	Signers []recipientPayload `json:"signers,omitempty"`
}

type recipientPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type jotFormAction func(ctx context.Context, adapter *provider.JotFormAdapter, body jotFormRequest) (any, error)

var jotFormActions = map[string]jotFormAction{
	ActionGetForms: func(ctx context.Context, adapter *provider.JotFormAdapter, _ jotFormRequest) (any, error) {
		forms, err := adapter.GetForms(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"forms": forms}, nil
	},
	ActionGetForm: func(ctx context.Context, adapter *provider.JotFormAdapter, body jotFormRequest) (any, error) {
		if body.FormID == "" {
			return nil, &fieldError{field: "form_id", reason: "form id is required"}
		}
		form, err := adapter.GetForm(ctx, body.FormID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"form": form}, nil
	},
	ActionGetSubmissions: func(ctx context.Context, adapter *provider.JotFormAdapter, body jotFormRequest) (any, error) {
		if body.FormID == "" {
			return nil, &fieldError{field: "form_id", reason: "form id is required"}
		}
		submissions, err := adapter.GetSubmissions(ctx, body.FormID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"submissions": submissions}, nil
	},
	ActionSendSignatureRequest: func(ctx context.Context, adapter *provider.JotFormAdapter, body jotFormRequest) (any, error) {
		if body.FormID == "" {
			return nil, &fieldError{field: "form_id", reason: "form id is required"}
		}
		signers := make([]provider.Signer, 0, len(body.Signers))
		for _, signer := range body.Signers {
			signers = append(signers, provider.Signer{Name: signer.Name, Email: signer.Email, Role: signer.Role})
		}
		result, err := adapter.Send(ctx, provider.SendParams{
			DocumentID: body.FormID,
			Title:      body.Title,
			Message:    body.Message,
			Signers:    signers,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"formUrl": result.FormURL}, nil
	},
}

func (h *Handler) jotForm(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	var body jotFormRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	action, ok := jotFormActions[body.Action]
	if !ok {
		httpx.WriteFieldError(w, "action", "unsupported action")
		return
	}

	adapter, err := h.source.JotForm(r.Context(), scope.AgencyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	payload, err := action(r.Context(), adapter, body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, payload)
}

type resendRequest struct {
	Action  string   `json:"action"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (h *Handler) resend(w http.ResponseWriter, r *http.Request) {
	scope, ok := tenant.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "agency scope missing")
		return
	}

	var body resendRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if body.Action != ActionSendEmail {
		httpx.WriteFieldError(w, "action", "unsupported action")
		return
	}
	if len(body.To) == 0 {
		httpx.WriteFieldError(w, "to", "at least one recipient is required")
		return
	}
	if body.Subject == "" {
		httpx.WriteFieldError(w, "subject", "subject is required")
		return
	}

	sender, err := h.resolver.EmailSender(r.Context(), scope.AgencyID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	mailer := h.mailerFactory(sender.APIKey)
	messageIDs := make([]string, 0, len(body.To))
	for _, to := range body.To {
		messageID, err := mailer.Send(r.Context(), notify.Email{
			From:    sender.From,
			To:      to,
			Subject: body.Subject,
			HTML:    body.HTML,
		})
		if err != nil {
			h.logger.Error("resend dispatch", zap.Error(err))
			httpx.WriteError(w, http.StatusBadGateway, "provider_rejected", err.Error())
			return
		}
		messageIDs = append(messageIDs, messageID)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string][]string{"message_ids": messageIDs})
}

type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string { return e.field + ": " + e.reason }

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var fieldErr *fieldError
	if errors.As(err, &fieldErr) {
		httpx.WriteFieldError(w, fieldErr.field, fieldErr.reason)
		return
	}

	var providerErr *provider.ProviderError
	if errors.As(err, &providerErr) {
		httpx.WriteError(w, http.StatusBadGateway, "provider_rejected", providerErr.Error())
		return
	}

	if errors.Is(err, provider.ErrNotConfigured) {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "not_configured", err.Error())
		return
	}

	h.logger.Error("integrations handler", zap.Error(err))
	httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
}
