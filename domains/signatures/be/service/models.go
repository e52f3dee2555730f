package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumacare/backoffice/domains/signatures/be/provider"
)

// Status is the lifecycle state of a signature request.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusViewed    Status = "viewed"
	StatusSigned    Status = "signed"
	StatusCompleted Status = "completed"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
)

// ParseStatus validates a stored or client-supplied status string.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusDraft, StatusSent, StatusViewed, StatusSigned, StatusCompleted, StatusDeclined, StatusExpired:
		return Status(value), nil
	default:
		return "", fmt.Errorf("unknown signature request status %q", value)
	}
}

// statusTransitions is the legal state graph. viewed, declined and expired are
// only ever written by an inbound provider event integration; the pull-based
// synchronizer writes completed exclusively.
var statusTransitions = map[Status][]Status{
	StatusDraft:  {StatusSent},
	StatusSent:   {StatusViewed, StatusSigned, StatusDeclined, StatusExpired, StatusCompleted},
	StatusViewed: {StatusSigned, StatusDeclined, StatusExpired, StatusCompleted},
}

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSigned, StatusCompleted, StatusDeclined, StatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is legal. A
// same-status write is treated as a no-op by the store, not a transition.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Recipient is one signing party attached to a request, in signing order.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SignerRole is the ephemeral role assignment produced at composition time; it
// becomes part of Recipients on submission.
type SignerRole struct {
	RoleName    string
	SignerName  string
	SignerEmail string
}

// SignatureRequest is one signing transaction owned by exactly one agency.
type SignatureRequest struct {
	ID                 uuid.UUID
	AgencyID           uuid.UUID
	Title              string
	CustomMessage      string
	Provider           provider.Kind
	ExternalRequestID  string
	ExternalDocumentID string
	Recipients         []Recipient
	Status             Status
	SentDate           *time.Time
	SignedDate         *time.Time
	SignatureURL       string
	SignedDocumentURL  string
	RelatedEntityType  string
	RelatedEntityID    string
	Metadata           map[string]any
	CreatedDate        time.Time
	UpdatedDate        time.Time
}

// Domain-level errors surfaced by the service and its repositories.
var (
	ErrRequestNotFound   = errors.New("signature request not found")
	ErrIllegalTransition = errors.New("illegal signature request status transition")
)

// ValidationError captures a client input problem scoped to a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RoleMismatchError signals more signers were supplied than the selected
// template declares roles.
type RoleMismatchError struct {
	Declared int
	Supplied int
}

func (e *RoleMismatchError) Error() string {
	return fmt.Sprintf("template declares %d signer roles but %d signers were supplied", e.Declared, e.Supplied)
}

// ListOptions defines pagination inputs for request listings.
type ListOptions struct {
	Page     int
	PageSize int
}

// ListResult contains paginated requests and metadata.
type ListResult struct {
	Items      []SignatureRequest
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// UpdatePatch applies a partial update to a stored request. Nil fields are
// left untouched.
type UpdatePatch struct {
	Status            *Status
	SignedDate        *time.Time
	SignedDocumentURL *string
	Metadata          map[string]any
}

// Repository persists signature requests. Every method requires the owning
// agency id, which makes cross-tenant reads structurally impossible rather
// than filtered by convention.
type Repository interface {
	Create(ctx context.Context, request SignatureRequest) (SignatureRequest, error)
	Get(ctx context.Context, agencyID, id uuid.UUID) (SignatureRequest, error)
	List(ctx context.Context, agencyID uuid.UUID, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, agencyID, id uuid.UUID, patch UpdatePatch) (SignatureRequest, error)
	DeleteByAgency(ctx context.Context, agencyID uuid.UUID) (int64, error)
}
