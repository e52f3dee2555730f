package service

import (
	"context"

	"github.com/google/uuid"
)

// Sync pulls the external status for one request and reconciles the stored
// row. It is manually triggered: there is no inbound webhook, so completion is
// only ever observed by asking the provider.
//
// Sync is idempotent. A request already in a terminal state is returned
// unchanged without touching the provider, and a provider answer of "no
// submission yet" leaves the row untouched and reports StillPending.
func (s *service) Sync(ctx context.Context, agencyID, id uuid.UUID) (SyncResult, error) {
	request, err := s.repo.Get(ctx, agencyID, id)
	if err != nil {
		return SyncResult{}, err
	}

	if request.Status.Terminal() {
		return SyncResult{Request: request}, nil
	}

	adapter, err := s.source.Adapter(ctx, agencyID, request.Provider)
	if err != nil {
		return SyncResult{}, err
	}

	documentID := request.ExternalDocumentID
	if documentID == "" {
		documentID = request.ExternalRequestID
	}

	status, err := adapter.GetStatus(ctx, documentID)
	if err != nil {
		return SyncResult{}, err
	}

	if !status.Completed {
		return SyncResult{Request: request, StillPending: true}, nil
	}

	signedDate := status.SignedAt
	if signedDate == nil {
		now := s.now()
		signedDate = &now
	}

	completed := StatusCompleted
	updated, err := s.repo.Update(ctx, agencyID, id, UpdatePatch{
		Status:            &completed,
		SignedDate:        signedDate,
		SignedDocumentURL: &status.SignedDocumentURL,
	})
	if err != nil {
		return SyncResult{}, err
	}

	return SyncResult{Request: updated, Updated: true}, nil
}
