package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumacare/backoffice/domains/signatures/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and
// early development. It enforces the same lifecycle guard as the postgres
// implementation.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]service.SignatureRequest
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.SignatureRequest)}
}

func (r *MemoryRepository) Create(ctx context.Context, request service.SignatureRequest) (service.SignatureRequest, error) {
	if request.AgencyID == uuid.Nil {
		return service.SignatureRequest{}, fmt.Errorf("agency id is required")
	}
	if len(request.Recipients) == 0 {
		return service.SignatureRequest{}, fmt.Errorf("recipients must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	r.byID[request.ID] = request
	return request, nil
}

func (r *MemoryRepository) Get(ctx context.Context, agencyID, id uuid.UUID) (service.SignatureRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	request, ok := r.byID[id]
	if !ok || request.AgencyID != agencyID {
		return service.SignatureRequest{}, service.ErrRequestNotFound
	}
	return request, nil
}

func (r *MemoryRepository) List(ctx context.Context, agencyID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.SignatureRequest, 0)
	for _, request := range r.byID {
		if request.AgencyID == agencyID {
			items = append(items, request)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedDate.After(items[j].CreatedDate) })

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	return service.ListResult{
		Items:      items[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(items),
		TotalPages: (len(items) + pageSize - 1) / pageSize,
	}, nil
}

func (r *MemoryRepository) Update(ctx context.Context, agencyID, id uuid.UUID, patch service.UpdatePatch) (service.SignatureRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.byID[id]
	if !ok || request.AgencyID != agencyID {
		return service.SignatureRequest{}, service.ErrRequestNotFound
	}

	if patch.Status != nil && *patch.Status != request.Status {
		if !request.Status.CanTransitionTo(*patch.Status) {
			return service.SignatureRequest{}, fmt.Errorf("%w: %s -> %s", service.ErrIllegalTransition, request.Status, *patch.Status)
		}
		request.Status = *patch.Status
	}
	if patch.SignedDate != nil {
		request.SignedDate = patch.SignedDate
	}
	if patch.SignedDocumentURL != nil && *patch.SignedDocumentURL != "" {
		request.SignedDocumentURL = *patch.SignedDocumentURL
	}
	if patch.Metadata != nil {
		request.Metadata = patch.Metadata
	}
	request.UpdatedDate = time.Now().UTC()

	r.byID[id] = request
	return request, nil
}

func (r *MemoryRepository) DeleteByAgency(ctx context.Context, agencyID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, request := range r.byID {
		if request.AgencyID == agencyID {
			delete(r.byID, id)
			deleted++
		}
	}
	return deleted, nil
}
