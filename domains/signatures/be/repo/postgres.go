// Package repo persists signature requests. Both implementations enforce the
// documented lifecycle graph in their update path and require the owning
// agency id on every operation.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumacare/backoffice/domains/signatures/be/provider"
	"github.com/lumacare/backoffice/domains/signatures/be/service"
)

const signatureRequestColumns = `
	id, agency_id, title, custom_message, provider,
	external_request_id, external_document_id, recipients, status,
	sent_date, signed_date, signature_url, signed_document_url,
	related_entity_type, related_entity_id, metadata,
	created_date, updated_date`

// PostgresRepository stores signature requests in the signature_requests table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs a repository backed by the shared pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("pgx pool is required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, request service.SignatureRequest) (service.SignatureRequest, error) {
	if request.AgencyID == uuid.Nil {
		return service.SignatureRequest{}, errors.New("agency id is required")
	}
	if len(request.Recipients) == 0 {
		return service.SignatureRequest{}, errors.New("recipients must not be empty")
	}

	recipients, err := json.Marshal(request.Recipients)
	if err != nil {
		return service.SignatureRequest{}, fmt.Errorf("encode recipients: %w", err)
	}
	metadata, err := marshalMetadata(request.Metadata)
	if err != nil {
		return service.SignatureRequest{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO signature_requests (
			id, agency_id, title, custom_message, provider,
			external_request_id, external_document_id, recipients, status,
			sent_date, signed_date, signature_url, signed_document_url,
			related_entity_type, related_entity_id, metadata,
			created_date, updated_date
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW()
		)
		RETURNING `+signatureRequestColumns,
		request.ID, request.AgencyID, request.Title, request.CustomMessage, string(request.Provider),
		request.ExternalRequestID, nullable(request.ExternalDocumentID), recipients, string(request.Status),
		request.SentDate, request.SignedDate, nullable(request.SignatureURL), nullable(request.SignedDocumentURL),
		nullable(request.RelatedEntityType), nullable(request.RelatedEntityID), metadata,
	)

	created, err := scanRequest(row)
	if err != nil {
		return service.SignatureRequest{}, fmt.Errorf("insert signature request: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, agencyID, id uuid.UUID) (service.SignatureRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+signatureRequestColumns+`
		FROM signature_requests
		WHERE agency_id = $1 AND id = $2
	`, agencyID, id)

	request, err := scanRequest(row)
	switch {
	case err == nil:
		return request, nil
	case errors.Is(err, pgx.ErrNoRows):
		return service.SignatureRequest{}, service.ErrRequestNotFound
	default:
		return service.SignatureRequest{}, fmt.Errorf("read signature request: %w", err)
	}
}

func (r *PostgresRepository) List(ctx context.Context, agencyID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM signature_requests WHERE agency_id = $1
	`, agencyID).Scan(&total); err != nil {
		return service.ListResult{}, fmt.Errorf("count signature requests: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+signatureRequestColumns+`
		FROM signature_requests
		WHERE agency_id = $1
		ORDER BY created_date DESC
		LIMIT $2 OFFSET $3
	`, agencyID, pageSize, offset)
	if err != nil {
		return service.ListResult{}, fmt.Errorf("list signature requests: %w", err)
	}
	defer rows.Close()

	items := make([]service.SignatureRequest, 0, pageSize)
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return service.ListResult{}, fmt.Errorf("scan signature request: %w", err)
		}
		items = append(items, request)
	}
	if err := rows.Err(); err != nil {
		return service.ListResult{}, fmt.Errorf("iterate signature requests: %w", err)
	}

	return service.ListResult{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// Update applies a partial update inside a transaction. The current status is
// read with a row lock and the requested transition is checked against the
// lifecycle graph; an illegal transition is rejected, a same-status write is
// accepted as a no-op of the status column.
func (r *PostgresRepository) Update(ctx context.Context, agencyID, id uuid.UUID, patch service.UpdatePatch) (service.SignatureRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return service.SignatureRequest{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var currentRaw string
	err = tx.QueryRow(ctx, `
		SELECT status FROM signature_requests
		WHERE agency_id = $1 AND id = $2
		FOR UPDATE
	`, agencyID, id).Scan(&currentRaw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return service.SignatureRequest{}, service.ErrRequestNotFound
	case err != nil:
		return service.SignatureRequest{}, fmt.Errorf("lock signature request: %w", err)
	}

	current, err := service.ParseStatus(currentRaw)
	if err != nil {
		return service.SignatureRequest{}, fmt.Errorf("stored status invalid: %w", err)
	}

	next := current
	if patch.Status != nil && *patch.Status != current {
		if !current.CanTransitionTo(*patch.Status) {
			return service.SignatureRequest{}, fmt.Errorf("%w: %s -> %s", service.ErrIllegalTransition, current, *patch.Status)
		}
		next = *patch.Status
	}

	metadata, err := marshalMetadata(patch.Metadata)
	if err != nil {
		return service.SignatureRequest{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE signature_requests SET
			status = $3,
			signed_date = COALESCE($4, signed_date),
			signed_document_url = COALESCE($5, signed_document_url),
			metadata = COALESCE($6, metadata),
			updated_date = NOW()
		WHERE agency_id = $1 AND id = $2
		RETURNING `+signatureRequestColumns,
		agencyID, id, string(next), patch.SignedDate, patch.SignedDocumentURL, nullableJSON(patch.Metadata, metadata),
	)

	updated, err := scanRequest(row)
	if err != nil {
		return service.SignatureRequest{}, fmt.Errorf("update signature request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return service.SignatureRequest{}, fmt.Errorf("commit update tx: %w", err)
	}

	return updated, nil
}

// DeleteByAgency removes every request owned by the agency and reports the
// number of rows deleted. This is the explicit tenant-initiated bulk cleanup;
// single rows are never deleted.
func (r *PostgresRepository) DeleteByAgency(ctx context.Context, agencyID uuid.UUID) (int64, error) {
	if agencyID == uuid.Nil {
		return 0, errors.New("agency id is required")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM signature_requests WHERE agency_id = $1`, agencyID)
	if err != nil {
		return 0, fmt.Errorf("delete signature requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRequest(row pgx.Row) (service.SignatureRequest, error) {
	var (
		request            service.SignatureRequest
		providerRaw        string
		statusRaw          string
		externalDocumentID *string
		signatureURL       *string
		signedDocumentURL  *string
		relatedEntityType  *string
		relatedEntityID    *string
		recipientsRaw      []byte
		metadataRaw        []byte
	)

	if err := row.Scan(
		&request.ID, &request.AgencyID, &request.Title, &request.CustomMessage, &providerRaw,
		&request.ExternalRequestID, &externalDocumentID, &recipientsRaw, &statusRaw,
		&request.SentDate, &request.SignedDate, &signatureURL, &signedDocumentURL,
		&relatedEntityType, &relatedEntityID, &metadataRaw,
		&request.CreatedDate, &request.UpdatedDate,
	); err != nil {
		return service.SignatureRequest{}, err
	}

	status, err := service.ParseStatus(statusRaw)
	if err != nil {
		return service.SignatureRequest{}, err
	}
	request.Status = status
	request.Provider = provider.Kind(providerRaw)
	request.ExternalDocumentID = deref(externalDocumentID)
	request.SignatureURL = deref(signatureURL)
	request.SignedDocumentURL = deref(signedDocumentURL)
	request.RelatedEntityType = deref(relatedEntityType)
	request.RelatedEntityID = deref(relatedEntityID)

	if len(recipientsRaw) > 0 {
		if err := json.Unmarshal(recipientsRaw, &request.Recipients); err != nil {
			return service.SignatureRequest{}, fmt.Errorf("decode recipients: %w", err)
		}
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &request.Metadata); err != nil {
			return service.SignatureRequest{}, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return request, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return encoded, nil
}

func nullableJSON(metadata map[string]any, encoded []byte) any {
	if metadata == nil {
		return nil
	}
	return encoded
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
