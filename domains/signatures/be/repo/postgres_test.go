package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lumacare/backoffice/domains/signatures/be/provider"
	"github.com/lumacare/backoffice/domains/signatures/be/service"
	"github.com/lumacare/backoffice/platform/go/persistence"
)

func startPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping signature request repository integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lumacare"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	require.NoError(t, persistence.Bootstrap(ctx, pool))

	return NewPostgresRepository(pool)
}

func TestPostgresRepositoryLifecycle(t *testing.T) {
	t.Parallel()

	repo := startPostgres(t)
	ctx := context.Background()
	agencyID := uuid.New()

	sent := time.Now().UTC().Truncate(time.Millisecond)
	created, err := repo.Create(ctx, service.SignatureRequest{
		ID:                 uuid.New(),
		AgencyID:           agencyID,
		Title:              "Care Agreement",
		CustomMessage:      "Please sign by Friday.",
		Provider:           provider.KindBoldSign,
		ExternalRequestID:  "tpl-1",
		ExternalDocumentID: "doc-42",
		Recipients: []service.Recipient{
			{Name: "Ada Client", Email: "ada@example.com", Role: "Client"},
			{Name: "Grace Guardian", Email: "grace@example.com", Role: "Guardian"},
		},
		Status:   service.StatusSent,
		SentDate: &sent,
		Metadata: map[string]any{"boldsignDocumentId": "doc-42"},
	})
	require.NoError(t, err)
	require.Equal(t, service.StatusSent, created.Status)
	require.Len(t, created.Recipients, 2)
	require.Equal(t, "doc-42", created.ExternalDocumentID)
	require.NotNil(t, created.SentDate)
	require.False(t, created.CreatedDate.IsZero())

	fetched, err := repo.Get(ctx, agencyID, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)
	require.Equal(t, "Care Agreement", fetched.Title)
	require.Equal(t, "Guardian", fetched.Recipients[1].Role)
	require.Equal(t, "doc-42", fetched.Metadata["boldsignDocumentId"])

	completed := service.StatusCompleted
	signedAt := time.Now().UTC().Truncate(time.Millisecond)
	signedURL := "https://files.example/doc-42.pdf"
	updated, err := repo.Update(ctx, agencyID, created.ID, service.UpdatePatch{
		Status:            &completed,
		SignedDate:        &signedAt,
		SignedDocumentURL: &signedURL,
	})
	require.NoError(t, err)
	require.Equal(t, service.StatusCompleted, updated.Status)
	require.Equal(t, signedURL, updated.SignedDocumentURL)
	require.NotNil(t, updated.SignedDate)

	// Terminal rows refuse to move again.
	draft := service.StatusDraft
	_, err = repo.Update(ctx, agencyID, created.ID, service.UpdatePatch{Status: &draft})
	require.ErrorIs(t, err, service.ErrIllegalTransition)
}

func TestPostgresRepositoryAgencyIsolation(t *testing.T) {
	t.Parallel()

	repo := startPostgres(t)
	ctx := context.Background()

	agencyA := uuid.New()
	agencyB := uuid.New()

	created, err := repo.Create(ctx, service.SignatureRequest{
		ID:                uuid.New(),
		AgencyID:          agencyA,
		Title:             "Care Agreement",
		Provider:          provider.KindJotForm,
		ExternalRequestID: "form-7",
		Recipients:        []service.Recipient{{Name: "Ada Client", Email: "ada@example.com", Role: "Signer"}},
		Status:            service.StatusSent,
	})
	require.NoError(t, err)

	_, err = repo.Get(ctx, agencyB, created.ID)
	require.ErrorIs(t, err, service.ErrRequestNotFound)

	completed := service.StatusCompleted
	_, err = repo.Update(ctx, agencyB, created.ID, service.UpdatePatch{Status: &completed})
	require.ErrorIs(t, err, service.ErrRequestNotFound)

	deleted, err := repo.DeleteByAgency(ctx, agencyB)
	require.NoError(t, err)
	require.EqualValues(t, 0, deleted)

	deleted, err = repo.DeleteByAgency(ctx, agencyA)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func TestPostgresRepositoryListPagination(t *testing.T) {
	t.Parallel()

	repo := startPostgres(t)
	ctx := context.Background()
	agencyID := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, service.SignatureRequest{
			ID:                uuid.New(),
			AgencyID:          agencyID,
			Title:             "Care Agreement",
			Provider:          provider.KindBoldSign,
			ExternalRequestID: "tpl-1",
			Recipients:        []service.Recipient{{Name: "Ada Client", Email: "ada@example.com", Role: "Client"}},
			Status:            service.StatusDraft,
		})
		require.NoError(t, err)
	}

	result, err := repo.List(ctx, agencyID, service.ListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 5, result.TotalItems)
	require.Equal(t, 3, result.TotalPages)
	require.Len(t, result.Items, 2)

	last, err := repo.List(ctx, agencyID, service.ListOptions{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
}
