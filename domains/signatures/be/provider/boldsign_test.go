package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBoldSignForTest(t *testing.T, handler http.Handler) Adapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := New(KindBoldSign, "test-key",
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithMaxRetries(0),
	)
	require.NoError(t, err)
	return adapter
}

func TestBoldSignListTemplates(t *testing.T) {
	t.Parallel()

	adapter := newBoldSignForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/template/list", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		require.Equal(t, "1", r.URL.Query().Get("Page"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"documentId":   "tpl-1",
					"templateName": "Care Agreement",
					"roles": []map[string]any{
						{"index": 1, "name": "Client"},
						{"index": 2, "name": "Guardian"},
					},
				},
			},
		})
	}))

	templates, err := adapter.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Equal(t, "tpl-1", templates[0].ID)
	require.Equal(t, "Care Agreement", templates[0].Name)
	require.Equal(t, []string{"Client", "Guardian"}, templates[0].Roles)
}

func TestBoldSignSendPadsUnfilledRoles(t *testing.T) {
	t.Parallel()

	var body boldSignSendBody
	adapter := newBoldSignForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/template/send", r.URL.Path)
		require.Equal(t, "tpl-1", r.URL.Query().Get("templateId"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"documentId": "doc-42",
			"signingLinks": map[string]string{
				"ada@example.com": "https://sign.example/abc",
			},
		})
	}))

	result, err := adapter.Send(context.Background(), SendParams{
		DocumentID:    "tpl-1",
		Title:         "Care Agreement",
		Signers:       []Signer{{Name: "Ada Client", Email: "ada@example.com", Role: "Client"}},
		TemplateRoles: []string{"Client", "Guardian"},
	})
	require.NoError(t, err)
	require.Equal(t, "doc-42", result.ExternalDocumentID)
	require.Equal(t, "https://sign.example/abc", result.SigningLinks["ada@example.com"])

	require.Len(t, body.Roles, 2)
	require.Equal(t, 1, body.Roles[0].RoleIndex)
	require.Equal(t, "ada@example.com", body.Roles[0].SignerEmail)
	require.Equal(t, 2, body.Roles[1].RoleIndex)
	require.Equal(t, PlaceholderSignerName, body.Roles[1].SignerName)
	require.Equal(t, PlaceholderSignerEmail, body.Roles[1].SignerEmail)
}

func TestBoldSignSendFallsBackToDocumentSend(t *testing.T) {
	t.Parallel()

	var paths []string
	adapter := newBoldSignForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/template/send":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"the document is already completed"}`))
		case "/document/send":
			_ = json.NewEncoder(w).Encode(map[string]any{"documentId": "doc-43"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	result, err := adapter.Send(context.Background(), SendParams{
		DocumentID: "doc-43",
		Title:      "Care Agreement",
		Signers:    []Signer{{Name: "Ada Client", Email: "ada@example.com"}},
	})
	require.NoError(t, err)
	require.Equal(t, "doc-43", result.ExternalDocumentID)
	require.Equal(t, []string{"/template/send", "/document/send"}, paths)
}

func TestBoldSignSendSurfacesNonTemplateErrorDirectly(t *testing.T) {
	t.Parallel()

	calls := 0
	adapter := newBoldSignForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))

	_, err := adapter.Send(context.Background(), SendParams{
		DocumentID: "tpl-1",
		Signers:    []Signer{{Name: "Ada Client", Email: "ada@example.com"}},
	})

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusUnauthorized, providerErr.StatusCode)
	require.Equal(t, 1, calls, "a non-template rejection must not trigger the fallback")
}

func TestBoldSignSendReportsNotAReusableTemplate(t *testing.T) {
	t.Parallel()

	adapter := newBoldSignForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"document is completed, not a template"}`))
	}))

	_, err := adapter.Send(context.Background(), SendParams{
		DocumentID: "doc-dead",
		Signers:    []Signer{{Name: "Ada Client", Email: "ada@example.com"}},
	})

	var templateErr *NotAReusableTemplateError
	require.ErrorAs(t, err, &templateErr)
	require.Equal(t, "doc-dead", templateErr.DocumentID)
	require.Len(t, templateErr.Attempts, 2)
}

func TestBoldSignGetStatus(t *testing.T) {
	t.Parallel()

	adapter := newBoldSignForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/document/doc-42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"documentId":        "doc-42",
			"status":            "Completed",
			"completedDate":     "2026-03-14T10:00:00Z",
			"signedDocumentUrl": "https://files.example/doc-42.pdf",
		})
	}))

	status, err := adapter.GetStatus(context.Background(), "doc-42")
	require.NoError(t, err)
	require.True(t, status.Completed)
	require.False(t, status.StillPending)
	require.NotNil(t, status.SignedAt)
	require.Equal(t, "https://files.example/doc-42.pdf", status.SignedDocumentURL)
}

func TestBoldSignGetStatusPending(t *testing.T) {
	t.Parallel()

	adapter := newBoldSignForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"documentId": "doc-42", "status": "InProgress"})
	}))

	status, err := adapter.GetStatus(context.Background(), "doc-42")
	require.NoError(t, err)
	require.False(t, status.Completed)
	require.True(t, status.StillPending)
}

func TestBoldSignListDocuments(t *testing.T) {
	t.Parallel()

	adapter := newBoldSignForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/document/list", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("Page"))
		require.Equal(t, "10", r.URL.Query().Get("PageSize"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"documentId": "doc-1", "messageTitle": "Care Agreement", "status": "InProgress", "createdDate": 1757836800},
			},
			"pageDetails": map[string]any{"totalRecordsCount": 31},
		})
	}))

	page, err := adapter.ListDocuments(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	require.Equal(t, "doc-1", page.Documents[0].ID)
	require.Equal(t, 31, page.TotalCount)
	require.False(t, page.Documents[0].CreatedAt.IsZero())
}

func TestNewRequiresCredential(t *testing.T) {
	t.Parallel()

	_, err := New(KindBoldSign, "")
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Kind("docusign"), "key")
	require.Error(t, err)
}
