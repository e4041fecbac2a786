package recordstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/recordstore"
)

func newAuthServer(t *testing.T, endpoint string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		if r.FormValue("grant_type") != "client_credentials" || r.FormValue("client_id") != "id" || r.FormValue("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok-123",
			"endpoint":     endpoint,
		})
	}))
}

func TestAuthenticator_Authenticate(t *testing.T) {
	srv := newAuthServer(t, "https://api.example.test/v1")
	defer srv.Close()

	auth := recordstore.NewAuthenticator(srv.URL, "id", "secret", 5*time.Second)
	session, err := auth.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", session.Token)
	assert.Equal(t, "https://api.example.test/v1", session.Endpoint)
	assert.False(t, session.IssuedAt.IsZero())
}

func TestAuthenticator_RejectedCredentialsAreFatal(t *testing.T) {
	srv := newAuthServer(t, "https://api.example.test/v1")
	defer srv.Close()

	auth := recordstore.NewAuthenticator(srv.URL, "id", "wrong", 5*time.Second)
	_, err := auth.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrAuthentication))
	assert.False(t, exception.IsTemporary(err))
}

func TestClient_Query_PaginatesWithContinuationToken(t *testing.T) {
	var queryBodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.URL.Path == "/query" && r.Method == http.MethodPost:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			queryBodies = append(queryBodies, body)
			json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{
					{"id": "r1", "question_1": "q1 text"},
					{"id": "r2", "question_1": nil},
				},
				"next_page_token": "page-2",
			})
		case strings.HasPrefix(r.URL.Path, "/query/pages/") && r.Method == http.MethodGet:
			require.Equal(t, "/query/pages/page-2", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"records":         []map[string]any{{"id": "r3", "question_1": "more"}},
				"next_page_token": "",
			})
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client := recordstore.NewClient(&recordstore.Session{Token: "tok", Endpoint: srv.URL}, 5*time.Second)

	page, err := client.Query(context.Background(), "Account", []string{"question_1"}, "account_no", []string{"A1", "A2"}, 200)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "r1", page.Records[0].ID)
	assert.Equal(t, "q1 text", page.Records[0].FieldValue("question_1"))
	assert.Equal(t, "", page.Records[1].FieldValue("question_1"))
	assert.Equal(t, "page-2", page.NextPageToken)

	next, err := client.QueryPage(context.Background(), page.NextPageToken)
	require.NoError(t, err)
	require.Len(t, next.Records, 1)
	assert.Equal(t, "r3", next.Records[0].ID)
	assert.Empty(t, next.NextPageToken)

	require.Len(t, queryBodies, 1)
	assert.Equal(t, "Account", queryBodies[0]["object"])
	assert.Equal(t, "id", queryBodies[0]["order_by"])
	assert.Equal(t, float64(200), queryBodies[0]["page_size"])
	filter := queryBodies[0]["filter"].(map[string]any)
	assert.Equal(t, "account_no", filter["field"])
}

func TestClient_Query_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "upstream exploded")
	}))
	defer srv.Close()

	client := recordstore.NewClient(&recordstore.Session{Token: "tok", Endpoint: srv.URL}, 5*time.Second)
	_, err := client.Query(context.Background(), "Account", nil, "account_no", []string{"A1"}, 200)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrQuery))
	assert.True(t, exception.IsTemporary(err))
}

func TestClient_Query_ClientErrorIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad filter")
	}))
	defer srv.Close()

	client := recordstore.NewClient(&recordstore.Session{Token: "tok", Endpoint: srv.URL}, 5*time.Second)
	_, err := client.Query(context.Background(), "Account", nil, "account_no", []string{"A1"}, 200)
	require.Error(t, err)
	assert.False(t, exception.IsTemporary(err))
}

func TestClient_DescribeFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/describe", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"fields": []map[string]string{
				{"name": "question_1", "label": "Question 1"},
				{"name": "question_2", "label": "Question 2"},
			},
		})
	}))
	defer srv.Close()

	client := recordstore.NewClient(&recordstore.Session{Token: "tok", Endpoint: srv.URL}, 5*time.Second)
	labels, err := client.DescribeFields(context.Background(), "Account", []string{"question_1", "question_2"})
	require.NoError(t, err)
	assert.Equal(t, "Question 1", labels["question_1"])
	assert.Equal(t, "Question 2", labels["question_2"])
}

func TestClient_DescribeFields_ErrorCarriesMetadataSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := recordstore.NewClient(&recordstore.Session{Token: "tok", Endpoint: srv.URL}, 5*time.Second)
	_, err := client.DescribeFields(context.Background(), "Account", []string{"question_1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrMetadata))
}
