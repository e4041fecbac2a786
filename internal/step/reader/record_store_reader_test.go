package reader_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/domain"
	"github.com/tigerroll/ripple/internal/metrics"
	"github.com/tigerroll/ripple/internal/recordstore"
	"github.com/tigerroll/ripple/internal/step/reader"
)

type queryRequest struct {
	Object string `json:"object"`
	Filter struct {
		Field  string   `json:"field"`
		Values []string `json:"values"`
	} `json:"filter"`
	PageSize int `json:"page_size"`
}

// storeStub answers /query with one record per filter value and hands out
// continuation pages registered through addPage.
type storeStub struct {
	t          *testing.T
	queryCount int
	pages      map[string][]map[string]any
	nextToken  map[string]string
	firstToken string
}

func newStoreStub(t *testing.T) *storeStub {
	return &storeStub{
		t:         t,
		pages:     make(map[string][]map[string]any),
		nextToken: make(map[string]string),
	}
}

func (s *storeStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/query" && r.Method == http.MethodPost:
			s.queryCount++
			var req queryRequest
			require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
			records := make([]map[string]any, 0, len(req.Filter.Values))
			for _, v := range req.Filter.Values {
				records = append(records, map[string]any{
					"id":         "rec-" + v,
					"account_no": v,
					"question_1": "text for " + v,
				})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"records":         records,
				"next_page_token": s.firstToken,
			})
		case r.Method == http.MethodGet:
			token := r.URL.Path[len("/query/pages/"):]
			records, ok := s.pages[token]
			require.True(s.t, ok, "unknown page token %q", token)
			json.NewEncoder(w).Encode(map[string]any{
				"records":         records,
				"next_page_token": s.nextToken[token],
			})
		default:
			s.t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})
}

func (s *storeStub) addPage(token string, next string, ids ...string) {
	records := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		records = append(records, map[string]any{"id": id, "question_1": "paged text"})
	}
	s.pages[token] = records
	s.nextToken[token] = next
}

func newTestReader(srv *httptest.Server, cfg reader.Config, values []string) *reader.RecordStoreReader {
	client := recordstore.NewClient(&recordstore.Session{Token: "tok", Endpoint: srv.URL}, 5*time.Second)
	return reader.NewRecordStoreReader(client, cfg, values, metrics.NewNoopRecorder(), "step")
}

func drain(t *testing.T, r *reader.RecordStoreReader) []*domain.Record {
	t.Helper()
	var out []*domain.Record
	for {
		rec, err := r.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestRecordStoreReader_SplitsValuesIntoChunks(t *testing.T) {
	stub := newStoreStub(t)
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := reader.Config{Object: "Account", Fields: []string{"question_1"}, FilterField: "account_no", ChunkSize: 2, PageSize: 200, MaxPages: 100}
	r := newTestReader(srv, cfg, []string{"A1", "A2", "A3", "A4", "A5"})

	ctx := context.Background()
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))

	records := drain(t, r)
	require.Len(t, records, 5)
	assert.Equal(t, "rec-A1", records[0].ID)
	assert.Equal(t, "rec-A5", records[4].ID)
	assert.Equal(t, 3, stub.queryCount, "five values with chunk size two need three queries")

	_, err := r.Read(ctx)
	assert.Equal(t, io.EOF, err, "Read past the last chunk keeps returning io.EOF")

	require.NoError(t, r.Close(ctx))
}

func TestRecordStoreReader_ClampsOversizedChunks(t *testing.T) {
	stub := newStoreStub(t)
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	values := make([]string, 500)
	for i := range values {
		values[i] = fmt.Sprintf("A%03d", i)
	}

	cfg := reader.Config{Object: "Account", FilterField: "account_no", ChunkSize: 1000, PageSize: 200, MaxPages: 100}
	r := newTestReader(srv, cfg, values)

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	records := drain(t, r)
	assert.Len(t, records, 500)
	assert.Equal(t, 2, stub.queryCount, "500 values clamp to 450-value chunks, so two queries")
}

func TestRecordStoreReader_DeduplicatesAcrossChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every chunk reports the same record.
		json.NewEncoder(w).Encode(map[string]any{
			"records":         []map[string]any{{"id": "rec-shared", "question_1": "text"}},
			"next_page_token": "",
		})
	}))
	defer srv.Close()

	cfg := reader.Config{Object: "Account", FilterField: "account_no", ChunkSize: 1, PageSize: 200, MaxPages: 100}
	r := newTestReader(srv, cfg, []string{"A1", "A2", "A3"})

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	records := drain(t, r)
	require.Len(t, records, 1, "a record returned by several chunks is served once")
	assert.Equal(t, "rec-shared", records[0].ID)
}

func TestRecordStoreReader_WalksContinuationPages(t *testing.T) {
	stub := newStoreStub(t)
	stub.firstToken = "page-2"
	stub.addPage("page-2", "page-3", "rec-p2a", "rec-p2b")
	stub.addPage("page-3", "", "rec-p3a")
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := reader.Config{Object: "Account", FilterField: "account_no", ChunkSize: 450, PageSize: 200, MaxPages: 100}
	r := newTestReader(srv, cfg, []string{"A1"})

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	records := drain(t, r)
	require.Len(t, records, 4)
	assert.Equal(t, "rec-p3a", records[3].ID)
}

func TestRecordStoreReader_StopsAtPageCap(t *testing.T) {
	stub := newStoreStub(t)
	stub.firstToken = "page-2"
	stub.addPage("page-2", "page-3", "rec-p2a")
	stub.addPage("page-3", "page-4", "rec-p3a")
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := reader.Config{Object: "Account", FilterField: "account_no", ChunkSize: 450, PageSize: 200, MaxPages: 2}
	r := newTestReader(srv, cfg, []string{"A1"})

	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	records := drain(t, r)
	require.Len(t, records, 2, "the page cap truncates the chunk after two pages")
}

func TestRecordStoreReader_RestoresChunkPositionFromCheckpoint(t *testing.T) {
	stub := newStoreStub(t)
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := reader.Config{Object: "Account", FilterField: "account_no", ChunkSize: 2, PageSize: 200, MaxPages: 100}
	r := newTestReader(srv, cfg, []string{"A1", "A2", "A3", "A4"})

	ec := model.NewExecutionContext()
	ec.Put("reader.chunk_index", 1)
	require.NoError(t, r.Open(context.Background(), ec))

	records := drain(t, r)
	require.Len(t, records, 2, "the first chunk was already committed and is not re-fetched")
	assert.Equal(t, "rec-A3", records[0].ID)
	assert.Equal(t, 1, stub.queryCount)
}

func TestRecordStoreReader_CheckpointAfterDrainCoversAllChunks(t *testing.T) {
	stub := newStoreStub(t)
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := reader.Config{Object: "Account", FilterField: "account_no", ChunkSize: 2, PageSize: 200, MaxPages: 100}
	r := newTestReader(srv, cfg, []string{"A1", "A2", "A3"})

	ctx := context.Background()
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	records := drain(t, r)
	require.Len(t, records, 3)

	ec, err := r.GetExecutionContext(ctx)
	require.NoError(t, err)
	idx, ok := ec.GetInt("reader.chunk_index")
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	served, ok := ec.GetInt("reader.served")
	require.True(t, ok)
	assert.Equal(t, 3, served)
}

func TestRecordStoreReader_CancelledContext(t *testing.T) {
	stub := newStoreStub(t)
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := reader.Config{Object: "Account", FilterField: "account_no", ChunkSize: 2, PageSize: 200}
	r := newTestReader(srv, cfg, []string{"A1"})
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Read(ctx)
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}
