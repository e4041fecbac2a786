package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ripple/internal/completion"
	"github.com/tigerroll/ripple/internal/config"
	model "github.com/tigerroll/ripple/internal/core/model"
	"github.com/tigerroll/ripple/internal/launcher"
	"github.com/tigerroll/ripple/internal/metrics"
	"github.com/tigerroll/ripple/internal/migration"
	sqlrepo "github.com/tigerroll/ripple/internal/repository/sql"
)

// storeServer fakes the record store: token issuing, describe, and filtered
// queries. Queried filter values are recorded per call.
type storeServer struct {
	srv     *httptest.Server
	queried [][]string

	// describeStatus, when set, makes the describe endpoint fail.
	describeStatus int
}

func newStoreServer(t *testing.T) *storeServer {
	s := &storeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok",
			"endpoint":     s.srv.URL,
		})
	})
	mux.HandleFunc("/describe", func(w http.ResponseWriter, r *http.Request) {
		if s.describeStatus != 0 {
			w.WriteHeader(s.describeStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"fields": []map[string]string{
				{"name": "question_1", "label": "Question 1"},
			},
		})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Filter struct {
				Field  string   `json:"field"`
				Values []string `json:"values"`
			} `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.queried = append(s.queried, body.Filter.Values)

		records := make([]map[string]any, 0, len(body.Filter.Values))
		for _, v := range body.Filter.Values {
			records = append(records, map[string]any{
				"id":               "rec-" + v,
				body.Filter.Field: v,
				"question_1":      "hello from " + v,
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"records": records, "next_page_token": ""})
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

type echoCompletion struct{}

func (echoCompletion) Complete(ctx context.Context, prompt, text string) (string, error) {
	return "analyzed: " + text, nil
}

// flakyCompletion fails for texts containing the marker, the way a backend
// would for one unlucky record.
type flakyCompletion struct {
	marker string
}

func (f flakyCompletion) Complete(ctx context.Context, prompt, text string) (string, error) {
	if strings.Contains(text, f.marker) {
		return "", &completion.Error{Status: http.StatusInternalServerError, Body: "model overloaded"}
	}
	return "analyzed: " + text, nil
}

func newPipelineConfig(t *testing.T, store *storeServer, metadataPath string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Ripple.Store.AuthURL = store.srv.URL
	cfg.Ripple.Store.ClientID = "id"
	cfg.Ripple.Store.ClientSecret = "secret"
	cfg.Ripple.Batch.ChunkDelaySeconds = 0
	cfg.Ripple.Batch.ItemRetry.InitialInterval = 1
	cfg.Ripple.Metadata.Database = metadataPath
	return cfg
}

func newPipelineDeps(t *testing.T, metadataPath string) pipelineDeps {
	t.Helper()
	db, err := sqlrepo.OpenSQLite(metadataPath)
	require.NoError(t, err)
	require.NoError(t, migration.NewMigrator(db).Up())

	repo := sqlrepo.NewGormJobRepository(db)
	t.Cleanup(func() { repo.Close() })

	recorder := metrics.NewNoopRecorder()
	return pipelineDeps{
		JobRepository: repo,
		Recorder:      recorder,
		Completion:    echoCompletion{},
		Launcher:      launcher.NewSimpleJobLauncher(repo, recorder),
	}
}

func writeInput(t *testing.T, dir string, values ...string) string {
	t.Helper()
	content := "account_no\n"
	for _, v := range values {
		content += v + "\n"
	}
	path := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunPipeline_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	store := newStoreServer(t)
	metadataPath := filepath.Join(dir, "meta.db")
	cfg := newPipelineConfig(t, store, metadataPath)
	deps := newPipelineDeps(t, metadataPath)

	opts := Options{
		Object:     "Account",
		Fields:     []string{"question_1"},
		Prompt:     "Summarize.",
		InputPath:  writeInput(t, dir, "A1", "A2"),
		OutputPath: filepath.Join(dir, "outcomes.csv"),
	}

	code := runPipeline(context.Background(), cfg, opts, deps)
	require.Equal(t, 0, code)

	rows := readOutput(t, opts.OutputPath)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"record_id", "account_no", "combined_text", "response"}, rows[0])
	assert.Equal(t, "rec-A1", rows[1][0])
	assert.Equal(t, "A1", rows[1][1])
	assert.Equal(t, "Question 1: hello from A1", rows[1][2])
	assert.Equal(t, "analyzed: Question 1: hello from A1", rows[1][3])
	assert.Equal(t, "rec-A2", rows[2][0])
}

func TestRunPipeline_SecondRunIsNoOp(t *testing.T) {
	dir := t.TempDir()
	store := newStoreServer(t)
	metadataPath := filepath.Join(dir, "meta.db")
	cfg := newPipelineConfig(t, store, metadataPath)
	deps := newPipelineDeps(t, metadataPath)

	opts := Options{
		Object:     "Account",
		Fields:     []string{"question_1"},
		Prompt:     "Summarize.",
		InputPath:  writeInput(t, dir, "A1"),
		OutputPath: filepath.Join(dir, "outcomes.csv"),
	}

	require.Equal(t, 0, runPipeline(context.Background(), cfg, opts, deps))
	require.Len(t, store.queried, 1)

	require.Equal(t, 0, runPipeline(context.Background(), cfg, opts, deps))
	assert.Len(t, store.queried, 1, "a rerun with every value processed must not query the store")

	rows := readOutput(t, opts.OutputPath)
	assert.Len(t, rows, 2, "the rerun appends nothing")

	// The rerun still shows up in job history as a NO_OP execution.
	params := buildJobParameters(opts)
	instance, err := deps.JobRepository.FindJobInstanceByJobNameAndParameters(context.Background(), cfg.Ripple.Batch.JobName, params)
	require.NoError(t, err)
	latest, err := deps.JobRepository.FindLatestJobExecution(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, latest.ExitStatus)
}

func TestRunPipeline_ResumeProcessesOnlyNewValues(t *testing.T) {
	dir := t.TempDir()
	store := newStoreServer(t)
	metadataPath := filepath.Join(dir, "meta.db")
	cfg := newPipelineConfig(t, store, metadataPath)
	deps := newPipelineDeps(t, metadataPath)

	opts := Options{
		Object:     "Account",
		Fields:     []string{"question_1"},
		Prompt:     "Summarize.",
		InputPath:  writeInput(t, dir, "A1", "A2"),
		OutputPath: filepath.Join(dir, "outcomes.csv"),
	}
	require.Equal(t, 0, runPipeline(context.Background(), cfg, opts, deps))

	// The input grows by one value between runs.
	opts.InputPath = writeInput(t, dir, "A1", "A2", "A3")
	require.Equal(t, 0, runPipeline(context.Background(), cfg, opts, deps))

	require.Len(t, store.queried, 2)
	assert.Equal(t, []string{"A3"}, store.queried[1], "already processed values are not re-queried")

	rows := readOutput(t, opts.OutputPath)
	require.Len(t, rows, 4)
	assert.Equal(t, "rec-A3", rows[3][0])
}

func TestRunPipeline_AuthFailureExitsNonZero(t *testing.T) {
	dir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	metadataPath := filepath.Join(dir, "meta.db")
	cfg := config.NewConfig()
	cfg.Ripple.Store.AuthURL = srv.URL
	cfg.Ripple.Metadata.Database = metadataPath
	deps := newPipelineDeps(t, metadataPath)

	opts := Options{
		Object:     "Account",
		Fields:     []string{"question_1"},
		Prompt:     "Summarize.",
		InputPath:  writeInput(t, dir, "A1"),
		OutputPath: filepath.Join(dir, "outcomes.csv"),
	}

	assert.Equal(t, 1, runPipeline(context.Background(), cfg, opts, deps))
	_, err := os.Stat(opts.OutputPath)
	assert.True(t, os.IsNotExist(err), "no output artifact is created when authentication fails")
}

func TestRunPipeline_CompletionFailureIsIsolatedPerRecord(t *testing.T) {
	dir := t.TempDir()
	store := newStoreServer(t)
	metadataPath := filepath.Join(dir, "meta.db")
	cfg := newPipelineConfig(t, store, metadataPath)
	deps := newPipelineDeps(t, metadataPath)
	deps.Completion = flakyCompletion{marker: "A2"}

	opts := Options{
		Object:     "Account",
		Fields:     []string{"question_1"},
		Prompt:     "Summarize.",
		InputPath:  writeInput(t, dir, "A1", "A2", "A3"),
		OutputPath: filepath.Join(dir, "outcomes.csv"),
	}

	require.Equal(t, 0, runPipeline(context.Background(), cfg, opts, deps), "one record's failure does not fail the run")

	rows := readOutput(t, opts.OutputPath)
	require.Len(t, rows, 4, "the failed record still gets an outcome row")
	assert.Equal(t, "analyzed: Question 1: hello from A1", rows[1][3])
	assert.True(t, strings.HasPrefix(rows[2][3], "Error: "), "the failure is recorded as data: %q", rows[2][3])
	assert.Contains(t, rows[2][3], "model overloaded")
	assert.Equal(t, "analyzed: Question 1: hello from A3", rows[3][3])
}

func TestRunPipeline_DescribeFailureExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	store := newStoreServer(t)
	store.describeStatus = http.StatusInternalServerError
	metadataPath := filepath.Join(dir, "meta.db")
	cfg := newPipelineConfig(t, store, metadataPath)
	deps := newPipelineDeps(t, metadataPath)

	opts := Options{
		Object:     "Account",
		Fields:     []string{"question_1"},
		Prompt:     "Summarize.",
		InputPath:  writeInput(t, dir, "A1"),
		OutputPath: filepath.Join(dir, "outcomes.csv"),
	}

	assert.Equal(t, 1, runPipeline(context.Background(), cfg, opts, deps))
	assert.Empty(t, store.queried, "no records are fetched when field metadata cannot be resolved")
	_, err := os.Stat(opts.OutputPath)
	assert.True(t, os.IsNotExist(err), "no output artifact is created when metadata lookup fails")
}

func TestNewCompletionService_SelectsBackend(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Ripple.Completion.Backend = "http"
	svc, err := newCompletionService(cfg)
	require.NoError(t, err)
	_, ok := svc.(*completion.HTTPService)
	assert.True(t, ok)

	cfg.Ripple.Completion.Backend = "unknown"
	_, err = newCompletionService(cfg)
	require.Error(t, err)
}

func TestRunPipeline_MalformedInputExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	store := newStoreServer(t)
	metadataPath := filepath.Join(dir, "meta.db")
	cfg := newPipelineConfig(t, store, metadataPath)
	deps := newPipelineDeps(t, metadataPath)

	path := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	opts := Options{
		Object:     "Account",
		Fields:     []string{"question_1"},
		Prompt:     "Summarize.",
		InputPath:  path,
		OutputPath: filepath.Join(dir, "outcomes.csv"),
	}

	assert.Equal(t, 1, runPipeline(context.Background(), cfg, opts, deps))
	assert.Empty(t, store.queried)
}
