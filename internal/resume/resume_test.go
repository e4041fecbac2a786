package resume_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ripple/internal/resume"
)

func writeOutput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outcomes.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProcessed_MatchesHeaderColumn(t *testing.T) {
	path := writeOutput(t, "record_id,account_no,combined_text,response\nr1,A1,text,ok\nr2,A2,text,ok\n")

	processed := resume.LoadProcessed(path, "account_no")
	assert.Len(t, processed, 2)
	assert.Contains(t, processed, "A1")
	assert.Contains(t, processed, "A2")
}

func TestLoadProcessed_HeaderMatchIsCaseInsensitive(t *testing.T) {
	path := writeOutput(t, "record_id,Account_No,combined_text,response\nr1,A1,text,ok\n")

	processed := resume.LoadProcessed(path, "account_no")
	assert.Contains(t, processed, "A1")
}

func TestLoadProcessed_FallsBackToSecondColumn(t *testing.T) {
	path := writeOutput(t, "id,value,text,resp\nr1,A1,text,ok\n")

	processed := resume.LoadProcessed(path, "account_no")
	assert.Contains(t, processed, "A1")
}

func TestLoadProcessed_MissingFileMeansFreshRun(t *testing.T) {
	processed := resume.LoadProcessed(filepath.Join(t.TempDir(), "missing.csv"), "account_no")
	assert.Empty(t, processed)
}

func TestLoadProcessed_PartialParseKeepsEarlierRows(t *testing.T) {
	path := writeOutput(t, "record_id,account_no,combined_text,response\nr1,A1,text,ok\n\"broken\nr2,A2,text,ok\n")

	processed := resume.LoadProcessed(path, "account_no")
	assert.Contains(t, processed, "A1")
}

func TestFilterPending_RemovesProcessedAndDuplicates(t *testing.T) {
	values := []string{"A1", "A2", "A1", "A3", "A2"}
	processed := map[string]struct{}{"A2": {}}

	pending := resume.FilterPending(values, processed)
	assert.Equal(t, []string{"A1", "A3"}, pending)
}

func TestFilterPending_AllProcessedYieldsEmpty(t *testing.T) {
	values := []string{"A1", "A2"}
	processed := map[string]struct{}{"A1": {}, "A2": {}}

	assert.Empty(t, resume.FilterPending(values, processed))
}

func TestFilterPending_PreservesInputOrder(t *testing.T) {
	values := []string{"C", "A", "B"}
	pending := resume.FilterPending(values, nil)
	assert.Equal(t, []string{"C", "A", "B"}, pending)
}
