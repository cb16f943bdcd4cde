package endpoints

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glemaitre/ramp-board-1/common/stats"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(b)
}

func TestHealthAndMetrics(t *testing.T) {
	stat := stats.DefaultStatsReceiver().Scope("dispatcher")
	stat.Counter("trainedCounter").Inc(3)
	h := NewAdminServer(":0", stat, "").Handler()

	code, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, h, "/admin/metrics.json")
	assert.Equal(t, http.StatusOK, code)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	assert.EqualValues(t, 3, m["dispatcher/trainedCounter"])

	code, _ = get(t, h, "/")
	assert.Equal(t, http.StatusNotImplemented, code)
	code, _ = get(t, h, "/submissions/x/log")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSubmissionLogs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "starting_kit"), 0777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "starting_kit", "log"), []byte("CV fold 0\n"), 0666))
	h := NewAdminServer(":0", stats.NilStatsReceiver(), dir).Handler()

	code, body := get(t, h, "/submissions/starting_kit/log")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CV fold 0\n", body)

	code, _ = get(t, h, "/submissions/missing/log")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, h, "/submissions/../log")
	assert.NotEqual(t, http.StatusOK, code)
}
