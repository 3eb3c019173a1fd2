package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProgressSnapshot: Add accumulates and Snapshot reports a
// serializable copy.
func TestProgressSnapshot(t *testing.T) {
	p := &Progress{FilesTotal: 10, StartedAt: time.Now()}
	p.Add(true, false, 120)
	p.Add(true, false, 80)
	p.Add(false, true, 0)

	snap := p.Snapshot()
	assert.Equal(t, 10, snap["files_total"])
	assert.Equal(t, 2, snap["files_done"])
	assert.Equal(t, 1, snap["files_failed"])
	assert.EqualValues(t, 200, snap["landmarks_total"])
}

// TestRoutes: the three read-only endpoints respond.
func TestRoutes(t *testing.T) {
	progress := &Progress{FilesTotal: 3, StartedAt: time.Now()}
	progress.Add(true, false, 42)
	engine := New(progress, false)

	srv := httptest.NewServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.EqualValues(t, 3, stats["files_total"])
	assert.EqualValues(t, 1, stats["files_done"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
