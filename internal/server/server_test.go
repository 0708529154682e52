package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hybrid/internal/events"
	"github.com/aristath/hybrid/internal/modules/deuteron"
	"github.com/aristath/hybrid/internal/modules/optimization"
	"github.com/aristath/hybrid/internal/modules/runs"
	testutil "github.com/aristath/hybrid/internal/testing"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, cleanup := testutil.NewTestDB(t, "runs")
	t.Cleanup(cleanup)

	manager := events.NewManager(events.NewBus(log), log)
	service := runs.NewService(runs.NewRepository(db.Conn(), log), testutil.DeuteronExecutor(),
		optimization.Options{optimization.KeyMaxEvaluations: 100}, manager, log)

	srv := New(Config{
		Log:     log,
		RunsDB:  db,
		Runs:    service,
		Kernels: deuteron.Kernels(),
		Port:    0,
		DevMode: true,
	})
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = service.Shutdown(ctx)
	})
	return ts
}

func getJSON(t *testing.T, url string) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, url)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestServer_Health(t *testing.T) {
	ts := setupTestServer(t)

	body := getJSON(t, ts.URL+"/health")
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "hybrid", body["service"])
	assert.Equal(t, float64(0), body["active_runs"])
}

func TestServer_SystemStatus(t *testing.T) {
	ts := setupTestServer(t)

	body := getJSON(t, ts.URL+"/api/system/status")
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, float64(0), body["active_runs"])
	assert.Greater(t, body["goroutines"], float64(0))

	stats := getJSON(t, ts.URL+"/api/system/database")
	assert.Equal(t, "runs", stats["name"])
	assert.Contains(t, stats["stats"], "page_size")
}

func TestServer_MountsModuleRoutes(t *testing.T) {
	ts := setupTestServer(t)

	for _, path := range []string{"/api/quantum/kernels", "/api/optimizers", "/api/problems", "/api/runs"} {
		body := getJSON(t, ts.URL+path)
		assert.Contains(t, body, "data", path)
	}

	resp, err := http.Get(ts.URL + "/api/runs/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CORS(t *testing.T) {
	ts := setupTestServer(t)

	req, err := http.NewRequest("OPTIONS", ts.URL+"/api/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_EventsStream(t *testing.T) {
	ts := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events/stream?types=RUN_STARTED,RUN_COMPLETED", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() map[string]interface{} {
		for lines.Scan() {
			line := lines.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var msg map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
			return msg
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return nil
	}

	assert.Equal(t, "connected", next()["type"])

	payload, err := json.Marshal(map[string]interface{}{"problem": deuteron.ProblemScalar})
	require.NoError(t, err)
	post, err := http.Post(ts.URL+"/api/runs", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusAccepted, post.StatusCode)

	started := next()
	assert.Equal(t, "RUN_STARTED", started["type"])
	completed := next()
	assert.Equal(t, "RUN_COMPLETED", completed["type"])

	data := completed["data"].(map[string]interface{})
	assert.Equal(t, started["data"].(map[string]interface{})["run_id"], data["run_id"])
	assert.InDelta(t, deuteron.GroundStateEnergy, data["energy"].(float64), 0.1)
}
