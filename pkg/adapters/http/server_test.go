package http

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow"
	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
)

const greeterYAML = `
id: greeter
agents:
  - id: ask
    type: user
    with: {param: name}
  - id: hello
    type: template
    params: [{name: name, required: true}]
    with: {text: "Hello, {{.name}}!"}
nodes:
  - agent: ask
  - agent: hello
`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	def, err := definition.Parse([]byte(greeterYAML), "yaml")
	require.NoError(t, err)
	eng, err := chainflow.New(chainflow.WithDefinitions(def))
	require.NoError(t, err)

	srv, err := NewServer(eng, WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func post(t *testing.T, url string, vars map[string]any) *http.Response {
	t.Helper()
	body, err := json.Marshal(RunRequest{Vars: vars})
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) *domain.Snapshot {
	t.Helper()
	var snap domain.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return &snap
}

func TestServer_StartSuspendResume(t *testing.T) {
	_, ts := newTestServer(t)

	resp := post(t, ts.URL+"/chains/greeter/runs", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap := decodeSnapshot(t, resp)
	assert.Equal(t, domain.StatusPauseForInput, snap.Status)

	resp = post(t, ts.URL+"/runs/"+snap.ID+"/resume", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = post(t, ts.URL+"/runs/"+snap.ID+"/resume", map[string]any{"name": "Ada"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decodeSnapshot(t, resp)
	assert.Equal(t, domain.StatusFinishedNormal, done.Status)
	assert.Equal(t, "Hello, Ada!", done.Output.Value())

	got, err := http.Get(ts.URL + "/runs")
	require.NoError(t, err)
	defer got.Body.Close()
	var runs []RunSummary
	require.NoError(t, json.NewDecoder(got.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "greeter", runs[0].Name)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/runs/"+snap.ID, nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	missing, err := http.Get(ts.URL + "/runs/" + snap.ID)
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_Errors(t *testing.T) {
	_, ts := newTestServer(t)

	resp := post(t, ts.URL+"/chains/nope/runs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	bad, err := http.Post(ts.URL+"/chains/greeter/runs", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	resp = post(t, ts.URL+"/chains/greeter/runs", map[string]any{"name": strings.Repeat("x", 5000)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ChainsInfoMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/chains")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	resp.Body.Close()
	assert.Equal(t, []string{"greeter"}, names)

	resp, err = http.Get(ts.URL + "/info")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, chainflow.Version, info["version"])

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Contains(t, buf.String(), `chainflow_http_requests_total{method="GET",path="/chains",status="200"} 1`)
}

func TestServer_EventsStreamDiffs(t *testing.T) {
	srv, ts := newTestServer(t)

	resp := post(t, ts.URL+"/chains/greeter/runs", nil)
	snap := decodeSnapshot(t, resp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/runs/"+snap.ID+"/events?watch=status", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return srv.Streams().Subscribers(snap.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	post(t, ts.URL+"/runs/"+snap.ID+"/resume", map[string]any{"name": "Ada"})

	scanner := bufio.NewScanner(stream.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: {") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, data)

	var diff domain.SnapshotDiff
	require.NoError(t, json.Unmarshal([]byte(data), &diff))
	assert.Equal(t, snap.ID, diff.RunID)
	require.NotNil(t, diff.Status)
	assert.Equal(t, domain.StatusFinishedNormal, *diff.Status)
}

func TestWatched(t *testing.T) {
	st := domain.StatusFinishedNormal
	msg, err := json.Marshal(domain.SnapshotDiff{RunID: "r", Status: &st})
	require.NoError(t, err)

	assert.True(t, watched(string(msg), []string{"status"}))
	assert.False(t, watched(string(msg), []string{"memory", " output"}))
}

func TestStreamManager_SlowClientDrops(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("r")
	for i := 0; i < 20; i++ {
		sm.Broadcast("r", "m")
	}
	assert.Len(t, ch, 10)

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("r"))
}
