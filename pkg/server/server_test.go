package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowscope/flowscope/internal/testutil"
	"github.com/flowscope/flowscope/pkg/domain/frame"
	"github.com/flowscope/flowscope/pkg/domain/types"
	"github.com/flowscope/flowscope/pkg/tracker"
)

// fakeHistory is an in-memory HistoryStore.
type fakeHistory struct {
	frames map[types.FrameID]*frame.Frame
	err    error
}

func (h *fakeHistory) Load(id types.FrameID) (*frame.Frame, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.frames[id], nil
}

func (h *fakeHistory) ListRecent(limit int) ([]*frame.Frame, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := make([]*frame.Frame, 0, len(h.frames))
	for _, f := range h.frames {
		out = append(out, f)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *fakeHistory) Count() (int, error) {
	if h.err != nil {
		return 0, h.err
	}
	return len(h.frames), nil
}

func newTestServer(t *testing.T, mutate func(*Options)) (*Server, *tracker.Manager, *httptest.Server) {
	t.Helper()

	clock := testutil.NewClock(1000)
	manager := tracker.NewManager(tracker.Options{
		EvictionInterval: time.Hour,
		Clock:            clock.Now,
	})
	t.Cleanup(manager.Close)

	opts := Options{Debug: true}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := New(manager, opts)
	require.NoError(t, err)

	go s.hub.Run()
	t.Cleanup(s.hub.Close)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return s, manager, ts
}

func postEvent(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestIngest_BuildsFrames(t *testing.T) {
	_, manager, ts := newTestServer(t, nil)

	resp := postEvent(t, ts, `{
		"type": "input", "nodeId": "n1", "nodeType": "inject",
		"message": {"_msgid": "m1", "payload": "tick"}
	}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postEvent(t, ts, `{
		"type": "output", "nodeId": "n1", "nodeType": "inject",
		"message": {"_msgid": "m1", "payload": "tick"}
	}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	frames := manager.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, types.NodeID("n1"), frames[0].TriggerNodeID)
	assert.Equal(t, 1, frames[0].Stats.OutputsEmitted)
}

func TestIngest_ErrorEvent(t *testing.T) {
	_, manager, ts := newTestServer(t, nil)

	resp := postEvent(t, ts, `{
		"type": "error", "nodeId": "n1", "nodeType": "http request",
		"correlationKey": "m1",
		"error": {"message": "connection refused", "code": "ECONNREFUSED"}
	}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	frames := manager.Frames()
	require.Len(t, frames, 1)
	ne := frames[0].Nodes["n1"]
	require.NotNil(t, ne)
	require.NotNil(t, ne.Error)
	assert.Equal(t, "connection refused", ne.Error.Message)
	assert.Equal(t, "ECONNREFUSED", ne.Error.Code)
}

func TestIngest_Malformed(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp := postEvent(t, ts, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postEvent(t, ts, `{"type": "telepathy", "nodeId": "n1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAndGetFrames(t *testing.T) {
	_, manager, ts := newTestServer(t, nil)

	manager.OnNodeInput("n1", "inject", "m1", map[string]interface{}{"payload": 1})
	id := manager.Frames()[0].ID

	resp, err := http.Get(ts.URL + "/api/frames")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var frames []frame.Frame
	decodeJSON(t, resp, &frames)
	require.Len(t, frames, 1)
	assert.Equal(t, id, frames[0].ID)

	resp, err = http.Get(ts.URL + "/api/frames/" + id.String())
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var single frame.Frame
	decodeJSON(t, resp, &single)
	assert.Equal(t, id, single.ID)

	resp, err = http.Get(ts.URL + "/api/frames/nonexistent")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStats(t *testing.T) {
	_, manager, ts := newTestServer(t, nil)
	manager.OnNodeInput("n1", "inject", "m1", map[string]interface{}{"payload": 1})

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]interface{}
	decodeJSON(t, resp, &stats)
	assert.Equal(t, float64(1), stats["framesCreated"])
	assert.Contains(t, stats, "websocketClients")
	assert.Contains(t, stats, "sampler")
}

func TestReset(t *testing.T) {
	_, manager, ts := newTestServer(t, nil)
	manager.OnNodeInput("n1", "inject", "m1", map[string]interface{}{"payload": 1})

	resp, err := http.Post(ts.URL+"/api/reset", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, manager.Frames())
}

func TestReset_AbsentWithoutDebug(t *testing.T) {
	_, _, ts := newTestServer(t, func(o *Options) { o.Debug = false })

	resp, err := http.Post(ts.URL+"/api/reset", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestHistoryEndpoints(t *testing.T) {
	archived := frame.New(1000)
	archived.End(2000, frame.EndReasonExplicit)
	history := &fakeHistory{frames: map[types.FrameID]*frame.Frame{archived.ID: archived}}

	_, _, ts := newTestServer(t, func(o *Options) { o.History = history })

	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var frames []frame.Frame
	decodeJSON(t, resp, &frames)
	require.Len(t, frames, 1)

	resp, err = http.Get(ts.URL + "/api/history/" + archived.ID.String())
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/history/nonexistent")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryEndpoints_StoreFailure(t *testing.T) {
	history := &fakeHistory{err: fmt.Errorf("disk gone")}
	_, _, ts := newTestServer(t, func(o *Options) { o.History = history })

	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/history/some-id")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestWebSocket_StreamsEvents(t *testing.T) {
	s, manager, ts := newTestServer(t, nil)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool {
		return s.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	manager.OnNodeInput("n1", "inject", "m1", map[string]interface{}{"payload": "tick"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, string(tracker.EventFrameStart), event["event"])
	assert.NotEmpty(t, event["frameId"])
}

func TestWebSocket_KindFilter(t *testing.T) {
	s, manager, ts := newTestServer(t, nil)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?events=node:input"), nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool {
		return s.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	manager.OnNodeInput("n1", "inject", "m1", map[string]interface{}{"payload": "tick"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, string(tracker.EventNodeInput), event["event"])
}

func TestWebSocket_InvalidFilterRejected(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws?filter=)(bad"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFilterFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	filter, err := filterFromQuery(req)
	require.NoError(t, err)
	assert.Nil(t, filter)

	req = httptest.NewRequest(http.MethodGet, "/ws?events=frame:start,frame:end&nodes=n1", nil)
	filter, err = filterFromQuery(req)
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.Equal(t, []tracker.EventKind{tracker.EventFrameStart, tracker.EventFrameEnd}, filter.Kinds)
	assert.Equal(t, []types.NodeID{"n1"}, filter.NodeIDs)
}
