package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/asyncflow/internal/testutils"
	"github.com/jzx17/asyncflow/pkg/pipeline"
	"github.com/jzx17/asyncflow/pkg/stats"
	"github.com/jzx17/asyncflow/pkg/types"
	"github.com/jzx17/asyncflow/pkg/worker"
)

func fastPipelineConfig() *pipeline.Config {
	return &pipeline.Config{
		Worker: worker.Config{
			ProduceDelayMin:  2 * time.Millisecond,
			ProduceDelayMax:  5 * time.Millisecond,
			ConsumeDelayMin:  time.Millisecond,
			ConsumeDelayMax:  3 * time.Millisecond,
			ErrorProbability: 0.1,
		},
		InitialProducers: 2,
		InitialConsumers: 3,
	}
}

type fixture struct {
	controller *pipeline.Controller
	server     *Server
	http       *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithClock(t, nil)
}

func newFixtureWithClock(t *testing.T, clock types.Clock) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics, err := stats.NewMetrics(reg, "asyncflow")
	require.NoError(t, err)

	logger, _ := testutils.Logger()
	controller, err := pipeline.New(fastPipelineConfig(),
		pipeline.WithLogger(logger), pipeline.WithMetrics(metrics))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = controller.Stop()
		_ = controller.AwaitStopped(testutils.Context(t, 10*time.Second))
	})

	server, err := NewServer(controller, Config{PushInterval: 10 * time.Millisecond, Clock: clock}, reg, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.Close()
		ts.Close()
	})

	return &fixture{controller: controller, server: server, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (f *fixture) stats(t *testing.T) StatsView {
	t.Helper()

	status, data := f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, status)

	var view StatsView
	require.NoError(t, json.Unmarshal(data, &view))
	return view
}

func TestNewServer_NilPipeline(t *testing.T) {
	s, err := NewServer(nil, DefaultConfig(), nil, nil)
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestGetStats_Idle(t *testing.T) {
	f := newFixture(t)

	status, data := f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, status)

	// empty lists encode as arrays, not null
	body := string(data)
	assert.Contains(t, body, `"producers":[]`)
	assert.Contains(t, body, `"consumers":[]`)

	view := f.stats(t)
	assert.Equal(t, "Idle", view.State)
	assert.Zero(t, view.Produced)
	assert.Empty(t, view.RunID)
}

func TestStart_DefaultsAndConflict(t *testing.T) {
	f := newFixture(t)

	status, data := f.do(t, http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, status, string(data))

	var view StatsView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, "Running", view.State)
	assert.NotEmpty(t, view.RunID)
	assert.Equal(t, []string{"P1", "P2"}, view.LiveProducers)
	assert.Equal(t, []string{"C1", "C2", "C3"}, view.LiveConsumers)

	status, _ = f.do(t, http.MethodPost, "/api/start", "")
	assert.Equal(t, http.StatusConflict, status)
}

func TestStart_WithBody(t *testing.T) {
	tests := []struct {
		name              string
		body              string
		expectedStatus    int
		expectedProducers int
		expectedConsumers int
	}{
		{"explicit counts", `{"producers":1,"consumers":4}`, http.StatusOK, 1, 4},
		{"missing consumers uses configured", `{"producers":3}`, http.StatusOK, 3, 3},
		{"zero workers", `{"producers":0,"consumers":0}`, http.StatusOK, 0, 0},
		{"negative count", `{"producers":-1,"consumers":1}`, http.StatusBadRequest, 0, 0},
		{"malformed body", `{"producers":`, http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			status, data := f.do(t, http.MethodPost, "/api/start", tt.body)
			require.Equal(t, tt.expectedStatus, status, string(data))
			if tt.expectedStatus != http.StatusOK {
				assert.Contains(t, string(data), "error")
				assert.Equal(t, "Idle", f.stats(t).State)
				return
			}

			var view StatsView
			require.NoError(t, json.Unmarshal(data, &view))
			assert.Len(t, view.LiveProducers, tt.expectedProducers)
			assert.Len(t, view.LiveConsumers, tt.expectedConsumers)
		})
	}
}

func TestWorkerEndpoints(t *testing.T) {
	f := newFixture(t)

	// not running
	status, _ := f.do(t, http.MethodPost, "/api/producers", "")
	assert.Equal(t, http.StatusConflict, status)

	status, data := f.do(t, http.MethodDelete, "/api/consumers", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"name":"","removed":false}`, string(data))

	status, _ = f.do(t, http.MethodPost, "/api/start", `{"producers":1,"consumers":1}`)
	require.Equal(t, http.StatusOK, status)

	status, data = f.do(t, http.MethodPost, "/api/producers", "")
	require.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"name":"P2"}`, string(data))

	status, data = f.do(t, http.MethodPost, "/api/consumers", "")
	require.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"name":"C2"}`, string(data))

	status, data = f.do(t, http.MethodDelete, "/api/producers", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"name":"P2","removed":true}`, string(data))

	view := f.stats(t)
	assert.Equal(t, []string{"P1"}, view.LiveProducers)
	assert.Equal(t, []string{"C1", "C2"}, view.LiveConsumers)

	require.Len(t, view.Workers, 3)
	names := make([]string, 0, len(view.Workers))
	for _, w := range view.Workers {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"P1", "C1", "C2"}, names)
	assert.Equal(t, "producer", view.Workers[0].Role)
	assert.Contains(t, []string{"idle", "working"}, view.Workers[1].State)

	testutils.Eventually(t, func() bool {
		w := f.stats(t).Workers[0]
		return w.Processed >= 1 && w.LastItemAt != nil
	}, 2*time.Second)
}

func TestStop_DrainsAndReports(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, status)

	testutils.Eventually(t, func() bool { return f.stats(t).Consumed >= 5 }, 5*time.Second)

	status, data := f.do(t, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, status)

	var view StatsView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, "Stopped", view.State)
	assert.Empty(t, view.LiveProducers)

	require.NoError(t, f.controller.AwaitStopped(testutils.Context(t, 5*time.Second)))
	final := f.stats(t)
	assert.Equal(t, final.Produced, final.Consumed, "drain consumed every produced item")
	assert.Zero(t, final.QueueLength)

	// stopping again is harmless
	status, _ = f.do(t, http.MethodPost, "/api/stop", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, status)
	testutils.Eventually(t, func() bool { return f.stats(t).Consumed >= 1 }, 5*time.Second)

	status, data := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)

	body := string(data)
	assert.Contains(t, body, "asyncflow_items_produced_total")
	assert.Contains(t, body, "asyncflow_items_consumed_total")
	assert.Contains(t, body, "asyncflow_queue_depth")
	assert.Contains(t, body, `asyncflow_workers{role="consumer"} 3`)
}

func TestMetricsEndpoint_DisabledWithoutGatherer(t *testing.T) {
	controller, err := pipeline.New(fastPipelineConfig())
	require.NoError(t, err)

	server, err := NewServer(controller, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func dialStream(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readView(t *testing.T, conn *websocket.Conn) StatsView {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var view StatsView
	require.NoError(t, conn.ReadJSON(&view))
	return view
}

func TestStream_PushesOnChange(t *testing.T) {
	f := newFixture(t)
	conn := dialStream(t, f)

	first := readView(t, conn)
	assert.Equal(t, "Idle", first.State)

	status, _ := f.do(t, http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, status)

	var latest StatsView
	for i := 0; i < 200; i++ {
		latest = readView(t, conn)
		if latest.Consumed >= 3 {
			break
		}
	}
	assert.Equal(t, "Running", latest.State)
	assert.GreaterOrEqual(t, latest.Consumed, int64(3))
	assert.LessOrEqual(t, latest.Consumed, latest.Produced)
}

func TestStream_ClosedByServer(t *testing.T) {
	f := newFixture(t)
	conn := dialStream(t, f)
	readView(t, conn)

	f.server.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestStream_PushesOnlyOnTick(t *testing.T) {
	mock := testutils.NewMockClock(t)
	clock := testutils.NewClockWrapper(mock)
	f := newFixtureWithClock(t, clock)
	ctx := testutils.Context(t, 10*time.Second)

	conn := dialStream(t, f)
	readView(t, conn)
	require.NoError(t, conn.SetReadDeadline(time.Time{}))

	views := make(chan StatsView, 64)
	go func() {
		defer close(views)
		for {
			var v StatsView
			if err := conn.ReadJSON(&v); err != nil {
				return
			}
			views <- v
		}
	}()

	status, _ := f.do(t, http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, status)
	testutils.Eventually(t, func() bool { return f.controller.Snapshot().Produced >= 3 }, 5*time.Second)

	// notifications alone never push while the mock clock stands still
	select {
	case v := <-views:
		t.Fatalf("pushed without a tick: %+v", v)
	case <-time.After(50 * time.Millisecond):
	}

	for i := 0; i < 50; i++ {
		clock.Advance(ctx, 10*time.Millisecond)
		select {
		case v, ok := <-views:
			require.True(t, ok, "stream closed")
			assert.Equal(t, "Running", v.State)
			assert.GreaterOrEqual(t, v.Produced, int64(3))
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("no push after advancing the push interval")
}

func TestStream_RefusedAfterClose(t *testing.T) {
	f := newFixture(t)
	f.server.Close()

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
