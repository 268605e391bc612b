package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambigeara/sadb/pkg/lifecycle"
	"github.com/sambigeara/sadb/pkg/router"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	r, err := router.New(store.NewMemorySet())
	require.NoError(t, err)
	s, err := New(r)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const keyedTC = `{"spi":8,"scid":44,"vcid":1,"tfvn":0,"mapid":0,"serviceType":"encryption","ekid":"kek-8","ecs":"0x01"}`

func TestHealthzAndRequestID(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "abc-123")
	resp2, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "abc-123", resp2.Header.Get(requestIDHeader))
}

func TestHandlerPanicReturns500(t *testing.T) {
	r, err := router.New(store.NewMemorySet())
	require.NoError(t, err)
	s, err := New(r)
	require.NoError(t, err)
	mux, ok := s.Handler().(*chi.Mux)
	require.True(t, ok)
	mux.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/boom", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "panic-1")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "panic-1", resp.Header.Get(requestIDHeader))
}

func TestOversizedAntiReplayIsRejected(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"huge window", `{"spi":1,"scid":1,"vcid":1,"tfvn":0,"arsnw":4611686018427387904}`},
		{"window over limit", `{"spi":1,"scid":1,"vcid":1,"tfvn":0,"arsnw":4096}`},
		{"huge counter", `{"spi":1,"scid":1,"vcid":1,"tfvn":0,"arsnLen":4611686018427387904}`},
		{"counter over limit", `{"spi":1,"scid":1,"vcid":1,"tfvn":0,"arsnLen":21}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, http.MethodPost, "/v1/sa/tm", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestNumericServiceType(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/sa/tc",
		`{"spi":8,"scid":44,"vcid":1,"tfvn":0,"mapid":0,"serviceType":1,"ekid":"kek-8","ecs":"0x01"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, types.ServiceEncryption, decode[types.SecurityAssociation](t, resp).ServiceType)

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc", `{"spi":9,"scid":44,"vcid":2,"tfvn":0,"mapid":0,"serviceType":7}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateGetAndDuplicate(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/sa/tc", keyedTC)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sa := decode[types.SecurityAssociation](t, resp)
	assert.Equal(t, types.SAStateKeyed, sa.State)
	assert.Equal(t, uint16(8), sa.SPI)

	resp = do(t, ts, http.MethodGet, "/v1/sa/tc/44/8", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[types.SecurityAssociation](t, resp)
	assert.Equal(t, "kek-8", got.EKID)

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc", keyedTC)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, lifecycle.KindConflict, body.Kind)
	assert.Contains(t, body.Error, "already exists")

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc?force=true", keyedTC)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, ts, http.MethodPost, "/v1/sa/tc", keyedTC).StatusCode)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   lifecycle.Kind
	}{
		{"unknown type", http.MethodGet, "/v1/sa/xx", "", http.StatusBadRequest, lifecycle.KindValidation},
		{"all is query only", http.MethodPost, "/v1/sa/all", keyedTC, http.StatusBadRequest, lifecycle.KindValidation},
		{"spi out of range", http.MethodGet, "/v1/sa/tc/44/70000", "", http.StatusBadRequest, lifecycle.KindValidation},
		{"missing", http.MethodGet, "/v1/sa/tc/44/9", "", http.StatusNotFound, lifecycle.KindNotFound},
		{"unknown field", http.MethodPost, "/v1/sa/tc", `{"spi":2,"scid":1,"colour":"red"}`, http.StatusBadRequest, lifecycle.KindValidation},
		{"not json", http.MethodPost, "/v1/sa/tc", `{`, http.StatusBadRequest, lifecycle.KindValidation},
		{"bad hex", http.MethodPost, "/v1/sa/tc", `{"spi":2,"scid":1,"vcid":1,"tfvn":0,"mapid":0,"ecs":"zz"}`, http.StatusBadRequest, lifecycle.KindValidation},
		{"stop keyed", http.MethodPost, "/v1/sa/tc/44/8/stop", "", http.StatusConflict, lifecycle.KindState},
		{"bad force", http.MethodPost, "/v1/sa/tc/44/8/start?force=maybe", "", http.StatusBadRequest, lifecycle.KindValidation},
		{"bad format", http.MethodGet, "/v1/sa/tc?format=describe", "", http.StatusBadRequest, lifecycle.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			body := decode[errorBody](t, resp)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestValidationViolationsAreReported(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/sa/tc", `{"spi":2,"scid":1,"vcid":1,"tfvn":0,"mapid":0,"ecs":"zz"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	require.NotEmpty(t, body.Violations)
	var fields []string
	for _, v := range body.Violations {
		fields = append(fields, v.Field)
	}
	assert.Contains(t, fields, "ecs")
}

func TestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusCreated, do(t, ts, http.MethodPost, "/v1/sa/tc", keyedTC).StatusCode)
	require.Equal(t, http.StatusCreated,
		do(t, ts, http.MethodPost, "/v1/sa/tc", `{"spi":9,"scid":44,"vcid":1,"tfvn":0,"mapid":0}`).StatusCode)

	resp := do(t, ts, http.MethodPost, "/v1/sa/tc/44/9/key", `{"ekid":"kek-9","ecs":"0x01"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.SAStateKeyed, decode[types.SecurityAssociation](t, resp).State)

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/v1/sa/tc/44/8/start", "").StatusCode)

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc/44/9/start", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decode[errorBody](t, resp).Error, "operational SPI 8")

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc/44/9/start?force=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	started := decode[struct {
		SA      types.SecurityAssociation    `json:"sa"`
		Stopped []types.SecurityAssociation `json:"stopped"`
	}](t, resp)
	assert.Equal(t, types.SAStateOperational, started.SA.State)
	require.Len(t, started.Stopped, 1)
	assert.Equal(t, uint16(8), started.Stopped[0].SPI)

	resp = do(t, ts, http.MethodGet, "/v1/sa/tc?active=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	active := decode[[]types.SecurityAssociation](t, resp)
	require.Len(t, active, 1)
	assert.Equal(t, uint16(9), active[0].SPI)

	resp = do(t, ts, http.MethodPatch, "/v1/sa/tc/44/8", `{"arsnw":8}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 8, decode[types.SecurityAssociation](t, resp).ARSNW)

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/v1/sa/tc/44/9/stop", "").StatusCode)

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc/44/9/expire", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.SAStateUnkeyed, decode[types.SecurityAssociation](t, resp).State)

	assert.Equal(t, http.StatusNoContent, do(t, ts, http.MethodDelete, "/v1/sa/tc/44/9", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/v1/sa/tc/44/9", "").StatusCode)
}

func TestListAllAndCSV(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusCreated, do(t, ts, http.MethodPost, "/v1/sa/tc", keyedTC).StatusCode)
	require.Equal(t, http.StatusCreated,
		do(t, ts, http.MethodPost, "/v1/sa/aos", `{"spi":3,"scid":44,"vcid":2,"tfvn":1}`).StatusCode)

	resp := do(t, ts, http.MethodGet, "/v1/sa/all", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[[]types.SecurityAssociation](t, resp)
	require.Len(t, all, 2)
	assert.Equal(t, types.FrameTypeTC, all[0].Type)
	assert.Equal(t, types.FrameTypeAOS, all[1].Type)

	resp = do(t, ts, http.MethodGet, "/v1/sa/tm", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]types.SecurityAssociation](t, resp))

	resp = do(t, ts, http.MethodGet, "/v1/sa/all?format=csv&spi=3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "aos,3,44,"))
}

func TestBulk(t *testing.T) {
	ts := newTestServer(t)

	in := "spi,scid,vcid,tfvn,mapid\n1,44,1,0,0\n2,44,2,0,0\n"
	resp := do(t, ts, http.MethodPost, "/v1/sa/tc/bulk", in)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[bulkBody](t, resp)
	assert.Equal(t, "create", body.Op)
	assert.Zero(t, body.Failed)
	require.Len(t, body.Results, 2)
	assert.Equal(t, 2, body.Results[0].Line)

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc/bulk", in)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body = decode[bulkBody](t, resp)
	assert.Equal(t, 2, body.Failed)
	assert.Contains(t, body.Results[0].Error, "already exists")

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc/bulk?op=update", "spi,scid,arsnw\n1,44,9\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[bulkBody](t, resp)
	require.Len(t, body.Results, 1)
	assert.Equal(t, 9, body.Results[0].SA.ARSNW)

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc/bulk?op=merge", in)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/v1/sa/tc/bulk", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	r, err := router.New(store.NewMemorySet())
	require.NoError(t, err)
	s, err := New(r)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/healthz") //nolint:noctx
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
