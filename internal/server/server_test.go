package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/rankgrid/internal/engine/oracle"
	"github.com/rendis/rankgrid/internal/engine/resource"
	"github.com/rendis/rankgrid/internal/engine/scanner"
	"github.com/rendis/rankgrid/internal/engine/storage"
	"github.com/rendis/rankgrid/internal/metrics"
)

func noSleep(context.Context, time.Duration) error { return nil }

// rankOracle ranks the target 2nd everywhere except the cells listed in fail.
func rankOracle(fail ...int) oracle.Oracle {
	call := 0
	return oracle.Func(func(ctx context.Context, q oracle.Query) (oracle.Ranking, error) {
		call++
		for _, f := range fail {
			if f == call {
				return oracle.Ranking{}, oracle.NewError(oracle.KindUpstream, errors.New("boom"))
			}
		}
		return oracle.Ranking{Rank: 2, Competitors: []string{"Rival Dental"}}, nil
	})
}

type testEnv struct {
	srv   *Server
	store *resource.Handle[*storage.Store]
}

func newTestServer(t *testing.T, o oracle.Oracle, withStore bool) testEnv {
	t.Helper()
	var handle *resource.Handle[*storage.Store]
	if withStore {
		dbPath := filepath.Join(t.TempDir(), "rankgrid.db")
		handle = resource.New(func(context.Context) (*storage.Store, error) {
			return storage.NewStore(dbPath)
		}, (*storage.Store).Close)
		t.Cleanup(func() { _ = handle.Close() })
	}
	srv := New(Dependencies{
		Scanner: scanner.New(o, scanner.WithSleep(noSleep), scanner.WithDelay(0)),
		Store:   handle,
		Metrics: metrics.New(),
		Version: "test",
	})
	return testEnv{srv: srv, store: handle}
}

func do(t *testing.T, srv *Server, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeError(t *testing.T, data []byte) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestHealth(t *testing.T) {
	env := newTestServer(t, rankOracle(), true)
	resp, data := do(t, env.srv, "GET", "/v1/health", "")
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "ok", body["checks"].(map[string]any)["store"])
}

func TestProbe(t *testing.T) {
	env := newTestServer(t, rankOracle(), false)
	resp, data := do(t, env.srv, "POST", "/v1/probe", `{"keyword":"dentist","lat":37.5,"lng":127.0,"target_id":"p1"}`)
	require.Equal(t, 200, resp.StatusCode, string(data))

	var body struct {
		Cell struct {
			Rank        int      `json:"rank"`
			Competitors []string `json:"competitors"`
		} `json:"cell"`
		Severity string `json:"severity"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, 2, body.Cell.Rank)
	assert.Equal(t, "excellent", body.Severity)
}

func TestProbe_Validation(t *testing.T) {
	env := newTestServer(t, rankOracle(), false)

	resp, data := do(t, env.srv, "POST", "/v1/probe", `{"keyword":"dentist","target_id":"p1"}`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "bad_request", decodeError(t, data).Code)

	resp, data = do(t, env.srv, "POST", "/v1/probe", `{"keyword":"","lat":1,"lng":1,"target_id":"p1"}`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, decodeError(t, data).Message, "keyword")

	resp, _ = do(t, env.srv, "POST", "/v1/probe", `{not json`)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestCreateScan_StoresAndReturnsSummary(t *testing.T) {
	env := newTestServer(t, rankOracle(3, 6), true)

	resp, data := do(t, env.srv, "POST", "/v1/scans",
		`{"keyword":"dentist","lat":37.5,"lng":127.0,"target_id":"p1","business_name":"Smile","grid_size":3}`)
	require.Equal(t, 201, resp.StatusCode, string(data))

	var body ScanResponse
	require.NoError(t, json.Unmarshal(data, &body))
	require.NotNil(t, body.Scan)
	assert.True(t, body.Stored)
	assert.Len(t, body.Scan.Cells, 9)
	assert.True(t, body.Scan.Cells[2].Failed)
	assert.True(t, body.Scan.Cells[5].Failed)
	assert.Equal(t, 7, body.Summary.Stats.RankedCells)
	assert.Equal(t, 2, body.Summary.Stats.FailedCells)
	assert.Equal(t, "/v1/scans/"+body.Scan.ID, resp.Header.Get("Location"))

	resp, data = do(t, env.srv, "GET", "/v1/scans/"+body.Scan.ID, "")
	require.Equal(t, 200, resp.StatusCode)
	var stored ScanResponse
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, body.Scan.ID, stored.Scan.ID)
	assert.Len(t, stored.Scan.Cells, 9)
}

func TestCreateScan_WithoutStore(t *testing.T) {
	env := newTestServer(t, rankOracle(), false)
	resp, data := do(t, env.srv, "POST", "/v1/scans", `{"keyword":"dentist","lat":1,"lng":2,"target_id":"p1"}`)
	require.Equal(t, 201, resp.StatusCode)

	var body ScanResponse
	require.NoError(t, json.Unmarshal(data, &body))
	assert.False(t, body.Stored)
	assert.Equal(t, 3, body.Scan.Spec.Size)

	resp, _ = do(t, env.srv, "GET", "/v1/scans", "")
	assert.Equal(t, 503, resp.StatusCode)
}

func TestCreateScan_Invalid(t *testing.T) {
	env := newTestServer(t, rankOracle(), true)
	resp, data := do(t, env.srv, "POST", "/v1/scans", `{"keyword":"dentist","lat":95,"lng":2,"target_id":"p1"}`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, decodeError(t, data).Message, "lat")
}

func TestCreateScan_ClampsGridSize(t *testing.T) {
	env := newTestServer(t, rankOracle(), false)
	resp, data := do(t, env.srv, "POST", "/v1/scans", `{"keyword":"dentist","lat":1,"lng":2,"target_id":"p1","grid_size":-1}`)
	require.Equal(t, 201, resp.StatusCode, string(data))

	var body ScanResponse
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, 3, body.Scan.Spec.Size)
	assert.Len(t, body.Scan.Cells, 9)
}

func TestListAndDeleteScans(t *testing.T) {
	env := newTestServer(t, rankOracle(), true)
	for _, kw := range []string{"dentist", "pizza"} {
		resp, _ := do(t, env.srv, "POST", "/v1/scans", `{"keyword":"`+kw+`","lat":1,"lng":2,"target_id":"p1"}`)
		require.Equal(t, 201, resp.StatusCode)
	}

	resp, data := do(t, env.srv, "GET", "/v1/scans?keyword=dent", "")
	require.Equal(t, 200, resp.StatusCode)
	var list struct {
		Scans []struct {
			ID      string `json:"id"`
			Keyword string `json:"keyword"`
		} `json:"scans"`
	}
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Scans, 1)
	assert.Equal(t, "dentist", list.Scans[0].Keyword)

	resp, _ = do(t, env.srv, "DELETE", "/v1/scans/"+list.Scans[0].ID, "")
	assert.Equal(t, 204, resp.StatusCode)
	resp, _ = do(t, env.srv, "DELETE", "/v1/scans/"+list.Scans[0].ID, "")
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = do(t, env.srv, "GET", "/v1/scans?limit=0", "")
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetScan_NotFound(t *testing.T) {
	env := newTestServer(t, rankOracle(), true)
	resp, data := do(t, env.srv, "GET", "/v1/scans/missing", "")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Code)
}

func TestExportScan(t *testing.T) {
	env := newTestServer(t, rankOracle(), true)
	resp, data := do(t, env.srv, "POST", "/v1/scans", `{"keyword":"dentist","lat":1,"lng":2,"target_id":"p1"}`)
	require.Equal(t, 201, resp.StatusCode)
	var created ScanResponse
	require.NoError(t, json.Unmarshal(data, &created))

	resp, data = do(t, env.srv, "GET", "/v1/scans/"+created.Scan.ID+"/geojson", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	var fc struct {
		Type     string `json:"type"`
		Features []any  `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 10)

	resp, data = do(t, env.srv, "GET", "/v1/scans/"+created.Scan.ID+"/csv", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Equal(t, 10, strings.Count(string(data), "\n"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestServer(t, rankOracle(), false)
	resp, data := do(t, env.srv, "GET", "/v2/nothing", "")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t, rankOracle(), false)
	do(t, env.srv, "GET", "/v1/health", "")

	resp, data := do(t, env.srv, "GET", "/metrics", "")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(data), "rankgrid_http_requests_total")
}

func TestRateLimit(t *testing.T) {
	srv := New(Dependencies{
		Scanner:            scanner.New(rankOracle(), scanner.WithSleep(noSleep)),
		RateLimitPerMinute: 2,
	})
	body := `{"keyword":"dentist","lat":1,"lng":2,"target_id":"p1"}`
	for i := 0; i < 2; i++ {
		resp, _ := do(t, srv, "POST", "/v1/probe", body)
		require.Equal(t, 200, resp.StatusCode)
	}
	resp, data := do(t, srv, "POST", "/v1/probe", body)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "rate_limited", decodeError(t, data).Code)

	resp, _ = do(t, srv, "GET", "/v1/health", "")
	assert.Equal(t, 200, resp.StatusCode, "health is not rate limited")
}
