package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/ringtsdb/ringtsdb/internal/counter"
	"github.com/ringtsdb/ringtsdb/internal/dashboards"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
	"github.com/ringtsdb/ringtsdb/internal/orchestrator"
	"github.com/ringtsdb/ringtsdb/internal/registry"
	"github.com/ringtsdb/ringtsdb/internal/ring"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	backend := kvstore.NewMemoryBackend()
	reg := registry.New(backend)
	rg := ring.New(backend, reg)
	ctr := counter.New(backend, reg, rg)
	orch := orchestrator.New(reg, rg)
	dash := dashboards.New(backend)
	return New(reg, rg, ctr, orch, dash, NewHub())
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestIngestGaugeCreatesMetricOnFirstUse(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/v1/ingest/gauge", ingestGaugeRequest{
		Name: "cpu", Tags: map[string]string{"host": "a"}, Ts: 100, Value: 1.5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.MetricID == 0 {
		t.Errorf("expected nonzero metric_id")
	}
}

func TestIngestGaugeRejectsMissingNameAndID(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/v1/ingest/gauge", ingestGaugeRequest{Ts: 1, Value: 1})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestIngestCounterThenGaugeMismatchConflicts(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/v1/ingest/counter", ingestCounterRequest{
		Name: "requests", Ts: 0, RawValue: 10,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr2 := doJSON(t, srv, http.MethodPost, "/v1/ingest/gauge", ingestGaugeRequest{
		Name: "requests", Ts: 1, Value: 1,
	})
	if rr2.Code != http.StatusConflict {
		t.Errorf("expected 409 on type mismatch, got %d: %s", rr2.Code, rr2.Body.String())
	}
}

func TestSeriesEndpointReturnsOverwrittenRing(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/v1/ingest/gauge", ingestGaugeRequest{
		Name: "cpu", Step: 1, Slots: 4, Ts: 100, Value: 1,
	})
	var resp ingestResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	for _, ts := range []int64{101, 102, 103, 104} {
		doJSON(t, srv, http.MethodPost, "/v1/ingest/gauge", ingestGaugeRequest{
			MetricID: &resp.MetricID, Ts: ts, Value: float64(ts - 99),
		})
	}

	// end_ts=104 is the literal boundary from spec scenario 1: the closed
	// interval [100,104] must include the ts=104 endpoint.
	req := httptest.NewRequest(http.MethodGet, "/v1/metrics/"+itoa(resp.MetricID)+"/series?start_ts=100&end_ts=104", nil)
	rr2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr2, req)
	if rr2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr2.Code, rr2.Body.String())
	}
	var series seriesResponse
	if err := json.Unmarshal(rr2.Body.Bytes(), &series); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	if len(series.Points) != 4 {
		t.Fatalf("expected 4 points (ts=100 overwritten, ts=104 included), got %d: %+v", len(series.Points), series.Points)
	}
	if series.Points[0].Ts != 101 {
		t.Errorf("expected first point ts=101, got %d", series.Points[0].Ts)
	}
	if series.Points[len(series.Points)-1].Ts != 104 {
		t.Errorf("expected last point ts=104 (inclusive end), got %d", series.Points[len(series.Points)-1].Ts)
	}
}

func TestDashboardsPutListGet(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/v1/dashboards", dashboardPutRequest{
		Slug: "overview", Body: map[string]interface{}{"panels": []interface{}{}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr2 := httptest.NewRequest(http.MethodGet, "/v1/dashboards", nil)
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, rr2)
	var list dashboardsListResponse
	json.Unmarshal(rec2.Body.Bytes(), &list)
	if len(list.Slugs) != 1 || list.Slugs[0] != "overview" {
		t.Errorf("expected [overview], got %v", list.Slugs)
	}

	rr3 := httptest.NewRequest(http.MethodGet, "/v1/dashboards/overview", nil)
	rec3 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec3, rr3)
	if rec3.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec3.Code)
	}
}

func TestDeleteMetricIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodPost, "/v1/ingest/gauge", ingestGaugeRequest{Name: "cpu", Ts: 1, Value: 1})
	var resp ingestResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)

	req := httptest.NewRequest(http.MethodDelete, "/v1/metrics/"+itoa(resp.MetricID), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodDelete, "/v1/metrics/"+itoa(resp.MetricID), nil)
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat delete, got %d", rec2.Code)
	}
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}
