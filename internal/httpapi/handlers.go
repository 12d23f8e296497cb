// Package httpapi is the HTTP surface (spec.md §6): JSON handlers for
// ingest, query, metric management, and dashboards, wired to the ring
// storage engine, metric registry, counter ingester, query orchestrator,
// and dashboard store. Grounded on the teacher's pkg/ingest/handler.go
// method-check-first, context.WithTimeout, httpx.RespondError pattern.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ringtsdb/ringtsdb/internal/config"
	"github.com/ringtsdb/ringtsdb/internal/counter"
	"github.com/ringtsdb/ringtsdb/internal/dashboards"
	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/httpx"
	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/orchestrator"
	"github.com/ringtsdb/ringtsdb/internal/registry"
	"github.com/ringtsdb/ringtsdb/internal/ring"
)

// Server bundles every component the HTTP surface dispatches to.
type Server struct {
	Registry     *registry.Registry
	Ring         *ring.Ring
	Counter      *counter.Counter
	Orchestrator *orchestrator.Orchestrator
	Dashboards   *dashboards.Dashboards
	Hub          *Hub
}

// New creates a Server over the given components.
func New(reg *registry.Registry, rg *ring.Ring, ctr *counter.Counter, orch *orchestrator.Orchestrator, dash *dashboards.Dashboards, hub *Hub) *Server {
	return &Server{Registry: reg, Ring: rg, Counter: ctr, Orchestrator: orch, Dashboards: dash, Hub: hub}
}

// Router builds the gorilla/mux router for every endpoint in spec.md §6.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/ingest/gauge", s.handleIngestGauge).Methods(http.MethodPost)
	v1.HandleFunc("/ingest/counter", s.handleIngestCounter).Methods(http.MethodPost)
	v1.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	v1.HandleFunc("/metrics", s.handleListMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/metrics/lookup", s.handleLookupMetrics).Methods(http.MethodPost)
	v1.HandleFunc("/metrics/names", s.handleMetricNames).Methods(http.MethodGet)
	v1.HandleFunc("/metrics/tag-values", s.handleTagValues).Methods(http.MethodPost)
	v1.HandleFunc("/metrics/{id}/series", s.handleSeries).Methods(http.MethodGet)
	v1.HandleFunc("/metrics/{id}/retention", s.handleRetention).Methods(http.MethodPost)
	v1.HandleFunc("/metrics/{id}", s.handleDeleteMetric).Methods(http.MethodDelete)
	v1.HandleFunc("/dashboards", s.handleDashboards).Methods(http.MethodGet, http.MethodPost)
	v1.HandleFunc("/dashboards/{slug}", s.handleDashboard).Methods(http.MethodGet)
	v1.HandleFunc("/ws", s.Hub.ServeWS).Methods(http.MethodGet)

	return r
}

// resolveOrCreate implements spec.md §9's tagged-variant ingest boundary:
// either metric_id is set, in which case it must already exist, or name is
// set, in which case the metric is created on first use via Ensure.
func (s *Server) resolveOrCreate(ctx context.Context, metricID *uint64, name string, tags map[string]string, mtype kvcodec.MetricType, step, slots uint32) (uint64, error) {
	if metricID != nil {
		desc, err := s.Registry.Get(ctx, *metricID)
		if err != nil {
			return 0, err
		}
		if desc.Type != mtype {
			return 0, errs.New(errs.TypeMismatch, "metric %d is %s, not %s", *metricID, desc.Type, mtype)
		}
		return *metricID, nil
	}
	if name == "" {
		return 0, errs.New(errs.Validation, "either metric_id or name must be set")
	}
	if step == 0 {
		step = config.DefaultStep
	}
	if slots == 0 {
		slots = config.DefaultSlots
	}
	return s.Registry.Ensure(ctx, name, tags, mtype, step, slots)
}

func (s *Server) handleIngestGauge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	var req ingestGaugeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	metricID, err := s.resolveOrCreate(ctx, req.MetricID, req.Name, req.Tags, kvcodec.Gauge, req.Step, req.Slots)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := s.Ring.WriteSample(ctx, metricID, req.Ts, req.Value); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s.Hub.NotifyWrite(WriteEvent{MetricID: metricID, Ts: req.Ts, Value: req.Value})
	httpx.RespondJSON(w, http.StatusOK, ingestResponse{MetricID: metricID})
}

func (s *Server) handleIngestCounter(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	var req ingestCounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	metricID, err := s.resolveOrCreate(ctx, req.MetricID, req.Name, req.Tags, kvcodec.Counter, req.Step, req.Slots)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := s.Counter.IngestCounter(ctx, metricID, req.Ts, req.RawValue); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s.Hub.NotifyWrite(WriteEvent{MetricID: metricID, Ts: req.Ts, Value: req.RawValue})
	httpx.RespondJSON(w, http.StatusOK, ingestResponse{MetricID: metricID})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	selectors := make([]orchestrator.Selector, 0, len(req.Selectors))
	for _, sel := range req.Selectors {
		selectors = append(selectors, orchestrator.Selector{Name: sel.Name, Tags: sel.Tags, Alias: sel.Alias})
	}

	rows, err := s.Orchestrator.Query(ctx, orchestrator.Request{
		MetricIDs: req.MetricIDs,
		Selectors: selectors,
		StartTS:   req.StartTS,
		EndTS:     req.EndTS,
		SQL:       req.SQL,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]interface{}(row))
	}
	httpx.RespondJSON(w, http.StatusOK, queryResponse{Rows: out, SQL: req.SQL})
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	descs, err := s.Registry.Lookup(ctx, "", nil, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]descriptorView, 0, len(descs))
	for _, d := range descs {
		views = append(views, toDescriptorView(d))
	}
	httpx.RespondJSON(w, http.StatusOK, metricsListResponse{Metrics: views})
}

func (s *Server) handleLookupMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	descs, err := s.Registry.Lookup(ctx, req.Name, req.Tags, req.Limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]descriptorView, 0, len(descs))
	for _, d := range descs {
		views = append(views, toDescriptorView(d))
	}
	httpx.RespondJSON(w, http.StatusOK, metricsListResponse{Metrics: views})
}

func (s *Server) handleMetricNames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	descs, err := s.Registry.Lookup(ctx, "", nil, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	seen := make(map[string]bool)
	var names []string
	for _, d := range descs {
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	httpx.RespondJSON(w, http.StatusOK, namesResponse{Names: names})
}

func (s *Server) handleTagValues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req tagValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	descs, err := s.Registry.Lookup(ctx, req.Name, nil, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tags := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, d := range descs {
		for k, v := range d.Tags {
			if seen[k] == nil {
				seen[k] = make(map[string]bool)
			}
			if !seen[k][v] {
				seen[k][v] = true
				tags[k] = append(tags[k], v)
			}
		}
	}
	httpx.RespondJSON(w, http.StatusOK, tagValuesResponse{Tags: tags})
}

func parseMetricID(r *http.Request) (uint64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errs.New(errs.Validation, "invalid metric id %q", raw)
	}
	return id, nil
}

// handleSeries implements GET /metrics/{id}/series?start_ts&end_ts&bucket:
// pre-bucketed rows, with counters auto-rated via bucket_rate (spec.md §6).
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	metricID, err := parseMetricID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	startTS, err := strconv.ParseInt(q.Get("start_ts"), 10, 64)
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "start_ts must be an integer")
		return
	}
	endTS, err := strconv.ParseInt(q.Get("end_ts"), 10, 64)
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "end_ts must be an integer")
		return
	}

	desc, err := s.Registry.Get(ctx, metricID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	points, err := s.Ring.ReadRange(ctx, metricID, startTS, endTS)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	bucketWidth := int64(0)
	if raw := q.Get("bucket"); raw != "" {
		bucketWidth, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, "bucket must be an integer")
			return
		}
	}

	var out []seriesPoint
	if bucketWidth <= 0 {
		out = make([]seriesPoint, 0, len(points))
		for _, p := range points {
			out = append(out, seriesPoint{Ts: p.Ts, Value: p.Value})
		}
	} else if desc.Type == kvcodec.Counter {
		out = bucketCounterRate(points, bucketWidth)
	} else {
		out = bucketLastValue(points, bucketWidth)
	}

	httpx.RespondJSON(w, http.StatusOK, seriesResponse{MetricID: metricID, Points: out})
}

// bucketLastValue groups points into fixed-width buckets, keeping the
// latest sample observed in each bucket, matching ts_bucket/align_time
// semantics (spec.md §4.F) for gauge series.
func bucketLastValue(points []ring.Point, width int64) []seriesPoint {
	buckets := make(map[int64]ring.Point)
	for _, p := range points {
		b := floorDiv(p.Ts, width) * width
		if existing, ok := buckets[b]; !ok || p.Ts > existing.Ts {
			buckets[b] = p
		}
	}
	return sortedBucketPoints(buckets)
}

// bucketCounterRate groups points into fixed-width buckets by last value
// observed, then derives a per-bucket rate via bucket_rate's clamp-to-zero
// reset policy (spec.md §4.D, scenario 3).
func bucketCounterRate(points []ring.Point, width int64) []seriesPoint {
	buckets := make(map[int64]ring.Point)
	for _, p := range points {
		b := floorDiv(p.Ts, width) * width
		if existing, ok := buckets[b]; !ok || p.Ts > existing.Ts {
			buckets[b] = p
		}
	}
	keys := sortedBucketKeys(buckets)
	out := make([]seriesPoint, 0, len(keys))
	var prev float64
	havePrev := false
	for _, b := range keys {
		curr := buckets[b].Value
		if !havePrev {
			havePrev = true
			prev = curr
			continue
		}
		delta := curr - prev
		if delta < 0 {
			delta = 0
		}
		out = append(out, seriesPoint{Ts: b, Value: delta / float64(width)})
		prev = curr
	}
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func sortedBucketKeys(buckets map[int64]ring.Point) []int64 {
	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func sortedBucketPoints(buckets map[int64]ring.Point) []seriesPoint {
	keys := sortedBucketKeys(buckets)
	out := make([]seriesPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, seriesPoint{Ts: k, Value: buckets[k].Value})
	}
	return out
}

func (s *Server) handleRetention(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.RetentionTimeout)
	defer cancel()

	metricID, err := parseMetricID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req retentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.Registry.RetentionRewrite(ctx, metricID, req.Step, req.Slots); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleDeleteMetric(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	metricID, err := parseMetricID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := s.Registry.Delete(ctx, metricID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleDashboards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		slugs, err := s.Dashboards.List(ctx)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, dashboardsListResponse{Slugs: slugs})
	case http.MethodPost:
		var req dashboardPutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		body, err := json.Marshal(req.Body)
		if err != nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, "invalid dashboard body: "+err.Error())
			return
		}
		if err := s.Dashboards.Put(ctx, req.Slug, body); err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := mux.Vars(r)["slug"]
	body, err := s.Dashboards.Get(ctx, slug)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
