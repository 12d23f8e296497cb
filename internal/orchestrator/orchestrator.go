// Package orchestrator implements the query orchestrator (spec.md §4.G):
// resolve the caller's metric selection to descriptors, wire them into the
// SQL virtual tables, validate the query touches only the registered
// schema, run it through go-mysql-server, and stream back rows.
package orchestrator

import (
	"context"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	sqle "github.com/dolthub/go-mysql-server"
	"github.com/dolthub/go-mysql-server/sql"

	"github.com/ringtsdb/ringtsdb/internal/config"
	"github.com/ringtsdb/ringtsdb/internal/errs"
	"github.com/ringtsdb/ringtsdb/internal/registry"
	"github.com/ringtsdb/ringtsdb/internal/ring"
	"github.com/ringtsdb/ringtsdb/internal/sqlengine"
	"github.com/ringtsdb/ringtsdb/internal/sqlengine/udf"
)

// Selector resolves to a set of metric ids by (name, tags) rather than an
// explicit id, per spec.md §6 POST /query `selectors`.
type Selector struct {
	Name  string
	Tags  map[string]string
	Alias string
}

// Request is one query orchestrator call (spec.md §4.G `query`).
type Request struct {
	MetricIDs []uint64
	Selectors []Selector
	StartTS   int64
	EndTS     int64
	SQL       string
}

// Orchestrator runs ad hoc SQL against the ring storage engine's virtual
// tables.
type Orchestrator struct {
	registry *registry.Registry
	ring     *ring.Ring
}

// New creates an Orchestrator over reg and rg.
func New(reg *registry.Registry, rg *ring.Ring) *Orchestrator {
	return &Orchestrator{registry: reg, ring: rg}
}

var allowedTables = map[string]bool{"samples": true, "metrics": true, "metric_tags": true}

// tableRefRE captures the identifier immediately following FROM or JOIN,
// the only two clauses that introduce a table reference.
var tableRefRE = regexp.MustCompile(`(?i)\b(?:from|join)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// validateReferences implements spec.md §4.G step 1: reject a query that
// names a table other than the three virtual tables ringtsdb exposes.
// This only inspects FROM/JOIN targets, not every identifier, so it does
// not need to understand column names, aliases, or UDF calls to avoid
// false positives on otherwise-valid SQL.
func validateReferences(sqlText string) error {
	for _, m := range tableRefRE.FindAllStringSubmatch(sqlText, -1) {
		name := strings.ToLower(m[1])
		if !allowedTables[name] {
			return errs.New(errs.Validation, "query references unknown table %q", m[1])
		}
	}
	return nil
}

var samplesRE = regexp.MustCompile(`(?i)\bsamples\b`)
var metricIDFilterRE = regexp.MustCompile(`(?i)metric_id\s*(=|in\s*\()`)
var tsFilterRE = regexp.MustCompile(`(?i)\bts\s*(between|>=|<=|>|<|=)`)

// rejectUnboundedSamplesScan implements spec.md §4.E "rejects queries that
// touch samples without such predicates (policy: no unbounded scans)".
func rejectUnboundedSamplesScan(sqlText string) error {
	if !samplesRE.MatchString(sqlText) {
		return nil
	}
	if metricIDFilterRE.MatchString(sqlText) || tsFilterRE.MatchString(sqlText) {
		return nil
	}
	return errs.New(errs.Validation, "query touches samples without a metric_id or ts predicate")
}

// Row is one result row, column name to value.
type Row map[string]interface{}

// Query runs req.SQL against the resolved metric set and returns the
// result rows in plan-emitted order.
func (o *Orchestrator) Query(ctx context.Context, req Request) ([]Row, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, errs.New(errs.Validation, "sql must not be empty")
	}
	if req.EndTS < req.StartTS {
		return nil, errs.New(errs.Validation, "end_ts must not be before start_ts")
	}
	if err := validateReferences(req.SQL); err != nil {
		return nil, err
	}
	if err := rejectUnboundedSamplesScan(req.SQL); err != nil {
		return nil, err
	}

	metricIDs, err := o.resolveMetricIDs(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(metricIDs) == 0 {
		return nil, errs.New(errs.NotFound, "no metrics resolved from the query's metric_ids/selectors")
	}

	metrics := make([]sqlengine.ResolvedMetric, 0, len(metricIDs))
	for _, id := range metricIDs {
		d, err := o.registry.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, sqlengine.ResolvedMetric{
			MetricID: d.MetricID,
			Name:     d.Name,
			Step:     d.Step,
			Slots:    d.Slots,
			Type:     d.Type,
			Tags:     d.Tags,
		})
	}

	engine, sqlCtx := o.buildEngine(ctx, metrics, req.StartTS, req.EndTS)
	schema, iter, err := engine.Query(sqlCtx, req.SQL)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, err, "query failed to plan or execute")
	}
	defer iter.Close(sqlCtx)

	var rows []Row
	approxBytes := 0
	for {
		r, err := iter.Next(sqlCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.BackendFatal, err, "row iteration failed")
		}
		if len(rows) >= config.MaxQueryRows {
			return nil, errs.New(errs.LimitExceeded, "query exceeded %d row cap", config.MaxQueryRows)
		}
		row := rowToMap(schema, r)
		approxBytes += approxRowSize(row)
		if approxBytes > config.MaxQueryBytes {
			return nil, errs.New(errs.LimitExceeded, "query exceeded %d byte cap", config.MaxQueryBytes)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// resolveMetricIDs implements spec.md §4.G step 2: union explicit ids with
// selector-derived ids.
func (o *Orchestrator) resolveMetricIDs(ctx context.Context, req Request) ([]uint64, error) {
	seen := make(map[uint64]bool)
	var ids []uint64
	for _, id := range req.MetricIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, sel := range req.Selectors {
		descs, err := o.registry.Lookup(ctx, sel.Name, sel.Tags, 0)
		if err != nil {
			return nil, err
		}
		for _, d := range descs {
			if !seen[d.MetricID] {
				seen[d.MetricID] = true
				ids = append(ids, d.MetricID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (o *Orchestrator) buildEngine(ctx context.Context, metrics []sqlengine.ResolvedMetric, start, end int64) (*sqle.Engine, *sql.Context) {
	db := sqlengine.NewDatabase(metrics, start, end, o.ring)
	provider := sqlengine.NewProvider(db)
	engine := sqle.NewDefault(provider)

	sqlCtx := sql.NewContext(ctx)
	for _, fn := range udf.Functions() {
		engine.Analyzer.Catalog.RegisterFunction(sqlCtx, fn)
	}
	return engine, sqlCtx
}

func rowToMap(schema sql.Schema, row sql.Row) Row {
	out := make(Row, len(row))
	for i, v := range row {
		name := "col" + strconv.Itoa(i)
		if i < len(schema) {
			name = schema[i].Name
		}
		out[name] = v
	}
	return out
}

func approxRowSize(row Row) int {
	n := 0
	for k, v := range row {
		n += len(k) + 16
		if s, ok := v.(string); ok {
			n += len(s)
		}
	}
	return n
}
