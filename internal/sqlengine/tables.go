// Package sqlengine adapts the storage engine to go-mysql-server (spec.md
// §4.E): three sql.Table implementations — samples, metrics, metric_tags —
// each streaming from the registry/ring rather than buffering a stored
// relation. Metrics and metric_tags are small enough to materialise once
// per query; samples is read lazily, partitioned by metric_id, so a scan
// never needs more memory than one metric's ring.
package sqlengine

import (
	"io"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/types"

	"github.com/ringtsdb/ringtsdb/internal/kvcodec"
	"github.com/ringtsdb/ringtsdb/internal/ring"
)

// ResolvedMetric is a descriptor plus the tag pairs flattened for
// metric_tags, prepared ahead of query execution by the orchestrator
// (spec.md §4.G step 3 "pre-fetch descriptors ... into memory").
type ResolvedMetric struct {
	MetricID uint64
	Name     string
	Step     uint32
	Slots    uint32
	Type     kvcodec.MetricType
	Tags     map[string]string
}

// metricsTable materialises one row per resolved metric.
type metricsTable struct {
	metrics []ResolvedMetric
}

func newMetricsTable(metrics []ResolvedMetric) *metricsTable {
	return &metricsTable{metrics: metrics}
}

func (t *metricsTable) Name() string    { return "metrics" }
func (t *metricsTable) String() string  { return "metrics" }
func (t *metricsTable) Collation() sql.CollationID { return sql.Collation_Default }

func (t *metricsTable) Schema() sql.Schema {
	return sql.Schema{
		{Name: "metric_id", Type: types.Uint64, Source: "metrics", Nullable: false},
		{Name: "name", Type: types.Text, Source: "metrics", Nullable: false},
		{Name: "step", Type: types.Uint32, Source: "metrics", Nullable: false},
		{Name: "slots", Type: types.Uint32, Source: "metrics", Nullable: false},
		{Name: "type", Type: types.Text, Source: "metrics", Nullable: false},
	}
}

func (t *metricsTable) Partitions(*sql.Context) (sql.PartitionIter, error) {
	return newSlicePartitionIter(1), nil
}

func (t *metricsTable) PartitionRows(ctx *sql.Context, _ sql.Partition) (sql.RowIter, error) {
	rows := make([]sql.Row, 0, len(t.metrics))
	for _, m := range t.metrics {
		rows = append(rows, sql.NewRow(m.MetricID, m.Name, m.Step, m.Slots, m.Type.String()))
	}
	return sql.RowsToRowIter(rows...), nil
}

// metricTagsTable materialises one row per (metric_id, tag_key, tag_value).
type metricTagsTable struct {
	metrics []ResolvedMetric
}

func newMetricTagsTable(metrics []ResolvedMetric) *metricTagsTable {
	return &metricTagsTable{metrics: metrics}
}

func (t *metricTagsTable) Name() string    { return "metric_tags" }
func (t *metricTagsTable) String() string  { return "metric_tags" }
func (t *metricTagsTable) Collation() sql.CollationID { return sql.Collation_Default }

func (t *metricTagsTable) Schema() sql.Schema {
	return sql.Schema{
		{Name: "metric_id", Type: types.Uint64, Source: "metric_tags", Nullable: false},
		{Name: "tag_key", Type: types.Text, Source: "metric_tags", Nullable: false},
		{Name: "tag_value", Type: types.Text, Source: "metric_tags", Nullable: false},
	}
}

func (t *metricTagsTable) Partitions(*sql.Context) (sql.PartitionIter, error) {
	return newSlicePartitionIter(1), nil
}

func (t *metricTagsTable) PartitionRows(ctx *sql.Context, _ sql.Partition) (sql.RowIter, error) {
	var rows []sql.Row
	for _, m := range t.metrics {
		for k, v := range m.Tags {
			rows = append(rows, sql.NewRow(m.MetricID, k, v))
		}
	}
	return sql.RowsToRowIter(rows...), nil
}

// samplesTable streams rows for the resolved metric set, one partition per
// metric_id so PartitionRows only ever holds one metric's ring in memory
// (spec.md §4.G step 4 "opens a read-only transaction per metric_id").
type samplesTable struct {
	metrics    []ResolvedMetric
	start, end int64
	rg         *ring.Ring
}

func newSamplesTable(metrics []ResolvedMetric, start, end int64, rg *ring.Ring) *samplesTable {
	return &samplesTable{metrics: metrics, start: start, end: end, rg: rg}
}

func (t *samplesTable) Name() string    { return "samples" }
func (t *samplesTable) String() string  { return "samples" }
func (t *samplesTable) Collation() sql.CollationID { return sql.Collation_Default }

func (t *samplesTable) Schema() sql.Schema {
	return sql.Schema{
		{Name: "metric_id", Type: types.Uint64, Source: "samples", Nullable: false},
		{Name: "ts", Type: types.Int64, Source: "samples", Nullable: false},
		{Name: "value", Type: types.Float64, Source: "samples", Nullable: false},
	}
}

func (t *samplesTable) Partitions(*sql.Context) (sql.PartitionIter, error) {
	return newMetricPartitionIter(t.metrics), nil
}

func (t *samplesTable) PartitionRows(ctx *sql.Context, part sql.Partition) (sql.RowIter, error) {
	mp, ok := part.(*metricPartition)
	if !ok {
		return sql.RowsToRowIter(), nil
	}
	points, err := t.rg.ReadRange(ctx, mp.metricID, t.start, t.end)
	if err != nil {
		return nil, err
	}
	rows := make([]sql.Row, 0, len(points))
	for _, p := range points {
		rows = append(rows, sql.NewRow(mp.metricID, p.Ts, p.Value))
	}
	return sql.RowsToRowIter(rows...), nil
}

// --- partition plumbing ---

// metricPartition keys a samples scan partition by metric_id.
type metricPartition struct{ metricID uint64 }

func (p *metricPartition) Key() []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(p.metricID >> (56 - 8*i))
	}
	return b
}

type metricPartitionIter struct {
	metrics []ResolvedMetric
	i       int
}

func newMetricPartitionIter(metrics []ResolvedMetric) *metricPartitionIter {
	return &metricPartitionIter{metrics: metrics}
}

func (it *metricPartitionIter) Next(*sql.Context) (sql.Partition, error) {
	if it.i >= len(it.metrics) {
		return nil, io.EOF
	}
	p := &metricPartition{metricID: it.metrics[it.i].MetricID}
	it.i++
	return p, nil
}

func (it *metricPartitionIter) Close(*sql.Context) error { return nil }

// slicePartitionIter yields n trivial single-partition markers, used by
// tables whose PartitionRows ignores the partition value entirely.
type slicePartitionIter struct {
	remaining int
}

func newSlicePartitionIter(n int) *slicePartitionIter { return &slicePartitionIter{remaining: n} }

func (it *slicePartitionIter) Next(*sql.Context) (sql.Partition, error) {
	if it.remaining <= 0 {
		return nil, io.EOF
	}
	it.remaining--
	return singlePartition{}, nil
}

func (it *slicePartitionIter) Close(*sql.Context) error { return nil }

type singlePartition struct{}

func (singlePartition) Key() []byte { return []byte("0") }
