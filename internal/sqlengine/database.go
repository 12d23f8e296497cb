package sqlengine

import (
	"github.com/dolthub/go-mysql-server/sql"

	"github.com/ringtsdb/ringtsdb/internal/ring"
)

// databaseName is the single fixed schema every query runs against; the
// orchestrator never exposes a USE statement or multi-database surface.
const databaseName = "ringtsdb"

// database is a read-only, per-query sql.Database: it is rebuilt fresh for
// every call to Query with exactly the resolved metric set that query's
// caller is allowed to see, so one query can never see another's metrics.
type database struct {
	tables map[string]sql.Table
}

// NewDatabase builds the metrics/metric_tags/samples virtual tables bound
// to metrics and the closed [start, end] time range.
func NewDatabase(metrics []ResolvedMetric, start, end int64, rg *ring.Ring) *database {
	return &database{tables: map[string]sql.Table{
		"metrics":     newMetricsTable(metrics),
		"metric_tags": newMetricTagsTable(metrics),
		"samples":     newSamplesTable(metrics, start, end, rg),
	}}
}

func (d *database) Name() string { return databaseName }

func (d *database) GetTableInsensitive(_ *sql.Context, tblName string) (sql.Table, bool, error) {
	t, ok := d.tables[tblName]
	return t, ok, nil
}

func (d *database) GetTableNames(*sql.Context) ([]string, error) {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	return names, nil
}

// provider implements sql.DatabaseProvider over the single fixed database.
type provider struct {
	db *database
}

// NewProvider builds a sql.DatabaseProvider serving db as the sole schema.
func NewProvider(db *database) *provider { return &provider{db: db} }

func (p *provider) Database(_ *sql.Context, name string) (sql.Database, error) {
	if name != databaseName {
		return nil, sql.ErrDatabaseNotFound.New(name)
	}
	return p.db, nil
}

func (p *provider) HasDatabase(_ *sql.Context, name string) bool {
	return name == databaseName
}

func (p *provider) AllDatabases(*sql.Context) []sql.Database {
	return []sql.Database{p.db}
}
