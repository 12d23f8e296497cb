package httpapi

import "github.com/ringtsdb/ringtsdb/internal/kvcodec"

// metricRef is the tagged variant spec.md §9 "Dynamic typing in payloads"
// calls for: an ingest or lookup request names a metric either by id or by
// (name, tags).
type metricRef struct {
	MetricID *uint64           `json:"metric_id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Step     uint32            `json:"step,omitempty"`
	Slots    uint32            `json:"slots,omitempty"`
}

type ingestGaugeRequest struct {
	MetricID *uint64           `json:"metric_id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Step     uint32            `json:"step,omitempty"`
	Slots    uint32            `json:"slots,omitempty"`
	Ts       int64             `json:"ts"`
	Value    float64           `json:"value"`
}

type ingestCounterRequest struct {
	MetricID *uint64           `json:"metric_id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Step     uint32            `json:"step,omitempty"`
	Slots    uint32            `json:"slots,omitempty"`
	Ts       int64             `json:"ts"`
	RawValue float64           `json:"raw_value"`
}

type ingestResponse struct {
	MetricID uint64 `json:"metric_id"`
}

type querySelector struct {
	Name  string            `json:"name"`
	Tags  map[string]string `json:"tags,omitempty"`
	Alias string            `json:"alias,omitempty"`
}

type queryRequest struct {
	MetricIDs []uint64        `json:"metric_ids"`
	Selectors []querySelector `json:"selectors,omitempty"`
	StartTS   int64           `json:"start_ts"`
	EndTS     int64           `json:"end_ts"`
	SQL       string          `json:"sql"`
}

type queryResponse struct {
	Rows []map[string]interface{} `json:"rows"`
	SQL  string                   `json:"sql"`
}

type descriptorView struct {
	MetricID uint64            `json:"metric_id"`
	Name     string            `json:"name"`
	Tags     map[string]string `json:"tags,omitempty"`
	Step     uint32            `json:"step"`
	Slots    uint32            `json:"slots"`
	Type     string            `json:"type"`
}

func toDescriptorView(d *kvcodec.Descriptor) descriptorView {
	return descriptorView{
		MetricID: d.MetricID,
		Name:     d.Name,
		Tags:     d.Tags,
		Step:     d.Step,
		Slots:    d.Slots,
		Type:     d.Type.String(),
	}
}

type metricsListResponse struct {
	Metrics []descriptorView `json:"metrics"`
}

type lookupRequest struct {
	Name  string            `json:"name,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
	Limit int               `json:"limit,omitempty"`
}

type namesResponse struct {
	Names []string `json:"names"`
}

type tagValuesRequest struct {
	Name string `json:"name"`
}

type tagValuesResponse struct {
	Tags map[string][]string `json:"tags"`
}

type seriesPoint struct {
	Ts    int64   `json:"ts"`
	Value float64 `json:"value"`
}

type seriesResponse struct {
	MetricID uint64        `json:"metric_id"`
	Points   []seriesPoint `json:"points"`
}

type retentionRequest struct {
	Step  uint32 `json:"step"`
	Slots uint32 `json:"slots"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type dashboardPutRequest struct {
	Slug string          `json:"slug"`
	Body map[string]interface{} `json:"body"`
}

type dashboardsListResponse struct {
	Slugs []string `json:"slugs"`
}
