// Package config holds the backend and retention constants ringtsdb is
// built against: the transactional KV backend's size/duration limits,
// default ring geometry, and HTTP server timeouts.
package config

import "time"

// Backend transaction limits (spec.md §1: "a transactional backend whose
// constraints shape every algorithm"). These constants are not checked
// directly: multi-transaction operations such as delete and retention
// rewrite are batched by slot count (DeleteBatchSlots, RewriteBatchSlots
// below), BadgerBackend's Set rejects values over 100 kB on its own, and
// MaxTxnDuration is used only as RetentionTimeout.
const (
	MaxTxnDuration = 5 * time.Second
	MaxTxnBytes    = 10 << 20  // 10 MB
	MaxValueBytes  = 100 << 10 // 100 kB
)

// Ring geometry defaults, matching spec.md §6 POST /ingest/gauge defaults.
const (
	DefaultStep  = 1
	DefaultSlots = 3600

	// MaxRetentionWindowSeconds bounds slots*step for any metric so a
	// single descriptor cannot request an unbounded ring.
	MaxRetentionWindowSeconds = 366 * 24 * 3600
)

// Registry limits.
const (
	MaxLookupResults = 1000
	EnsureRetries    = 1 // retry once on commit-conflict before surfacing CONFLICT
)

// Query orchestrator limits.
const (
	MaxQueryRows      = 1_000_000
	MaxQueryBytes     = 64 << 20
	QueryTimeout      = 30 * time.Second
	IngestTimeout     = 5 * time.Second
	RetentionTimeout  = MaxTxnDuration
	DeleteBatchSlots  = 4096 // slots cleared per delete transaction
	RewriteBatchSlots = 2048 // slots migrated per retention-rewrite transaction
)

// HTTP server defaults.
const (
	DefaultAPIHost      = "0.0.0.0"
	DefaultAPIPort      = "8080"
	ServerReadTimeout   = 10 * time.Second
	ServerWriteTimeout  = 30 * time.Second
	ServerShutdownGrace = 15 * time.Second
)

// WebSocket hub defaults, for the ring-write notification stream.
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSChannelBuffer   = 16
	WSBroadcastBuffer = 64
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Environment variable names, per spec.md §6 "Environment".
const (
	EnvClusterFile = "FDB_CLUSTER_FILE" // repurposed as the Badger data directory
	EnvAPIHost     = "API_HOST"
	EnvAPIPort     = "API_PORT"
)
