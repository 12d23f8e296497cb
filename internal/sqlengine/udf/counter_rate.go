package udf

import (
	"fmt"
	"sync"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/types"
)

// counterRate implements counter_rate(value, bucket, alias) (spec.md
// §4.F): at row i within a partition identified by alias, returns
// max(0, value[i] - value[i-1]) / (bucket[i] - bucket[i-1]), or NULL at a
// partition's first row.
//
// The samples table already yields rows ordered by (metric_id, ts)
// (spec.md §4.E), so rather than expressing counter_rate through GMS's
// window-aggregation machinery this tracks the previous (bucket, value)
// per alias in a small stateful expression: cheaper to reason about and
// sufficient as long as the query does not reorder rows ahead of this
// call. Nothing checks that order: the orchestrator does not inspect where
// counter_rate sits in the plan.
type counterRate struct {
	baseExpr

	mu   sync.Mutex
	prev map[string]partitionState
}

type partitionState struct {
	bucket int64
	value  float64
}

// NewCounterRate builds a counter_rate(value, bucket, alias) expression.
func NewCounterRate(value, bucket, alias sql.Expression) sql.Expression {
	e := &counterRate{prev: make(map[string]partitionState)}
	e.baseExpr = newBaseExpr("counter_rate", []sql.Expression{value, bucket, alias}, func(c []sql.Expression) sql.Expression {
		return NewCounterRate(c[0], c[1], c[2])
	})
	return e
}

func (e *counterRate) Type() sql.Type { return types.Float64 }

func (e *counterRate) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	value, ok, err := evalFloat(ctx, e.children[0], row)
	if err != nil || !ok {
		return nil, err
	}
	bucket, ok, err := evalInt(ctx, e.children[1], row)
	if err != nil || !ok {
		return nil, err
	}
	aliasRaw, err := e.children[2].Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	alias := fmt.Sprintf("%v", aliasRaw)

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, seen := e.prev[alias]
	e.prev[alias] = partitionState{bucket: bucket, value: value}
	if !seen {
		return nil, nil
	}
	width := bucket - prev.bucket
	if width <= 0 {
		return nil, nil
	}
	delta := value - prev.value
	if delta < 0 {
		delta = 0
	}
	return delta / float64(width), nil
}
