package udf

import (
	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/types"
)

// tsBucket implements ts_bucket(ts, width) = (ts // width) * width
// (spec.md §4.F).
type tsBucket struct{ baseExpr }

// NewTsBucket builds a ts_bucket(ts, width) expression.
func NewTsBucket(ts, width sql.Expression) sql.Expression {
	e := &tsBucket{}
	e.baseExpr = newBaseExpr("ts_bucket", []sql.Expression{ts, width}, func(c []sql.Expression) sql.Expression {
		return NewTsBucket(c[0], c[1])
	})
	return e
}

func (e *tsBucket) Type() sql.Type { return types.Int64 }

func (e *tsBucket) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	ts, ok, err := evalInt(ctx, e.children[0], row)
	if err != nil || !ok {
		return nil, err
	}
	width, ok, err := evalInt(ctx, e.children[1], row)
	if err != nil || !ok || width < 1 {
		return nil, err
	}
	return floorDiv(ts, width) * width, nil
}

// alignTime implements align_time(ts, step) = (ts // step) * step, the
// same arithmetic as ts_bucket under a different name for readability at
// the call site (spec.md §4.F).
type alignTime struct{ baseExpr }

// NewAlignTime builds an align_time(ts, step) expression.
func NewAlignTime(ts, step sql.Expression) sql.Expression {
	e := &alignTime{}
	e.baseExpr = newBaseExpr("align_time", []sql.Expression{ts, step}, func(c []sql.Expression) sql.Expression {
		return NewAlignTime(c[0], c[1])
	})
	return e
}

func (e *alignTime) Type() sql.Type { return types.Int64 }

func (e *alignTime) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	ts, ok, err := evalInt(ctx, e.children[0], row)
	if err != nil || !ok {
		return nil, err
	}
	step, ok, err := evalInt(ctx, e.children[1], row)
	if err != nil || !ok || step < 1 {
		return nil, err
	}
	return floorDiv(ts, step) * step, nil
}

// bucketRate implements bucket_rate(curr, prev, width) = max(0, curr -
// prev) / width, NULL if prev IS NULL or width <= 0 (spec.md §4.F, §4.D).
// Negative deltas clamp to zero rather than reporting a spurious spike on
// counter restart.
type bucketRate struct{ baseExpr }

// NewBucketRate builds a bucket_rate(curr, prev, width) expression.
func NewBucketRate(curr, prev, width sql.Expression) sql.Expression {
	e := &bucketRate{}
	e.baseExpr = newBaseExpr("bucket_rate", []sql.Expression{curr, prev, width}, func(c []sql.Expression) sql.Expression {
		return NewBucketRate(c[0], c[1], c[2])
	})
	return e
}

func (e *bucketRate) Type() sql.Type { return types.Float64 }

func (e *bucketRate) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	curr, ok, err := evalFloat(ctx, e.children[0], row)
	if err != nil || !ok {
		return nil, err
	}
	prev, ok, err := evalFloat(ctx, e.children[1], row)
	if err != nil || !ok {
		return nil, nil
	}
	width, ok, err := evalFloat(ctx, e.children[2], row)
	if err != nil || !ok || width <= 0 {
		return nil, err
	}
	delta := curr - prev
	if delta < 0 {
		delta = 0
	}
	return delta / width, nil
}

// clamp implements clamp(x, lo, hi) (spec.md §4.F).
type clamp struct{ baseExpr }

// NewClamp builds a clamp(x, lo, hi) expression.
func NewClamp(x, lo, hi sql.Expression) sql.Expression {
	e := &clamp{}
	e.baseExpr = newBaseExpr("clamp", []sql.Expression{x, lo, hi}, func(c []sql.Expression) sql.Expression {
		return NewClamp(c[0], c[1], c[2])
	})
	return e
}

func (e *clamp) Type() sql.Type { return types.Float64 }

func (e *clamp) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	x, ok, err := evalFloat(ctx, e.children[0], row)
	if err != nil || !ok {
		return nil, err
	}
	lo, ok, err := evalFloat(ctx, e.children[1], row)
	if err != nil || !ok {
		return nil, err
	}
	hi, ok, err := evalFloat(ctx, e.children[2], row)
	if err != nil || !ok {
		return nil, err
	}
	if isNaN(x) {
		return x, nil
	}
	if x < lo {
		return lo, nil
	}
	if x > hi {
		return hi, nil
	}
	return x, nil
}

// nullIfOutside implements null_if_outside(x, lo, hi): NULL if x is
// outside [lo, hi], else x unchanged (spec.md §4.F).
type nullIfOutside struct{ baseExpr }

// NewNullIfOutside builds a null_if_outside(x, lo, hi) expression.
func NewNullIfOutside(x, lo, hi sql.Expression) sql.Expression {
	e := &nullIfOutside{}
	e.baseExpr = newBaseExpr("null_if_outside", []sql.Expression{x, lo, hi}, func(c []sql.Expression) sql.Expression {
		return NewNullIfOutside(c[0], c[1], c[2])
	})
	return e
}

func (e *nullIfOutside) Type() sql.Type { return types.Float64 }

func (e *nullIfOutside) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	x, ok, err := evalFloat(ctx, e.children[0], row)
	if err != nil || !ok {
		return nil, err
	}
	lo, ok, err := evalFloat(ctx, e.children[1], row)
	if err != nil || !ok {
		return nil, err
	}
	hi, ok, err := evalFloat(ctx, e.children[2], row)
	if err != nil || !ok {
		return nil, err
	}
	if isNaN(x) || x < lo || x > hi {
		return nil, nil
	}
	return x, nil
}

// seriesOp is the shared shape of series_add/sub/mul/div: element-wise
// arithmetic on two aligned scalar inputs (spec.md §4.F).
type seriesOp struct {
	baseExpr
	apply func(a, b float64) (interface{}, error)
}

func newSeriesOp(name string, a, b sql.Expression, apply func(a, b float64) (interface{}, error)) sql.Expression {
	e := &seriesOp{apply: apply}
	e.baseExpr = newBaseExpr(name, []sql.Expression{a, b}, func(c []sql.Expression) sql.Expression {
		return newSeriesOp(name, c[0], c[1], apply)
	})
	return e
}

func (e *seriesOp) Type() sql.Type { return types.Float64 }

func (e *seriesOp) Eval(ctx *sql.Context, row sql.Row) (interface{}, error) {
	a, ok, err := evalFloat(ctx, e.children[0], row)
	if err != nil || !ok {
		return nil, err
	}
	b, ok, err := evalFloat(ctx, e.children[1], row)
	if err != nil || !ok {
		return nil, err
	}
	return e.apply(a, b)
}

// NewSeriesAdd builds a series_add(a, b) expression.
func NewSeriesAdd(a, b sql.Expression) sql.Expression {
	return newSeriesOp("series_add", a, b, func(a, b float64) (interface{}, error) { return a + b, nil })
}

// NewSeriesSub builds a series_sub(a, b) expression.
func NewSeriesSub(a, b sql.Expression) sql.Expression {
	return newSeriesOp("series_sub", a, b, func(a, b float64) (interface{}, error) { return a - b, nil })
}

// NewSeriesMul builds a series_mul(a, b) expression.
func NewSeriesMul(a, b sql.Expression) sql.Expression {
	return newSeriesOp("series_mul", a, b, func(a, b float64) (interface{}, error) { return a * b, nil })
}

// NewSeriesDiv builds a series_div(a, b) expression; division by zero
// yields NULL rather than +/-Inf (spec.md §4.F).
func NewSeriesDiv(a, b sql.Expression) sql.Expression {
	return newSeriesOp("series_div", a, b, func(a, b float64) (interface{}, error) {
		if b == 0 {
			return nil, nil
		}
		return a / b, nil
	})
}
