// Package udf implements the time-series user-defined functions (spec.md
// §4.F) as go-mysql-server sql.Expression/sql.Function values: ts_bucket,
// bucket_rate, clamp, align_time, null_if_outside, series_add/sub/mul/div
// as scalar expressions, and counter_rate as a stateful scalar expression
// that remembers the previous row per partition alias.
package udf

import (
	"math"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/types"
)

// baseExpr holds the boilerplate every scalar UDF expression shares:
// children, nullability, and the String()/WithChildren() machinery GMS's
// analyzer needs to rewrite a plan. Concrete functions embed baseExpr and
// implement only Eval and Type.
type baseExpr struct {
	name     string
	children []sql.Expression
	rebuild  func(children []sql.Expression) sql.Expression
}

func newBaseExpr(name string, children []sql.Expression, rebuild func([]sql.Expression) sql.Expression) baseExpr {
	return baseExpr{name: name, children: children, rebuild: rebuild}
}

func (b baseExpr) Resolved() bool {
	for _, c := range b.children {
		if !c.Resolved() {
			return false
		}
	}
	return true
}

func (b baseExpr) IsNullable() bool { return true }

func (b baseExpr) Children() []sql.Expression { return b.children }

func (b baseExpr) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != len(b.children) {
		return nil, sql.ErrInvalidChildrenNumber.New(b.name, len(children), len(b.children))
	}
	return b.rebuild(children), nil
}

func (b baseExpr) String() string {
	s := b.name + "("
	for i, c := range b.children {
		if i > 0 {
			s += ", "
		}
		s += c.String()
	}
	return s + ")"
}

// evalFloat evaluates child against row and coerces the result to a
// float64, treating SQL NULL or a type mismatch as NaN-free "no value" by
// returning ok=false.
func evalFloat(ctx *sql.Context, child sql.Expression, row sql.Row) (v float64, ok bool, err error) {
	raw, err := child.Eval(ctx, row)
	if err != nil {
		return 0, false, err
	}
	if raw == nil {
		return 0, false, nil
	}
	f, err := types.Float64.Convert(raw)
	if err != nil {
		return 0, false, nil
	}
	return f.(float64), true, nil
}

func evalInt(ctx *sql.Context, child sql.Expression, row sql.Row) (v int64, ok bool, err error) {
	raw, err := child.Eval(ctx, row)
	if err != nil {
		return 0, false, err
	}
	if raw == nil {
		return 0, false, nil
	}
	i, err := types.Int64.Convert(raw)
	if err != nil {
		return 0, false, nil
	}
	return i.(int64), true, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func isNaN(f float64) bool { return math.IsNaN(f) }
