package udf

import (
	"context"
	"testing"

	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/expression"
	"github.com/dolthub/go-mysql-server/sql/types"
)

func lit(v interface{}, t sql.Type) sql.Expression {
	return expression.NewLiteral(v, t)
}

func evalCtx() *sql.Context {
	return sql.NewContext(context.Background())
}

func TestTsBucket(t *testing.T) {
	e := NewTsBucket(lit(int64(125), types.Int64), lit(int64(60), types.Int64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != int64(120) {
		t.Errorf("expected 120, got %v", got)
	}
}

func TestTsBucketRejectsNonPositiveWidth(t *testing.T) {
	e := NewTsBucket(lit(int64(100), types.Int64), lit(int64(0), types.Int64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected NULL for width<=0, got %v", got)
	}
}

func TestBucketRateClampsNegativeDeltaToZero(t *testing.T) {
	e := NewBucketRate(lit(50.0, types.Float64), lit(100.0, types.Float64), lit(60.0, types.Float64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != 0.0 {
		t.Errorf("expected 0.0 for reset, got %v", got)
	}
}

func TestBucketRateNullOnNullPrev(t *testing.T) {
	e := NewBucketRate(lit(50.0, types.Float64), lit(nil, types.Float64), lit(60.0, types.Float64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected NULL, got %v", got)
	}
}

func TestBucketRateNullOnNonPositiveWidth(t *testing.T) {
	e := NewBucketRate(lit(50.0, types.Float64), lit(10.0, types.Float64), lit(0.0, types.Float64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected NULL for width<=0, got %v", got)
	}
}

func TestClampWithinBounds(t *testing.T) {
	e := NewClamp(lit(5.0, types.Float64), lit(0.0, types.Float64), lit(10.0, types.Float64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != 5.0 {
		t.Errorf("expected 5.0, got %v", got)
	}
}

func TestClampAboveHigh(t *testing.T) {
	e := NewClamp(lit(15.0, types.Float64), lit(0.0, types.Float64), lit(10.0, types.Float64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != 10.0 {
		t.Errorf("expected 10.0, got %v", got)
	}
}

func TestNullIfOutside(t *testing.T) {
	e := NewNullIfOutside(lit(15.0, types.Float64), lit(0.0, types.Float64), lit(10.0, types.Float64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected NULL outside bounds, got %v", got)
	}
}

func TestSeriesDivByZeroYieldsNull(t *testing.T) {
	e := NewSeriesDiv(lit(10.0, types.Float64), lit(0.0, types.Float64))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected NULL for division by zero, got %v", got)
	}
}

func TestSeriesAddSubMulDiv(t *testing.T) {
	cases := []struct {
		name string
		expr sql.Expression
		want float64
	}{
		{"add", NewSeriesAdd(lit(2.0, types.Float64), lit(3.0, types.Float64)), 5.0},
		{"sub", NewSeriesSub(lit(5.0, types.Float64), lit(3.0, types.Float64)), 2.0},
		{"mul", NewSeriesMul(lit(4.0, types.Float64), lit(2.5, types.Float64)), 10.0},
		{"div", NewSeriesDiv(lit(9.0, types.Float64), lit(3.0, types.Float64)), 3.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.expr.Eval(evalCtx(), nil)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCounterRateFirstRowIsNull(t *testing.T) {
	e := NewCounterRate(lit(100.0, types.Float64), lit(int64(0), types.Int64), lit("cpu", types.Text))
	got, err := e.Eval(evalCtx(), nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected NULL for first row of a partition, got %v", got)
	}
}

func TestCounterRateSequence(t *testing.T) {
	// Mirrors scenario 3 of the spec: raw (0,100),(60,160),(120,180),(180,50)
	// at width 60 yields NULL, 1.0, 0.333..., 0.0.
	valueField := expression.NewGetField(0, types.Float64, "value", false)
	bucketField := expression.NewGetField(1, types.Int64, "bucket", false)
	aliasField := expression.NewGetField(2, types.Text, "alias", false)
	e := NewCounterRate(valueField, bucketField, aliasField)

	want := []interface{}{nil, 1.0, 1.0 / 3.0, 0.0}
	inputs := []struct {
		value  float64
		bucket int64
	}{{100, 0}, {160, 60}, {180, 120}, {50, 180}}

	for i, in := range inputs {
		row := sql.NewRow(in.value, in.bucket, "cpu")
		got, err := e.Eval(evalCtx(), row)
		if err != nil {
			t.Fatalf("Eval(%d) failed: %v", i, err)
		}
		if i == 0 {
			if got != nil {
				t.Errorf("row 0: expected NULL, got %v", got)
			}
			continue
		}
		gf, ok := got.(float64)
		if !ok {
			t.Fatalf("row %d: expected float64, got %T", i, got)
		}
		wf := want[i].(float64)
		if diff := gf - wf; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("row %d: expected %v, got %v", i, wf, gf)
		}
	}
}
