package udf

import "github.com/dolthub/go-mysql-server/sql"

// Functions returns every time-series UDF (spec.md §4.F) as a
// go-mysql-server function registration, ready to pass to a catalog's
// RegisterFunction call.
func Functions() []sql.Function {
	return []sql.Function{
		sql.Function2{Name: "ts_bucket", Fn: NewTsBucket},
		sql.Function2{Name: "align_time", Fn: NewAlignTime},
		sql.Function3{Name: "bucket_rate", Fn: NewBucketRate},
		sql.Function3{Name: "clamp", Fn: NewClamp},
		sql.Function3{Name: "null_if_outside", Fn: NewNullIfOutside},
		sql.Function2{Name: "series_add", Fn: NewSeriesAdd},
		sql.Function2{Name: "series_sub", Fn: NewSeriesSub},
		sql.Function2{Name: "series_mul", Fn: NewSeriesMul},
		sql.Function2{Name: "series_div", Fn: NewSeriesDiv},
		sql.Function3{Name: "counter_rate", Fn: NewCounterRate},
	}
}
