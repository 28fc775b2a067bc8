package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

type countingTracer struct {
	starts, ends int
}

func (c *countingTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	c.starts++
	return ctx
}

func (c *countingTracer) TraceQueryEnd(context.Context, *pgx.Conn, pgx.TraceQueryEndData) {
	c.ends++
}

func TestFilteredTracer(t *testing.T) {
	tests := []struct {
		sql   string
		trace bool
	}{
		{"INSERT INTO coordinator_logs (id) VALUES ($1)", false},
		{"insert into COORDINATOR_LOGS (id) values ($1)", false},
		{"SELECT 1", true},
	}
	for _, tt := range tests {
		inner := &countingTracer{}
		tracer := NewFilteredTracer(inner, LogTable)

		ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: tt.sql})
		tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

		want := 0
		if tt.trace {
			want = 1
		}
		if inner.starts != want || inner.ends != want {
			t.Errorf("%q: starts=%d ends=%d, want %d", tt.sql, inner.starts, inner.ends, want)
		}
	}
}
