package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
)

// FilteredTracer hides statements that mention any of its tables from the
// wrapped tracer. The log hook writes to LogTable through the same pool, and
// tracing those writes would feed them back into the hook.
type FilteredTracer struct {
	inner  pgx.QueryTracer
	tables []string
}

func NewFilteredTracer(inner pgx.QueryTracer, tables ...string) *FilteredTracer {
	return &FilteredTracer{inner: inner, tables: lo.Map(tables, func(t string, _ int) string { return strings.ToLower(t) })}
}

type untracedKey struct{}

func (t *FilteredTracer) hidden(sql string) bool {
	sql = strings.ToLower(sql)
	return lo.SomeBy(t.tables, func(table string) bool { return strings.Contains(sql, table) })
}

func (t *FilteredTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if t.hidden(data.SQL) {
		return context.WithValue(ctx, untracedKey{}, struct{}{})
	}
	return t.inner.TraceQueryStart(ctx, conn, data)
}

func (t *FilteredTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if ctx.Value(untracedKey{}) != nil {
		return
	}
	t.inner.TraceQueryEnd(ctx, conn, data)
}
