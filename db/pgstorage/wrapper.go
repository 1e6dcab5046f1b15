package pgstorage

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/omnibridge/omnibridge-service/log"
	"github.com/omnibridge/omnibridge-service/utils"
)

type execQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// execQuerierWrapper logs every statement with the trace id of the request
type execQuerierWrapper struct {
	execQuerier
}

func (w *execQuerierWrapper) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	logger := log.WithFields(utils.TraceID, ctx.Value(utils.CtxTraceID))
	startTime := time.Now()
	tag, err := w.execQuerier.Exec(ctx, sql, arguments...)
	logger.Debugf("DB exec sql[%v] arguments[%v] rowsAffected[%v] err[%v] processTime[%v]",
		removeNewLine(sql), arguments, tag.RowsAffected(), err, time.Since(startTime).String())
	return tag, err
}

func (w *execQuerierWrapper) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	logger := log.WithFields(utils.TraceID, ctx.Value(utils.CtxTraceID))
	startTime := time.Now()
	rows, err := w.execQuerier.Query(ctx, sql, args...)
	logger.Debugf("DB query sql[%v] arguments[%v] err[%v] processTime[%v]", removeNewLine(sql), args, err, time.Since(startTime).String())
	return rows, err
}

func (w *execQuerierWrapper) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	logger := log.WithFields(utils.TraceID, ctx.Value(utils.CtxTraceID))
	startTime := time.Now()
	row := w.execQuerier.QueryRow(ctx, sql, args...)
	logger.Debugf("DB queryRow sql[%v] arguments[%v] processTime[%v]", removeNewLine(sql), args, time.Since(startTime).String())
	return row
}

func removeNewLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
