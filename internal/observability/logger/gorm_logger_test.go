package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestStatementKind(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM orders":                      "SELECT",
		"  insert into profiles (id) values (?)":    "INSERT",
		"WITH x AS (SELECT 1) UPDATE orders SET a=1": "SELECT",
		"(DELETE FROM carts)":                       "DELETE",
		"VACUUM":                                    "OTHER",
	}
	for sql, want := range cases {
		if got := statementKind(sql); got != want {
			t.Fatalf("statementKind(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestTraceLogsErrorsWithoutParams(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(zap.New(core), gormlogger.Warn, 200*time.Millisecond)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "UPDATE orders SET status = 'processing' WHERE id = 1", 0
	}, errors.New("connection reset"))
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM orders WHERE id = 1", 0
	}, gormlogger.ErrRecordNotFound)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["operation"] != "UPDATE" {
		t.Fatalf("unexpected fields: %v", entries[0].ContextMap())
	}

	sql, params := l.ParamsFilter(context.Background(), "SELECT ?", "a@b.com")
	if sql != "SELECT ?" || params != nil {
		t.Fatalf("expected params to be dropped")
	}
}
