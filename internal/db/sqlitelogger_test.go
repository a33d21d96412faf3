package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func newCaptureLogger(h *captureHandler) *slog.Logger { return slog.New(h) }

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]slog.Value{"msg": slog.StringValue(r.Message)}
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func (h *captureHandler) recordsFor(t *testing.T, msg string) []map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]slog.Value
	for _, m := range h.attrs {
		if m["msg"].String() == msg {
			out = append(out, m)
		}
	}
	return out
}

func (h *captureHandler) last(t *testing.T) map[string]slog.Value {
	t.Helper()
	recs := h.recordsFor(t, sqlLogMessage)
	if len(recs) == 0 {
		t.Fatal("no sql statement logged")
	}
	return recs[len(recs)-1]
}

func (h *captureHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs = nil
}

func openLogged(t *testing.T, h *captureHandler) *sql.DB {
	t.Helper()
	connector, err := NewLoggingConnector("file:"+filepath.Join(t.TempDir(), "log.db"), slog.New(h))
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewLoggingConnector_NilLoggerUsesDefault(t *testing.T) {
	conn, err := NewLoggingConnector(":memory:", nil)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	lc, ok := conn.(*loggingConnector)
	if !ok || lc.log.logger == nil {
		t.Fatalf("connector = %#v", conn)
	}
	if _, err := conn.Driver().Open("x"); err == nil {
		t.Error("Driver().Open err = nil, want non-nil")
	}
}

func TestLoggingConnector_ExecAndQueryLogged(t *testing.T) {
	h := &captureHandler{}
	db := openLogged(t, h)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	got := h.last(t)
	if got["op"].String() != "exec" || got["sql"].String() != `CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)` {
		t.Errorf("exec log = %v", got)
	}

	h.reset()
	if _, err := db.Exec(`INSERT INTO t (id, name) VALUES (?, ?)`, 1, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got = h.last(t)
	args, ok := got["args"].Any().([]string)
	if !ok || len(args) != 2 || args[0] != "1" || args[1] != "NULL" {
		t.Errorf("args = %#v, want [1 NULL]", got["args"].Any())
	}

	h.reset()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	got = h.last(t)
	if got["op"].String() != "query" || got["sql"].String() != `SELECT COUNT(*) FROM t` {
		t.Errorf("query log = %v", got)
	}
}

func TestLoggingConnector_PreparedStatementsLogged(t *testing.T) {
	h := &captureHandler{}
	db := openLogged(t, h)
	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	stmt, err := db.Prepare(`INSERT INTO t (id) VALUES (?)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer func() { _ = stmt.Close() }()

	h.reset()
	for i := range 3 {
		if _, err := stmt.Exec(i); err != nil {
			t.Fatalf("exec %d: %v", i, err)
		}
	}
	if n := len(h.recordsFor(t, sqlLogMessage)); n != 3 {
		t.Errorf("logged %d statements, want 3", n)
	}
}

func TestLoggingConnector_MultiStatementExec(t *testing.T) {
	db := openLogged(t, &captureHandler{})

	if _, err := db.Exec(`CREATE TABLE a (x INTEGER); CREATE TABLE b (y INTEGER);`); err != nil {
		t.Fatalf("exec script: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO b (y) VALUES (1)`); err != nil {
		t.Fatalf("second statement of the script did not run: %v", err)
	}
}

func TestLoggingConnector_ErrorsPassThrough(t *testing.T) {
	h := &captureHandler{}
	db := openLogged(t, h)
	if _, err := db.Exec(`CREATE TABLE t (id INTEGER UNIQUE)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO t (id) VALUES (1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := db.Exec(`INSERT INTO t (id) VALUES (1)`)
	var se sqlite3.Error
	if !errors.As(err, &se) || se.ExtendedCode != sqlite3.ErrConstraintUnique {
		t.Fatalf("err = %v, want unique constraint sqlite3.Error", err)
	}
	if _, ok := h.last(t)["error"]; !ok {
		t.Error("expected error attribute on failed statement")
	}
}

func TestLoggingConnector_Transactions(t *testing.T) {
	db := openLogged(t, &captureHandler{})
	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Exec(`INSERT INTO t (id) VALUES (1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d after rollback, want 0", n)
	}
}

func TestLoggingConnector_PingSucceeds(t *testing.T) {
	db := openLogged(t, &captureHandler{})
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
