package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

// stmtCall is one statement the repository sent to the database.
type stmtCall struct {
	query string
	args  []driver.Value
}

type cannedRows struct {
	match string
	rows  [][]driver.Value
}

// recordingDB is a database/sql connector that records statements and
// answers queries with canned rows matched by a query fragment.
type recordingDB struct {
	mu        sync.Mutex
	calls     []stmtCall
	canned    []cannedRows
	execErr   error
	nextID    int64
	commits   int
	rollbacks int
}

func newRecordingDB(t *testing.T) (*sql.DB, *recordingDB) {
	t.Helper()
	rec := &recordingDB{}
	db := sql.OpenDB(rec)
	t.Cleanup(func() { _ = db.Close() })
	return db, rec
}

// returns registers rows for every query containing fragment.
func (r *recordingDB) returns(fragment string, rows ...[]driver.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canned = append(r.canned, cannedRows{match: squash(fragment), rows: rows})
}

func (r *recordingDB) statements() []stmtCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stmtCall(nil), r.calls...)
}

func (r *recordingDB) record(query string, named []driver.NamedValue) {
	args := make([]driver.Value, len(named))
	for i, nv := range named {
		args[i] = nv.Value
	}
	r.calls = append(r.calls, stmtCall{query: squash(query), args: args})
}

func (r *recordingDB) Connect(context.Context) (driver.Conn, error) { return &recordingConn{db: r}, nil }
func (r *recordingDB) Driver() driver.Driver { return recordingDriver{db: r} }

type recordingDriver struct{ db *recordingDB }

func (d recordingDriver) Open(string) (driver.Conn, error) { return &recordingConn{db: d.db}, nil }

type recordingConn struct{ db *recordingDB }

func (c *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not recorded")
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) Begin() (driver.Tx, error) { return &recordingTx{db: c.db}, nil }

func (c *recordingConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.record(query, args)
	if c.db.execErr != nil {
		return nil, c.db.execErr
	}
	c.db.nextID++
	return execResult{id: c.db.nextID}, nil
}

type execResult struct{ id int64 }

func (r execResult) LastInsertId() (int64, error) { return r.id, nil }
func (r execResult) RowsAffected() (int64, error) { return 1, nil }

func (c *recordingConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.record(query, args)
	q := squash(query)
	for _, canned := range c.db.canned {
		if strings.Contains(q, canned.match) {
			return &recordingRows{rows: canned.rows}, nil
		}
	}
	return &recordingRows{}, nil
}

type recordingTx struct{ db *recordingDB }

func (t *recordingTx) Commit() error {
	t.db.mu.Lock()
	t.db.commits++
	t.db.mu.Unlock()
	return nil
}

func (t *recordingTx) Rollback() error {
	t.db.mu.Lock()
	t.db.rollbacks++
	t.db.mu.Unlock()
	return nil
}

type recordingRows struct {
	rows [][]driver.Value
	pos  int
}

func (r *recordingRows) Columns() []string {
	if len(r.rows) == 0 {
		return nil
	}
	cols := make([]string, len(r.rows[0]))
	for i := range cols {
		cols[i] = "c"
	}
	return cols
}

func (r *recordingRows) Close() error { return nil }

func (r *recordingRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

// squash collapses whitespace so assertions can quote SQL on one line.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
