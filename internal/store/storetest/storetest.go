// Package storetest provides pgx mocks shared by store-level tests.
package storetest

import (
	"context"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MockDB implements store.DB with pluggable behaviour per call.
type MockDB struct {
	ExecFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	BeginFunc    func(ctx context.Context) (pgx.Tx, error)
}

func (m *MockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *MockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sql, args...)
	}
	return &MockRows{}, nil
}

func (m *MockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.QueryRowFunc != nil {
		return m.QueryRowFunc(ctx, sql, args...)
	}
	return &MockRow{Err: pgx.ErrNoRows}
}

func (m *MockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTx{DB: m}, nil
}

// MockTx implements pgx.Tx by delegating query methods to its DB. Commit and
// rollback outcomes are recorded for assertions.
type MockTx struct {
	DB         *MockDB
	Committed  bool
	RolledBack bool
	CommitErr  error
}

func (t *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *MockTx) Commit(ctx context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

func (t *MockTx) Rollback(ctx context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}

func (t *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (t *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *MockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (t *MockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.DB.Exec(ctx, sql, args...)
}

func (t *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.DB.Query(ctx, sql, args...)
}

func (t *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.DB.QueryRow(ctx, sql, args...)
}

func (t *MockTx) Conn() *pgx.Conn { return nil }

// MockRow scans fixed values into the destinations, or fails with Err.
type MockRow struct {
	Values []any
	Err    error
}

func (r *MockRow) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	for i, d := range dest {
		if i >= len(r.Values) {
			break
		}
		assign(d, r.Values[i])
	}
	return nil
}

// MockRows yields one row of values per element of Data.
type MockRows struct {
	Data [][]any
	idx  int
	err  error
}

func (r *MockRows) Close()                                       {}
func (r *MockRows) Err() error                                   { return r.err }
func (r *MockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *MockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *MockRows) Values() ([]any, error)                       { return nil, nil }
func (r *MockRows) RawValues() [][]byte                          { return nil }
func (r *MockRows) Conn() *pgx.Conn                              { return nil }

func (r *MockRows) Next() bool {
	if r.idx >= len(r.Data) {
		return false
	}
	r.idx++
	return true
}

func (r *MockRows) Scan(dest ...any) error {
	row := r.Data[r.idx-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		assign(d, row[i])
	}
	return nil
}

func assign(dest, val any) {
	switch d := dest.(type) {
	case *time.Time:
		if v, ok := val.(time.Time); ok {
			*d = v
		}
	case **time.Time:
		if v, ok := val.(*time.Time); ok {
			*d = v
		}
	case *string:
		if v, ok := val.(string); ok {
			*d = v
		}
	case *int:
		if v, ok := val.(int); ok {
			*d = v
		}
	case *int64:
		if v, ok := val.(int64); ok {
			*d = v
		}
	case *bool:
		if v, ok := val.(bool); ok {
			*d = v
		}
	case *[]byte:
		if v, ok := val.([]byte); ok {
			*d = v
		}
	case **int64:
		if v, ok := val.(*int64); ok {
			*d = v
		}
	default:
		rv := reflect.ValueOf(dest)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return
		}
		ev := rv.Elem()
		vv := reflect.ValueOf(val)
		if vv.IsValid() && vv.Type().ConvertibleTo(ev.Type()) {
			ev.Set(vv.Convert(ev.Type()))
		}
	}
}
