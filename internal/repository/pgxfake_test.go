package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

var repoTracer = trace.NewNoopTracerProvider().Tracer("repository-test")

// dbRecorder implements PgxPool against canned data. Each field scripts one
// pool method; every repository test in this package shares it.
type dbRecorder struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	execTag  pgconn.CommandTag

	queryRows [][]any // rows served by Query
	queryErr  error

	rowQueue [][]any // rows served by successive QueryRow calls

	sentBatch *pgx.Batch
	batchRes  *batchRecorder
}

func (db *dbRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	db.execArgs = append(db.execArgs, args)
	return db.execTag, db.execErr
}

func (db *dbRecorder) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.sentBatch = b
	if db.batchRes == nil {
		db.batchRes = &batchRecorder{}
	}
	return db.batchRes
}

func (db *dbRecorder) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	return &cannedRows{rows: db.queryRows}, nil
}

// QueryRow pops the next scripted row; once the queue runs dry the returned
// row scans as pgx.ErrNoRows.
func (db *dbRecorder) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if len(db.rowQueue) == 0 {
		return cannedRow{}
	}
	row := db.rowQueue[0]
	db.rowQueue = db.rowQueue[1:]
	return cannedRow{cells: row}
}

type batchRecorder struct {
	execs   int
	execErr error
	idQueue []int64 // ids handed out by QueryRow, one per queued insert
	closed  bool
}

func (b *batchRecorder) Exec() (pgconn.CommandTag, error) {
	b.execs++
	return pgconn.CommandTag{}, b.execErr
}

func (b *batchRecorder) Query() (pgx.Rows, error) { return &cannedRows{}, nil }

func (b *batchRecorder) QueryRow() pgx.Row {
	if len(b.idQueue) == 0 {
		return cannedRow{}
	}
	id := b.idQueue[0]
	b.idQueue = b.idQueue[1:]
	return cannedRow{cells: []any{id}}
}

func (b *batchRecorder) Close() error {
	b.closed = true
	return nil
}

// cannedRows walks fixed rows through the pgx.Rows surface.
type cannedRows struct {
	rows [][]any
	pos  int
}

func (r *cannedRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *cannedRows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.rows) {
		return fmt.Errorf("Scan called outside a Next loop")
	}
	return scanInto(r.rows[r.pos-1], dest)
}

func (r *cannedRows) Close()                                       {}
func (r *cannedRows) Err() error                                   { return nil }
func (r *cannedRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *cannedRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *cannedRows) Values() ([]any, error)                       { return nil, nil }
func (r *cannedRows) RawValues() [][]byte                          { return nil }
func (r *cannedRows) Conn() *pgx.Conn                              { return nil }

// cannedRow is a single result row. A nil cell slice stands for no row at all.
type cannedRow struct {
	cells []any
}

func (r cannedRow) Scan(dest ...any) error {
	if r.cells == nil {
		return pgx.ErrNoRows
	}
	return scanInto(r.cells, dest)
}

// scanInto copies canned cells into scan destinations. Assignment goes
// through reflection so fixtures can use plain literals; numeric cells
// convert to whatever width the destination wants.
func scanInto(cells []any, dest []any) error {
	if len(dest) > len(cells) {
		return fmt.Errorf("scan wants %d columns, row has %d", len(dest), len(cells))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan destination %d is not a pointer", i)
		}
		elem := dv.Elem()
		if cells[i] == nil {
			elem.SetZero()
			continue
		}
		cv := reflect.ValueOf(cells[i])
		switch {
		case cv.Type().AssignableTo(elem.Type()):
			elem.Set(cv)
		case numericKind(cv.Kind()) && numericKind(elem.Kind()):
			elem.Set(cv.Convert(elem.Type()))
		default:
			return fmt.Errorf("cannot scan %T into %T", cells[i], d)
		}
	}
	return nil
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
