package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

// Synthetic SSH sessions get negative chat IDs, so tests use one to make
// sure nothing mishandles the sign.
const testChatID int64 = -1_000_042

func newChatRepo(pool *chatPool) *ConversationRepository {
	return NewConversationRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))
}

func TestConversationAppendMessage(t *testing.T) {
	pool := &chatPool{}
	repo := newChatRepo(pool)

	if err := repo.AppendMessage(context.Background(), testChatID, "user", "how is AAPL trending?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.execArgs) != 1 {
		t.Fatalf("expected 1 exec, got %d", len(pool.execArgs))
	}
	args := pool.execArgs[0]
	if args[0] != testChatID || args[1] != "user" || args[2] != "how is AAPL trending?" {
		t.Fatalf("insert args = %+v", args)
	}
}

func TestConversationRecentMessagesReversesToChronological(t *testing.T) {
	asked := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	answered := asked.Add(2 * time.Second)
	pool := &chatPool{
		// The query orders newest-first; the repo flips it.
		rows: [][]any{
			{"assistant", "RSI sits at 71, stretched short term", answered},
			{"user", "how is AAPL trending?", asked},
		},
	}
	repo := newChatRepo(pool)

	msgs, err := repo.RecentMessages(context.Background(), testChatID, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || !msgs[0].CreatedAt.Equal(asked) {
		t.Fatalf("oldest message should come first, got %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" {
		t.Fatalf("newest message should come last, got %+v", msgs[1])
	}
}

func TestConversationRecentMessagesDefaultLimit(t *testing.T) {
	pool := &chatPool{}
	repo := newChatRepo(pool)

	msgs, err := repo.RecentMessages(context.Background(), testChatID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
	if len(pool.queryArgs) != 1 {
		t.Fatalf("expected 1 query, got %d", len(pool.queryArgs))
	}
	if limit := pool.queryArgs[0][1]; limit != 20 {
		t.Fatalf("zero limit should fall back to 20, got %v", limit)
	}
}

func TestConversationClear(t *testing.T) {
	pool := &chatPool{}
	repo := newChatRepo(pool)

	if err := repo.ClearConversation(context.Background(), testChatID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.execArgs) != 1 || pool.execArgs[0][0] != testChatID {
		t.Fatalf("delete args = %+v", pool.execArgs)
	}
}

// --- stubs ---

// chatPool records every statement and serves canned (role, content,
// created_at) rows.
type chatPool struct {
	execArgs  [][]any
	queryArgs [][]any
	rows      [][]any
}

func (p *chatPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execArgs = append(p.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func (p *chatPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.queryArgs = append(p.queryArgs, args)

	cloned := make([][]any, len(p.rows))
	for i, row := range p.rows {
		cloned[i] = append([]any(nil), row...)
	}
	return &chatRows{rows: cloned}, nil
}

func (p *chatPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return chatRow{}
}

func (p *chatPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return chatBatchResults{}
}

type chatRows struct {
	rows [][]any
	pos  int
}

func (r *chatRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *chatRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *time.Time:
			*ptr = row[i].(time.Time)
		default:
			return fmt.Errorf("chatRows: unsupported dest %T", d)
		}
	}
	return nil
}

func (r *chatRows) Close()                                       {}
func (r *chatRows) Err() error                                   { return nil }
func (r *chatRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *chatRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *chatRows) Values() ([]any, error)                       { return nil, nil }
func (r *chatRows) RawValues() [][]byte                          { return nil }
func (r *chatRows) Conn() *pgx.Conn                              { return nil }

type chatRow struct{}

func (chatRow) Scan(dest ...any) error { return nil }

type chatBatchResults struct{}

func (chatBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (chatBatchResults) Query() (pgx.Rows, error)         { return &chatRows{}, nil }
func (chatBatchResults) QueryRow() pgx.Row                { return chatRow{} }
func (chatBatchResults) Close() error                     { return nil }
