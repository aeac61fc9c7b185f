package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Savage57/prime-ledger/internal/store/storetest"
)

func TestEnqueue(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	db := &storetest.MockDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	s := NewStore(db)

	ev, err := s.Enqueue(context.Background(), db, "transfer.initiate", map[string]any{
		"settlement_id": "s1",
		"amount":        int64(50000),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "transfer.initiate", ev.Topic)
	assert.False(t, ev.Processed)
	assert.True(t, strings.Contains(gotSQL, "INSERT INTO outbox_events"))
	require.Len(t, gotArgs, 4)
	assert.Contains(t, string(ev.Payload), `"settlement_id":"s1"`)
}

func TestMarkFailedIncrementsRetries(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	db := &storetest.MockDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	s := NewStore(db)

	require.NoError(t, s.MarkFailed(context.Background(), "ev1", "provider timeout"))
	assert.True(t, strings.Contains(gotSQL, "retry_count = retry_count + 1"))
	assert.False(t, strings.Contains(gotSQL, "DELETE"))
	assert.Equal(t, "provider timeout", gotArgs[1])
}

func TestMarkProcessedOnlyOnce(t *testing.T) {
	var gotSQL string
	db := &storetest.MockDB{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	s := NewStore(db)

	require.NoError(t, s.MarkProcessed(context.Background(), "ev1"))
	assert.True(t, strings.Contains(gotSQL, "processed = false"))
}

// fakeSource is an in-memory EventSource for dispatcher tests.
type fakeSource struct {
	events    []Event
	processed []string
	failed    map[string]string
}

func (f *fakeSource) FetchUnprocessed(ctx context.Context, limit int) ([]Event, error) {
	if limit > len(f.events) {
		limit = len(f.events)
	}
	return f.events[:limit], nil
}

func (f *fakeSource) MarkProcessed(ctx context.Context, id string) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeSource) MarkFailed(ctx context.Context, id, cause string) error {
	if f.failed == nil {
		f.failed = make(map[string]string)
	}
	f.failed[id] = cause
	return nil
}

func TestDispatcherRoutesByTopic(t *testing.T) {
	src := &fakeSource{events: []Event{
		{ID: "e1", Topic: "transfer.initiate", CreatedAt: time.Now()},
		{ID: "e2", Topic: "bill-payment.initiate", CreatedAt: time.Now()},
	}}
	d := NewDispatcher(src, time.Second, 10, nil, nil)

	var handled []string
	d.Handle("transfer.initiate", func(ctx context.Context, ev Event) error {
		handled = append(handled, ev.ID)
		return nil
	})
	d.Handle("bill-payment.initiate", func(ctx context.Context, ev Event) error {
		handled = append(handled, ev.ID)
		return nil
	})

	require.NoError(t, d.RunOnce(context.Background()))
	assert.Equal(t, []string{"e1", "e2"}, handled)
	assert.Equal(t, []string{"e1", "e2"}, src.processed)
	assert.Empty(t, src.failed)
}

func TestDispatcherFailureDoesNotAbortBatch(t *testing.T) {
	src := &fakeSource{events: []Event{
		{ID: "e1", Topic: "transfer.initiate", CreatedAt: time.Now()},
		{ID: "e2", Topic: "transfer.initiate", CreatedAt: time.Now()},
	}}
	d := NewDispatcher(src, time.Second, 10, nil, nil)

	d.Handle("transfer.initiate", func(ctx context.Context, ev Event) error {
		if ev.ID == "e1" {
			return errors.New("provider unreachable")
		}
		return nil
	})

	require.NoError(t, d.RunOnce(context.Background()))
	assert.Equal(t, []string{"e2"}, src.processed)
	assert.Equal(t, "provider unreachable", src.failed["e1"])
}

func TestDispatcherUnroutableTopic(t *testing.T) {
	src := &fakeSource{events: []Event{
		{ID: "e1", Topic: "unknown.topic", CreatedAt: time.Now()},
	}}
	d := NewDispatcher(src, time.Second, 10, nil, nil)

	require.NoError(t, d.RunOnce(context.Background()))
	assert.Empty(t, src.processed)
	assert.Contains(t, src.failed["e1"], "no handler")
}
