package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/types"
)

// mockRow implements pgx.Row with a canned scan result.
type mockRow struct {
	scanErr error
	value   int
}

func (r mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if len(dest) == 1 {
		if p, ok := dest[0].(*int); ok {
			*p = r.value
		}
	}
	return nil
}

// mockDBTX records queries and returns canned results.
type mockDBTX struct {
	execCalls  []string
	execArgs   [][]any
	execTag    pgconn.CommandTag
	execErr    error
	queryCalls []string
	row        mockRow
}

func (m *mockDBTX) Exec(_ context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	m.execCalls = append(m.execCalls, sql)
	m.execArgs = append(m.execArgs, arguments)
	if m.execErr != nil {
		return pgconn.CommandTag{}, m.execErr
	}
	return m.execTag, nil
}

func (m *mockDBTX) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	m.queryCalls = append(m.queryCalls, sql)
	return nil, errors.New("not implemented")
}

func (m *mockDBTX) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	m.queryCalls = append(m.queryCalls, sql)
	return m.row
}

func TestPostgresStore_Exists_Found(t *testing.T) {
	db := &mockDBTX{row: mockRow{value: 1}}
	store := NewPostgresStoreWithDB(db, discardLogger())

	exists, err := store.Exists(context.Background(), "1001")

	require.NoError(t, err)
	assert.True(t, exists)
	require.Len(t, db.queryCalls, 1)
	assert.Contains(t, db.queryCalls[0], "FROM processed_orders")
}

func TestPostgresStore_Exists_NotFound(t *testing.T) {
	db := &mockDBTX{row: mockRow{scanErr: pgx.ErrNoRows}}
	store := NewPostgresStoreWithDB(db, discardLogger())

	exists, err := store.Exists(context.Background(), "1001")

	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPostgresStore_Exists_QueryError(t *testing.T) {
	db := &mockDBTX{row: mockRow{scanErr: errors.New("connection reset")}}
	store := NewPostgresStoreWithDB(db, discardLogger())

	_, err := store.Exists(context.Background(), "1001")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestPostgresStore_Insert_NewRecord(t *testing.T) {
	db := &mockDBTX{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store := NewPostgresStoreWithDB(db, discardLogger())
	order := testOrder("1001")

	inserted, err := store.Insert(context.Background(), order)

	require.NoError(t, err)
	assert.True(t, inserted)
	require.Len(t, db.execCalls, 1)
	assert.Contains(t, db.execCalls[0], "ON CONFLICT (external_order_id) DO NOTHING")
	require.Len(t, db.execArgs[0], 5)
	assert.Equal(t, order.ID, db.execArgs[0][0])
	assert.Equal(t, "1001", db.execArgs[0][1])
}

// A conflicting insert affects zero rows and reports inserted=false with no
// error; that is the contract the ingestor relies on.
func TestPostgresStore_Insert_Conflict(t *testing.T) {
	db := &mockDBTX{execTag: pgconn.NewCommandTag("INSERT 0 0")}
	store := NewPostgresStoreWithDB(db, discardLogger())

	inserted, err := store.Insert(context.Background(), testOrder("1001"))

	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestPostgresStore_Insert_ExecError(t *testing.T) {
	db := &mockDBTX{execErr: errors.New("deadlock detected")}
	store := NewPostgresStoreWithDB(db, discardLogger())

	_, err := store.Insert(context.Background(), testOrder("1001"))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db := &mockDBTX{execTag: pgconn.NewCommandTag("CREATE TABLE")}
	store := NewPostgresStoreWithDB(db, discardLogger())

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.Len(t, db.execCalls, 1)
	assert.Contains(t, db.execCalls[0], "CREATE TABLE IF NOT EXISTS processed_orders")
	assert.Contains(t, db.execCalls[0], "CREATE UNIQUE INDEX IF NOT EXISTS idx_processed_orders_external")
}
