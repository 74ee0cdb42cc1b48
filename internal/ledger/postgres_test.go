package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"reelgrab/internal/retriever"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithDB(mock, nil), mock
}

func TestIsDone_True(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT 1 FROM downloads`).
		WithArgs("vid-1", "success").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	done, err := store.IsDone(context.Background(), "vid-1")
	require.NoError(t, err)
	require.True(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDone_NoRowMeansNotDone(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT 1 FROM downloads`).
		WithArgs("vid-2", "success").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))

	done, err := store.IsDone(context.Background(), "vid-2")
	require.NoError(t, err)
	require.False(t, done)
}

func TestIsDone_StorageErrorSurfaces(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT 1 FROM downloads`).
		WithArgs("vid-3", "success").
		WillReturnError(errors.New("connection refused"))

	done, err := store.IsDone(context.Background(), "vid-3")
	require.Error(t, err)
	require.False(t, done)
}

func TestRecord_Upsert(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO downloads`).
		WithArgs("vid-1", "creator", "https://example.com/v/1", "failed", "/out/creator").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Record(context.Background(), retriever.Record{
		ID:         "vid-1",
		Owner:      "creator",
		Link:       "https://example.com/v/1",
		Status:     retriever.StatusFailed,
		OutputPath: "/out/creator",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_RequiresID(t *testing.T) {
	t.Parallel()
	store, _ := newMockStore(t)
	err := store.Record(context.Background(), retriever.Record{Owner: "x"})
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs("success", "failed").
		WillReturnRows(pgxmock.NewRows([]string{"succeeded", "failed"}).AddRow(int64(12), int64(3)))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, retriever.Stats{Succeeded: 12, Failed: 3}, stats)
}

func TestStats_ErrorReturnsZeroValue(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs("success", "failed").
		WillReturnError(errors.New("down"))

	stats, err := store.Stats(context.Background())
	require.Error(t, err)
	require.Equal(t, retriever.Stats{}, stats)
}

func TestUpsertRecipient_InsertIfAbsent(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO recipients`).
		WithArgs("chat-42", "Ada").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.UpsertRecipient(context.Background(), "chat-42", "Ada")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS downloads`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS recipients`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.InitSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
