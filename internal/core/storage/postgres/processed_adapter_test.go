package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestProcessedAdapter_FilterProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewProcessedAdapter(db)

	mock.ExpectQuery(regexp.QuoteMeta(queryFilterProcessed)).
		WithArgs(pq.Array([]string{"a", "b", "c"})).
		WillReturnRows(sqlmock.NewRows([]string{"aid"}).AddRow("a").AddRow("c"))

	processed, err := adapter.FilterProcessed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, processed, 2)
	require.Contains(t, processed, "a")
	require.Contains(t, processed, "c")
	require.NotContains(t, processed, "b")
}

func TestProcessedAdapter_FilterProcessedEmptyInputSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewProcessedAdapter(db)

	processed, err := adapter.FilterProcessed(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, processed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedAdapter_MarkProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewProcessedAdapter(db)

	mock.ExpectExec(regexp.QuoteMeta(queryMarkProcessed)).
		WithArgs(pq.Array([]string{"a", "b"}), sqlmock.AnyArg(), "batch_test").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, adapter.MarkProcessed(context.Background(), []string{"a", "b"}, "batch_test"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedAdapter_MarkProcessedAbsorbsConflicts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewProcessedAdapter(db)

	// Another committer already recorded "a": only one row lands, and that
	// is success, not an error.
	mock.ExpectExec(regexp.QuoteMeta(queryMarkProcessed)).
		WithArgs(pq.Array([]string{"a", "b"}), sqlmock.AnyArg(), "batch_test").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.MarkProcessed(context.Background(), []string{"a", "b"}, "batch_test"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedAdapter_MarkProcessedEmptyInputSkipsExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewProcessedAdapter(db)

	require.NoError(t, adapter.MarkProcessed(context.Background(), nil, "batch_test"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedAdapter_DeleteProcessedBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewProcessedAdapter(db)
	cutoff := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(queryDeleteProcessedBefore)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := adapter.DeleteProcessedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, int64(42), deleted)
}
