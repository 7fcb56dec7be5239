package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"sqlpilot/internal/types"
)

func TestRunShapesRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name, salary FROM employees;").
		WillReturnRows(sqlmock.NewRows([]string{"name", "salary"}).
			AddRow("ada", 120000).
			AddRow("grace", 140000))

	r := New(db, nil)
	rows, err := r.Run(context.Background(), "SELECT name, salary FROM employees;")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "ada", rows[0]["name"])
	require.Equal(t, int64(140000), rows[1]["salary"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunNormalizesBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT note FROM tickets;").
		WillReturnRows(sqlmock.NewRows([]string{"note"}).AddRow([]byte("raw bytes")))

	r := New(db, nil)
	rows, err := r.Run(context.Background(), "SELECT note FROM tickets;")
	require.NoError(t, err)
	require.IsType(t, "", rows[0]["note"], "byte slices must come back as strings")
	require.Equal(t, "raw bytes", rows[0]["note"])
}

func TestRunEmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT \\* FROM empty;").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := New(db, nil)
	rows, err := r.Run(context.Background(), "SELECT * FROM empty;")
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}

func TestRunRejectionReturnsExecutionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT bogus FROM employees;").
		WillReturnError(errors.New("no such column: bogus"))

	r := New(db, nil)
	_, err = r.Run(context.Background(), "SELECT bogus FROM employees;")

	var execErr *types.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "SELECT bogus FROM employees;", execErr.SQL)
}
