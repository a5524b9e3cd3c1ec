package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "message_records", []string{"id", "raw_from"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"message_records"}, []string{"id", "raw_from"}).WillReturnResult(3)

	rows := [][]any{
		{"r1", "a@acme.it"},
		{"r2", "b@acme.it"},
		{"r3", "c@acme.it"},
	}
	n, err := CopyFrom(context.Background(), mock, "message_records", []string{"id", "raw_from"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"message_records"}, []string{"id", "raw_from"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"r1", "a@acme.it"}}
	_, err = CopyFrom(context.Background(), mock, "message_records", []string{"id", "raw_from"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO message_records")
	assert.NoError(t, mock.ExpectationsWereMet())
}
