package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "record_id", "kind", "proposed", "current", "confidence",
		"reasoning", "status", "reviewer", "reviewed_at", "created_at",
	})
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewStore(mock), mock
}

func TestStore_Insert(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO identity_queue`).
		WithArgs(pgxmock.AnyArg(), "rec-1", "link", pgxmock.AnyArg(), pgxmock.AnyArg(),
			0.85, "same email", "pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e := &Entry{
		RecordID:   "rec-1",
		Proposal:   Proposal{Link: &LinkProposal{IdentityID: "id-1"}},
		Confidence: 0.85,
		Reasoning:  "same email",
	}
	require.NoError(t, s.Insert(context.Background(), e))
	assert.Equal(t, KindLink, e.Kind)
	assert.Equal(t, StatusPending, e.Status)
	assert.NotEmpty(t, e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Insert_PendingExists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.Insert(context.Background(), &Entry{
		RecordID: "rec-1",
		Proposal: Proposal{Link: &LinkProposal{IdentityID: "id-1"}},
	})
	assert.True(t, eris.Is(err, ErrPendingExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Insert_UniqueViolationMapsToPendingExists(t *testing.T) {
	s, mock := newMockStore(t)

	// Pre-check passes but a concurrent insert wins; the partial unique
	// index rejects ours.
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO identity_queue`).
		WithArgs(pgxmock.AnyArg(), "rec-1", "link", pgxmock.AnyArg(), pgxmock.AnyArg(),
			0.85, "same email", "pending", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.Insert(context.Background(), &Entry{
		RecordID:   "rec-1",
		Proposal:   Proposal{Link: &LinkProposal{IdentityID: "id-1"}},
		Confidence: 0.85,
		Reasoning:  "same email",
	})
	assert.True(t, eris.Is(err, ErrPendingExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Insert_InvalidProposal(t *testing.T) {
	s, _ := newMockStore(t)

	err := s.Insert(context.Background(), &Entry{RecordID: "rec-1"})
	assert.Error(t, err)
}

func TestStore_Approve(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE identity_queue`).
		WithArgs("approved", "reviewer-1", pgxmock.AnyArg(), "entry-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.Approve(context.Background(), "entry-1", "reviewer-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Reject_AlreadySettled(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE identity_queue`).
		WithArgs("rejected", "reviewer-1", pgxmock.AnyArg(), "entry-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.Reject(context.Background(), "entry-1", "reviewer-1")
	assert.True(t, eris.Is(err, ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM identity_queue WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	e, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_List_StatusFilter(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM identity_queue WHERE status = \$1`).
		WithArgs("pending", 100).
		WillReturnRows(entryRows().AddRow(
			"entry-1", "rec-1", "link", []byte(`{"link":{"identity_id":"id-1"}}`),
			[]byte(nil), 0.85, "same email", "pending", "", nil, time.Now().UTC(),
		))

	entries, err := s.List(context.Background(), StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindLink, entries[0].Kind)
	require.NotNil(t, entries[0].Proposal.Link)
	assert.Equal(t, "id-1", entries[0].Proposal.Link.IdentityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
