package queue

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockApplier(t *testing.T) (*Applier, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewApplier(mock, NewStore(mock)), mock
}

func expectGetEntry(mock pgxmock.PgxPoolIface, id, kind, proposed, status string) {
	mock.ExpectQuery(`SELECT .* FROM identity_queue WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(entryRows().AddRow(
			id, "rec-1", kind, []byte(proposed), []byte(nil),
			0.9, "reviewed", status, "reviewer-1", nil, time.Now().UTC(),
		))
}

func TestApplier_Apply_Link(t *testing.T) {
	a, mock := newMockApplier(t)

	expectGetEntry(mock, "entry-1", "link", `{"link":{"identity_id":"id-1"}}`, "approved")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM identities WHERE id = \$1`).
		WithArgs("id-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectQuery(`SELECT name1, name2, genre FROM message_records`).
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"name1", "name2", "genre"}).
			AddRow("Marco", "Rossi", "Mr"))
	mock.ExpectExec(`UPDATE identities SET`).
		WithArgs("Marco Rossi", "Mr", pgxmock.AnyArg(), "id-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE message_records`).
		WithArgs("id-1", "reviewed", pgxmock.AnyArg(), "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE identity_queue SET status = 'applied'`).
		WithArgs(pgxmock.AnyArg(), "entry-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, a.Apply(context.Background(), "entry-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_LinkNoBackfillForNamelessRecord(t *testing.T) {
	a, mock := newMockApplier(t)

	expectGetEntry(mock, "entry-1", "link", `{"link":{"identity_id":"id-1"}}`, "approved")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM identities WHERE id = \$1`).
		WithArgs("id-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectQuery(`SELECT name1, name2, genre FROM message_records`).
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{"name1", "name2", "genre"}).
			AddRow("", "", ""))
	mock.ExpectExec(`UPDATE message_records`).
		WithArgs("id-1", "reviewed", pgxmock.AnyArg(), "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE identity_queue SET status = 'applied'`).
		WithArgs(pgxmock.AnyArg(), "entry-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, a.Apply(context.Background(), "entry-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_NotApproved(t *testing.T) {
	a, mock := newMockApplier(t)

	expectGetEntry(mock, "entry-1", "link", `{"link":{"identity_id":"id-1"}}`, "pending")

	err := a.Apply(context.Background(), "entry-1")
	assert.True(t, eris.Is(err, ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_CreateUser(t *testing.T) {
	a, mock := newMockApplier(t)

	expectGetEntry(mock, "entry-1", "create_user",
		`{"create_user":{"name":"Marco Rossi","email":"m.rossi@acme.it","domain":"acme.it"}}`,
		"approved")
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs(pgxmock.AnyArg(), "Marco Rossi", "", "m.rossi@acme.it", "acme.it",
			pgxmock.AnyArg(), pgxmock.AnyArg(), "active", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE message_records`).
		WithArgs(pgxmock.AnyArg(), "reviewed", pgxmock.AnyArg(), "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE identity_queue SET status = 'applied'`).
		WithArgs(pgxmock.AnyArg(), "entry-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, a.Apply(context.Background(), "entry-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_MergeSourceDeleted_RollsBack(t *testing.T) {
	a, mock := newMockApplier(t)

	expectGetEntry(mock, "entry-1", "merge",
		`{"merge":{"source_id":"src","target_id":"dst"}}`, "approved")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, email, domain FROM identities`).
		WithArgs("src").
		WillReturnRows(pgxmock.NewRows([]string{"status", "email", "domain"}).
			AddRow("deleted", "old@acme.it", "acme.it"))
	mock.ExpectRollback()

	err := a.Apply(context.Background(), "entry-1")
	assert.True(t, eris.Is(err, ErrSourceDeleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_Merge(t *testing.T) {
	a, mock := newMockApplier(t)

	expectGetEntry(mock, "entry-1", "merge",
		`{"merge":{"source_id":"src","target_id":"dst"}}`, "approved")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, email, domain FROM identities`).
		WithArgs("src").
		WillReturnRows(pgxmock.NewRows([]string{"status", "email", "domain"}).
			AddRow("active", "old@acme.it", "acme.it"))
	mock.ExpectExec(`UPDATE identities SET`).
		WithArgs("old@acme.it", "acme.it", pgxmock.AnyArg(), "dst").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE message_records SET identity_ref`).
		WithArgs("dst", pgxmock.AnyArg(), "src").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec(`UPDATE identities SET status = 'deleted'`).
		WithArgs(pgxmock.AnyArg(), "src").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE identity_queue SET status = 'applied'`).
		WithArgs(pgxmock.AnyArg(), "entry-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, a.Apply(context.Background(), "entry-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_SplitRepointsOnlyListedRecords(t *testing.T) {
	a, mock := newMockApplier(t)

	expectGetEntry(mock, "entry-1", "split",
		`{"split":{"source_id":"src","new_name":"Anna Bianchi","new_email":"a.bianchi@acme.it","record_ids":["r1","r2"]}}`,
		"approved")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT domain, buyer_ref, producer_ref FROM identities`).
		WithArgs("src").
		WillReturnRows(pgxmock.NewRows([]string{"domain", "buyer_ref", "producer_ref"}).
			AddRow("acme.it", nil, nil))
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs(pgxmock.AnyArg(), "Anna Bianchi", "a.bianchi@acme.it", "acme.it",
			pgxmock.AnyArg(), pgxmock.AnyArg(), "active", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE message_records SET identity_ref`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), []string{"r1", "r2"}, "src").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`UPDATE identity_queue SET status = 'applied'`).
		WithArgs(pgxmock.AnyArg(), "entry-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, a.Apply(context.Background(), "entry-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplier_Apply_SplitForeignRecord_RollsBack(t *testing.T) {
	a, mock := newMockApplier(t)

	expectGetEntry(mock, "entry-1", "split",
		`{"split":{"source_id":"src","new_name":"Anna","new_email":"a@acme.it","record_ids":["r1","r-foreign"]}}`,
		"approved")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT domain, buyer_ref, producer_ref FROM identities`).
		WithArgs("src").
		WillReturnRows(pgxmock.NewRows([]string{"domain", "buyer_ref", "producer_ref"}).
			AddRow("acme.it", nil, nil))
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs(pgxmock.AnyArg(), "Anna", "a@acme.it", "acme.it",
			pgxmock.AnyArg(), pgxmock.AnyArg(), "active", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE message_records SET identity_ref`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), []string{"r1", "r-foreign"}, "src").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	err := a.Apply(context.Background(), "entry-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split repointed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
