package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/vLannaAi/i3speedex-sub004/internal/db"
)

// Entry is one reviewed structural change proposal.
type Entry struct {
	ID         string
	RecordID   string
	Kind       Kind
	Proposal   Proposal
	Current    []byte // JSON snapshot of the state the proposal was made against
	Confidence float64
	Reasoning  string
	Status     Status
	Reviewer   string
	ReviewedAt *time.Time
	CreatedAt  time.Time
}

// Store persists queue entries. It requires Postgres; the pending
// uniqueness invariant leans on a partial unique index.
type Store struct {
	pool db.Pool
}

// NewStore creates a queue store on the given pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

const entryColumns = `id, record_id, kind, proposed, current, confidence,
	reasoning, status, reviewer, reviewed_at, created_at`

// Insert adds a pending entry. A record with a pending entry already in
// the queue is rejected with ErrPendingExists.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	if err := e.Proposal.Validate(); err != nil {
		return err
	}
	kind, err := e.Proposal.Kind()
	if err != nil {
		return err
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identity_queue WHERE record_id = $1 AND status = 'pending')`,
		e.RecordID,
	).Scan(&exists)
	if err != nil {
		return eris.Wrapf(err, "queue: check pending for record %s", e.RecordID)
	}
	if exists {
		return ErrPendingExists
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Kind = kind
	e.Status = StatusPending
	e.CreatedAt = time.Now().UTC()

	proposed, err := e.Proposal.marshal()
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO identity_queue
		 (id, record_id, kind, proposed, current, confidence, reasoning, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.RecordID, string(kind), proposed, e.Current,
		e.Confidence, e.Reasoning, string(StatusPending), e.CreatedAt,
	)
	if err != nil {
		// The partial unique index closes the race the pre-check leaves open.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPendingExists
		}
		return eris.Wrapf(err, "queue: insert entry for record %s", e.RecordID)
	}
	return nil
}

// Get fetches one entry, nil when it does not exist.
func (s *Store) Get(ctx context.Context, entryID string) (*Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM identity_queue WHERE id = $1`,
		entryID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "queue: get entry %s", entryID)
	}
	return e, nil
}

// List returns entries newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + entryColumns + ` FROM identity_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
		query += ` ORDER BY created_at DESC LIMIT $2`
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "queue: list entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "queue: scan entry")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "queue: list entries iterate")
}

// Approve moves a pending entry to approved.
func (s *Store) Approve(ctx context.Context, entryID, reviewer string) error {
	return s.review(ctx, entryID, reviewer, StatusApproved)
}

// Reject moves a pending entry to its terminal rejected state.
func (s *Store) Reject(ctx context.Context, entryID, reviewer string) error {
	return s.review(ctx, entryID, reviewer, StatusRejected)
}

// review performs the status-guarded transition out of pending. An
// UPDATE touching zero rows means the entry is missing or already
// settled; both surface as ErrInvalidTransition.
func (s *Store) review(ctx context.Context, entryID, reviewer string, to Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identity_queue
		 SET status = $1, reviewer = $2, reviewed_at = $3
		 WHERE id = $4 AND status = 'pending'`,
		string(to), reviewer, time.Now().UTC(), entryID,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: %s entry %s", to, entryID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidTransition, "entry %s to %s", entryID, to)
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var kind, status string
	var proposed []byte

	err := row.Scan(
		&e.ID, &e.RecordID, &kind, &proposed, &e.Current, &e.Confidence,
		&e.Reasoning, &status, &e.Reviewer, &e.ReviewedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = Kind(kind)
	e.Status = Status(status)
	e.Proposal, err = unmarshalProposal(proposed)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
