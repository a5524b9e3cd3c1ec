package queue

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vLannaAi/i3speedex-sub004/internal/db"
	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
)

// ErrSourceDeleted is returned when a merge targets a source identity
// that has already been merged away.
var ErrSourceDeleted = eris.New("queue: merge source identity is deleted")

// Applier commits approved proposals. Each application runs in one
// transaction that also flips the queue entry to applied, so a failure
// leaves the entry approved and re-appliable.
type Applier struct {
	pool  db.Pool
	store *Store
}

// NewApplier creates an applier sharing the queue store's pool.
func NewApplier(pool db.Pool, store *Store) *Applier {
	return &Applier{pool: pool, store: store}
}

// Apply commits one approved entry.
func (a *Applier) Apply(ctx context.Context, entryID string) error {
	e, err := a.store.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if e == nil {
		return eris.Errorf("queue: entry not found: %s", entryID)
	}
	if e.Status != StatusApproved {
		return eris.Wrapf(ErrInvalidTransition, "entry %s is %s, not approved", entryID, e.Status)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "queue: begin apply tx")
	}
	defer tx.Rollback(ctx)

	switch e.Kind {
	case KindLink:
		err = applyLink(ctx, tx, e.RecordID, e.Proposal.Link)
	case KindCreateUser:
		err = applyCreateUser(ctx, tx, e.RecordID, e.Proposal.CreateUser)
	case KindMerge:
		err = applyMerge(ctx, tx, e.Proposal.Merge)
	case KindSplit:
		err = applySplit(ctx, tx, e.Proposal.Split)
	default:
		err = eris.Errorf("queue: unknown proposal kind %q", e.Kind)
	}
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE identity_queue SET status = 'applied', reviewed_at = $1
		 WHERE id = $2 AND status = 'approved'`,
		time.Now().UTC(), entryID,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: mark entry applied %s", entryID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidTransition, "entry %s changed during apply", entryID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "queue: commit apply %s", entryID)
	}

	zap.L().Info("queue: entry applied",
		zap.String("entry_id", entryID),
		zap.String("kind", string(e.Kind)),
	)
	return nil
}

// linkRecord points a message record at an identity, marks it reviewed
// and classifies the sender as a person.
func linkRecord(ctx context.Context, tx pgx.Tx, recordID, identityID string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE message_records
		 SET identity_ref = $1, extraction_status = $2, display_classification = 'person', updated_at = $3
		 WHERE id = $4`,
		identityID, string(identity.StatusReviewed), time.Now().UTC(), recordID,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: link record %s", recordID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("queue: record not found: %s", recordID)
	}
	return nil
}

func applyLink(ctx context.Context, tx pgx.Tx, recordID string, p *LinkProposal) error {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM identities WHERE id = $1`, p.IdentityID,
	).Scan(&status)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("queue: identity not found: %s", p.IdentityID)
		}
		return eris.Wrapf(err, "queue: load identity %s", p.IdentityID)
	}
	if identity.IdentityStatus(status) == identity.IdentityDeleted {
		return eris.Errorf("queue: cannot link to deleted identity %s", p.IdentityID)
	}

	// The record's extracted name and genre fill the identity's empty
	// slots; populated slots are never overwritten.
	var name1, name2, genre string
	err = tx.QueryRow(ctx,
		`SELECT name1, name2, genre FROM message_records WHERE id = $1`, recordID,
	).Scan(&name1, &name2, &genre)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("queue: record not found: %s", recordID)
		}
		return eris.Wrapf(err, "queue: load record %s", recordID)
	}
	fullName := strings.TrimSpace(name1 + " " + name2)
	if fullName != "" || genre != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE identities SET
			   name = CASE WHEN name = '' AND $1 <> '' THEN $1 ELSE name END,
			   genre = CASE WHEN genre = '' AND $2 <> '' THEN $2 ELSE genre END,
			   updated_at = $3
			 WHERE id = $4`,
			fullName, genre, time.Now().UTC(), p.IdentityID,
		); err != nil {
			return eris.Wrapf(err, "queue: backfill identity %s", p.IdentityID)
		}
	}

	return linkRecord(ctx, tx, recordID, p.IdentityID)
}

func applyCreateUser(ctx context.Context, tx pgx.Tx, recordID string, p *CreateUserProposal) error {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := tx.Exec(ctx,
		`INSERT INTO identities
		 (id, name, genre, email, domain, buyer_ref, producer_ref, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, p.Name, p.Genre, p.Email, p.Domain, p.BuyerRef, p.ProducerRef,
		string(identity.IdentityActive), now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: create identity for record %s", recordID)
	}
	return linkRecord(ctx, tx, recordID, id)
}

func applyMerge(ctx context.Context, tx pgx.Tx, p *MergeProposal) error {
	var status, email, domain string
	err := tx.QueryRow(ctx,
		`SELECT status, email, domain FROM identities WHERE id = $1 FOR UPDATE`,
		p.SourceID,
	).Scan(&status, &email, &domain)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("queue: merge source not found: %s", p.SourceID)
		}
		return eris.Wrapf(err, "queue: load merge source %s", p.SourceID)
	}
	if identity.IdentityStatus(status) == identity.IdentityDeleted {
		return eris.Wrapf(ErrSourceDeleted, "source %s", p.SourceID)
	}

	now := time.Now().UTC()

	// Inherit the source's address into the target's free secondary slots.
	tag, err := tx.Exec(ctx,
		`UPDATE identities SET
		   email2 = CASE WHEN email2 = '' THEN $1 ELSE email2 END,
		   domain2 = CASE WHEN domain2 = '' THEN $2 ELSE domain2 END,
		   updated_at = $3
		 WHERE id = $4 AND status = 'active'`,
		email, domain, now, p.TargetID,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: update merge target %s", p.TargetID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("queue: merge target not found or deleted: %s", p.TargetID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE message_records SET identity_ref = $1, updated_at = $2 WHERE identity_ref = $3`,
		p.TargetID, now, p.SourceID,
	); err != nil {
		return eris.Wrapf(err, "queue: repoint records from %s", p.SourceID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE identities SET status = 'deleted', updated_at = $1 WHERE id = $2`,
		now, p.SourceID,
	); err != nil {
		return eris.Wrapf(err, "queue: delete merge source %s", p.SourceID)
	}
	return nil
}

func applySplit(ctx context.Context, tx pgx.Tx, p *SplitProposal) error {
	var domain string
	var buyerRef, producerRef *string
	err := tx.QueryRow(ctx,
		`SELECT domain, buyer_ref, producer_ref FROM identities WHERE id = $1 AND status = 'active'`,
		p.SourceID,
	).Scan(&domain, &buyerRef, &producerRef)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("queue: split source not found or deleted: %s", p.SourceID)
		}
		return eris.Wrapf(err, "queue: load split source %s", p.SourceID)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	// The new identity inherits the source's domain and sales refs.
	if _, err := tx.Exec(ctx,
		`INSERT INTO identities
		 (id, name, email, domain, buyer_ref, producer_ref, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, p.NewName, p.NewEmail, domain, buyerRef, producerRef,
		string(identity.IdentityActive), now, now,
	); err != nil {
		return eris.Wrapf(err, "queue: create split identity from %s", p.SourceID)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE message_records SET identity_ref = $1, updated_at = $2
		 WHERE id = ANY($3) AND identity_ref = $4`,
		id, now, p.RecordIDs, p.SourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: repoint split records from %s", p.SourceID)
	}
	if int(tag.RowsAffected()) != len(p.RecordIDs) {
		return eris.Errorf("queue: split repointed %d of %d records; some do not belong to %s",
			tag.RowsAffected(), len(p.RecordIDs), p.SourceID)
	}
	return nil
}
