package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/vLannaAi/i3speedex-sub004/internal/db"
	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (the reconciliation queue and its applier).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS identities (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name         TEXT NOT NULL,
	genre        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	email2       TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT '',
	domain2      TEXT NOT NULL DEFAULT '',
	buyer_ref    TEXT,
	producer_ref TEXT,
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS message_records (
	id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	raw_from               TEXT NOT NULL,
	email                  TEXT NOT NULL DEFAULT '',
	domain                 TEXT NOT NULL DEFAULT '',
	local_part             TEXT NOT NULL DEFAULT '',
	identity_ref           TEXT REFERENCES identities(id),
	name1                  TEXT NOT NULL DEFAULT '',
	name2                  TEXT NOT NULL DEFAULT '',
	name1pre               TEXT NOT NULL DEFAULT '',
	name2pre               TEXT NOT NULL DEFAULT '',
	name3                  TEXT NOT NULL DEFAULT '',
	genre                  TEXT NOT NULL DEFAULT '',
	is_personal            BOOLEAN NOT NULL DEFAULT true,
	confidence             DOUBLE PRECISION NOT NULL DEFAULT 0,
	extraction_status      TEXT NOT NULL DEFAULT 'unprocessed',
	reasoning              TEXT NOT NULL DEFAULT '',
	chain_of_thought       TEXT NOT NULL DEFAULT '',
	display_classification TEXT NOT NULL DEFAULT '',
	version                INTEGER NOT NULL DEFAULT 1,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_status ON message_records(extraction_status);
CREATE INDEX IF NOT EXISTS idx_records_identity_ref ON message_records(identity_ref);
CREATE INDEX IF NOT EXISTS idx_records_name1_lower ON message_records(lower(name1));
CREATE INDEX IF NOT EXISTS idx_records_email ON message_records(email);

CREATE TABLE IF NOT EXISTS identity_queue (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	record_id   TEXT NOT NULL REFERENCES message_records(id),
	kind        TEXT NOT NULL,
	proposed    JSONB NOT NULL,
	current     JSONB,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasoning   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	reviewer    TEXT NOT NULL DEFAULT '',
	reviewed_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON identity_queue(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_pending_record
	ON identity_queue(record_id) WHERE status = 'pending';
`

const recordColumns = `id, raw_from, email, domain, local_part, identity_ref,
	name1, name2, name1pre, name2pre, name3, genre, is_personal, confidence,
	extraction_status, reasoning, chain_of_thought, display_classification,
	version, created_at, updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func scanRecord(row pgx.Row) (*identity.MessageRecord, error) {
	var r identity.MessageRecord
	err := row.Scan(
		&r.ID, &r.RawFrom, &r.Email, &r.Domain, &r.LocalPart, &r.IdentityRef,
		&r.Extraction.Name1, &r.Extraction.Name2, &r.Extraction.Name1Pre,
		&r.Extraction.Name2Pre, &r.Extraction.Name3, &r.Extraction.Genre,
		&r.Extraction.IsPersonal, &r.Extraction.Confidence,
		&r.Extraction.Status, &r.Extraction.Reasoning,
		&r.Extraction.ChainOfThought, &r.DisplayClassification,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Extraction.Email = r.Email
	r.Extraction.Domain = r.Domain
	return &r, nil
}

func (s *PostgresStore) SelectUnprocessed(ctx context.Context, limit int) ([]identity.MessageRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM message_records
		 WHERE identity_ref IS NULL AND extraction_status IN ('unprocessed', '')
		 ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select unprocessed")
	}
	defer rows.Close()

	var records []identity.MessageRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: select unprocessed iterate")
}

func (s *PostgresStore) GetMessageRecord(ctx context.Context, recordID string) (*identity.MessageRecord, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM message_records WHERE id = $1`,
		recordID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", recordID)
	}
	return r, nil
}

// SaveExtractionResult upserts the full row keyed by record id, so a
// re-run of the same batch is idempotent.
func (s *PostgresStore) SaveExtractionResult(ctx context.Context, rec *identity.MessageRecord) error {
	e := rec.Extraction
	_, err := s.pool.Exec(ctx,
		`INSERT INTO message_records
		 (id, raw_from, email, domain, local_part,
		  name1, name2, name1pre, name2pre, name3, genre, is_personal,
		  confidence, extraction_status, reasoning, chain_of_thought,
		  display_classification, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (id) DO UPDATE SET
		   email = $3, domain = $4, local_part = $5,
		   name1 = $6, name2 = $7, name1pre = $8, name2pre = $9, name3 = $10,
		   genre = $11, is_personal = $12, confidence = $13,
		   extraction_status = $14, reasoning = $15, chain_of_thought = $16,
		   display_classification = $17, updated_at = $19`,
		rec.ID, rec.RawFrom, rec.Email, rec.Domain, rec.LocalPart,
		e.Name1, e.Name2, e.Name1Pre, e.Name2Pre, e.Name3, string(e.Genre),
		e.IsPersonal, e.Confidence, string(e.Status), e.Reasoning,
		e.ChainOfThought, rec.DisplayClassification, rec.Version,
		time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save extraction result %s", rec.ID)
}

func (s *PostgresStore) ListProcessed(ctx context.Context, filter ProcessedFilter) ([]identity.MessageRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM message_records`
	args := []any{}

	if filter.Status != "" {
		query += ` WHERE extraction_status = $1`
		args = append(args, string(filter.Status))
	} else {
		query += ` WHERE extraction_status IN
			('extracted_high', 'extracted_medium', 'extracted_low', 'not_applicable')`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list processed")
	}
	defer rows.Close()

	var records []identity.MessageRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list processed iterate")
}

// UpdateDerivedFields rewrites the fields a fixup pass recomputes and
// bumps the record version.
func (s *PostgresStore) UpdateDerivedFields(ctx context.Context, rec *identity.MessageRecord) error {
	e := rec.Extraction
	tag, err := s.pool.Exec(ctx,
		`UPDATE message_records SET
		   name1pre = $1, name2pre = $2, name3 = $3, genre = $4,
		   extraction_status = $5, display_classification = $6,
		   version = version + 1, updated_at = $7
		 WHERE id = $8`,
		e.Name1Pre, e.Name2Pre, e.Name3, string(e.Genre), string(e.Status),
		rec.DisplayClassification, time.Now().UTC(), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update derived fields %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) GenresForName(ctx context.Context, name string) ([]identity.Genre, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT genre FROM message_records
		 WHERE lower(name1) = lower($1) AND genre <> ''`,
		name,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: genres for name")
	}
	defer rows.Close()

	var genres []identity.Genre
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, eris.Wrap(err, "postgres: scan genre")
		}
		genres = append(genres, identity.Genre(g))
	}
	return genres, eris.Wrap(rows.Err(), "postgres: genres for name iterate")
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[identity.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT extraction_status, COUNT(*) FROM message_records GROUP BY extraction_status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[identity.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[identity.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by status iterate")
}
