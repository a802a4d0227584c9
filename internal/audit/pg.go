package audit

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGSink appends audit records to Postgres. The table is append-only;
// records are never updated or deleted here.
type PGSink struct {
	db *sql.DB
}

// OpenPG connects to Postgres and prepares the audit table.
func OpenPG(dsn string) (*PGSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &PGSink{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPGSink wraps an existing connection, used by tests.
func NewPGSink(db *sql.DB) *PGSink { return &PGSink{db: db} }

func (s *PGSink) Close() error { return s.db.Close() }

// DB exposes the handle for readiness probes.
func (s *PGSink) DB() *sql.DB { return s.db }

func (s *PGSink) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		create table if not exists audit_records (
			id                 text primary key,
			response_id        text not null,
			user_id            text not null,
			role               text not null,
			query              text not null,
			occurred_at        timestamptz not null,
			disclosure_verdict text not null
		)`)
	return err
}

func (s *PGSink) Emit(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		insert into audit_records (id, response_id, user_id, role, query, occurred_at, disclosure_verdict)
		values ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ResponseID, rec.UserID, rec.Role, rec.Query, rec.Timestamp, rec.DisclosureVerdict,
	)
	return err
}
