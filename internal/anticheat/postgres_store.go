package anticheat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playguard/playguard/internal/pagination"
)

// PostgresStore persists session reports in Postgres. Flags are stored as a
// JSONB document: they are read back whole for adjudication, never queried
// field-by-field.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a report store over an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the reports table if needed. Deployments that run
// cmd/migrate instead get the same schema from migrations/.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS session_reports (
			id            TEXT PRIMARY KEY,
			game_id       TEXT NOT NULL,
			start_time    BIGINT NOT NULL,
			end_time      BIGINT NOT NULL,
			duration_ms   BIGINT NOT NULL,
			final_score   DOUBLE PRECISION NOT NULL,
			action_count  INTEGER NOT NULL,
			flags         JSONB NOT NULL DEFAULT '[]',
			valid         BOOLEAN NOT NULL,
			hash          TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_session_reports_game
			ON session_reports(game_id, end_time DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate session_reports: %w", err)
	}
	return nil
}

func (p *PostgresStore) Record(ctx context.Context, report *Report) error {
	flags, err := json.Marshal(report.Flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO session_reports
			(id, game_id, start_time, end_time, duration_ms, final_score, action_count, flags, valid, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		report.ID, report.GameID, report.StartTime, report.EndTime,
		report.DurationMs, report.FinalScore, report.ActionCount,
		flags, report.Valid, report.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", report.ID, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Report, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, game_id, start_time, end_time, duration_ms, final_score, action_count, flags, valid, hash
		FROM session_reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	return r, err
}

func (p *PostgresStore) ListByGame(ctx context.Context, gameID string, limit int, after *pagination.Cursor) ([]*Report, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, game_id, start_time, end_time, duration_ms, final_score, action_count, flags, valid, hash
		FROM session_reports WHERE game_id = $1
		ORDER BY end_time DESC, id DESC LIMIT $2`
	args := []any{gameID, limit}
	if after != nil {
		query = `
		SELECT id, game_id, start_time, end_time, duration_ms, final_score, action_count, flags, valid, hash
		FROM session_reports WHERE game_id = $1 AND (end_time, id) < ($3, $4)
		ORDER BY end_time DESC, id DESC LIMIT $2`
		args = append(args, after.EndTime, after.ID)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports for %s: %w", gameID, err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var r Report
	var flags []byte
	err := row.Scan(&r.ID, &r.GameID, &r.StartTime, &r.EndTime, &r.DurationMs,
		&r.FinalScore, &r.ActionCount, &flags, &r.Valid, &r.Hash)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(flags, &r.Flags); err != nil {
		return nil, fmt.Errorf("decode flags for %s: %w", r.ID, err)
	}
	if r.Flags == nil {
		r.Flags = []Flag{}
	}
	return &r, nil
}
