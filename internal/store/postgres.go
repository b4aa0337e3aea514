package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists run logs, stats and settings in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_logs (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			raw_input TEXT NOT NULL,
			sanitized_input TEXT NOT NULL,
			agent_response TEXT NOT NULL DEFAULT '',
			pii_detected TEXT[] NOT NULL DEFAULT '{}',
			processing_time BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'success',
			confidence_scores JSONB,
			analysis JSONB,
			input_hash TEXT NOT NULL DEFAULT '',
			output_hash TEXT NOT NULL DEFAULT '',
			signature TEXT NOT NULL DEFAULT '',
			signer TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_seq ON run_logs (seq DESC);`,
		`CREATE TABLE IF NOT EXISTS system_stats (
			id TEXT PRIMARY KEY DEFAULT 'global',
			queries_processed BIGINT NOT NULL DEFAULT 0,
			pii_redacted BIGINT NOT NULL DEFAULT 0,
			avg_processing_time BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS pii_settings (
			id TEXT PRIMARY KEY DEFAULT 'global',
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const runLogColumns = `id, ts, raw_input, sanitized_input, agent_response, pii_detected,
	processing_time, status, confidence_scores, analysis, input_hash, output_hash, signature, signer`

func (s *PostgresStore) CreateRunLog(ctx context.Context, l RunLog) (RunLog, error) {
	l = prepare(l)
	var analysis []byte
	if len(l.Analysis) > 0 {
		analysis = l.Analysis
	}
	detected := l.PIIDetected
	if detected == nil {
		detected = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_logs (`+runLogColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
			sanitized_input = EXCLUDED.sanitized_input,
			agent_response = EXCLUDED.agent_response,
			status = EXCLUDED.status,
			signature = EXCLUDED.signature,
			signer = EXCLUDED.signer`,
		l.ID,
		l.Timestamp,
		l.RawInput,
		l.SanitizedInput,
		l.AgentResponse,
		detected,
		l.ProcessingTime,
		l.Status,
		l.ConfidenceScores,
		analysis,
		l.InputHash,
		l.OutputHash,
		l.Signature,
		l.Signer,
	)
	if err != nil {
		return RunLog{}, fmt.Errorf("save run log: %w", err)
	}
	return l, nil
}

func scanRunLog(row pgx.Row) (RunLog, error) {
	var (
		l        RunLog
		analysis []byte
	)
	err := row.Scan(&l.ID, &l.Timestamp, &l.RawInput, &l.SanitizedInput, &l.AgentResponse, &l.PIIDetected,
		&l.ProcessingTime, &l.Status, &l.ConfidenceScores, &analysis, &l.InputHash, &l.OutputHash,
		&l.Signature, &l.Signer)
	if err != nil {
		return RunLog{}, err
	}
	if len(analysis) > 0 {
		l.Analysis = json.RawMessage(analysis)
	}
	return l, nil
}

func (s *PostgresStore) RunLogs(ctx context.Context, limit int) ([]RunLog, error) {
	limit = clampLimit(limit)
	rows, err := s.pool.Query(ctx,
		`SELECT `+runLogColumns+` FROM run_logs ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query run logs: %w", err)
	}
	defer rows.Close()

	out := make([]RunLog, 0, limit)
	for rows.Next() {
		l, err := scanRunLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run log row: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run log rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RunLog(ctx context.Context, id string) (RunLog, error) {
	l, err := scanRunLog(s.pool.QueryRow(ctx,
		`SELECT `+runLogColumns+` FROM run_logs WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return RunLog{}, ErrNotFound
	}
	if err != nil {
		return RunLog{}, fmt.Errorf("get run log: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT queries_processed, pii_redacted, avg_processing_time, updated_at
		 FROM system_stats WHERE id='global'`).
		Scan(&st.QueriesProcessed, &st.PIIRedacted, &st.AvgProcessingTime, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return st, nil
}

// RecordRun updates the counters in one statement so concurrent runs never
// lose an increment.
func (s *PostgresStore) RecordRun(ctx context.Context, detected int, elapsed time.Duration) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`INSERT INTO system_stats (id, queries_processed, pii_redacted, avg_processing_time, updated_at)
		 VALUES ('global', 1, $1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET
			avg_processing_time = ROUND(
				(system_stats.avg_processing_time * system_stats.queries_processed + $2)::numeric
				/ (system_stats.queries_processed + 1))::bigint,
			queries_processed = system_stats.queries_processed + 1,
			pii_redacted = system_stats.pii_redacted + $1,
			updated_at = now()
		 RETURNING queries_processed, pii_redacted, avg_processing_time, updated_at`,
		int64(detected), elapsed.Milliseconds()).
		Scan(&st.QueriesProcessed, &st.PIIRedacted, &st.AvgProcessingTime, &st.UpdatedAt)
	if err != nil {
		return Stats{}, fmt.Errorf("record run: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Settings(ctx context.Context) (PIISettings, error) {
	var (
		data    []byte
		updated time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT data, updated_at FROM pii_settings WHERE id='global'`).
		Scan(&data, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultPIISettings(), nil
	}
	if err != nil {
		return PIISettings{}, fmt.Errorf("get settings: %w", err)
	}
	var p PIISettings
	if err := json.Unmarshal(data, &p); err != nil {
		return PIISettings{}, fmt.Errorf("decode settings: %w", err)
	}
	p.UpdatedAt = updated
	return p, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, p PIISettings) (PIISettings, error) {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return PIISettings{}, fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pii_settings (id, data, updated_at) VALUES ('global', $1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		data, p.UpdatedAt)
	if err != nil {
		return PIISettings{}, fmt.Errorf("save settings: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
