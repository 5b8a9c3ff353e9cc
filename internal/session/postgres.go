package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS gateway_sessions (
	session_id TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Postgres struct {
	DB *pgxpool.Pool
}

// OpenPostgres connects a pool and makes sure the sessions table exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{DB: pool}, nil
}

func (s *Postgres) Get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	if err := checkID(sessionID); err != nil {
		return nil, false, err
	}
	var blob []byte
	err := s.DB.QueryRow(ctx, `
		SELECT data FROM gateway_sessions WHERE session_id = $1
	`, sessionID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (s *Postgres) Put(ctx context.Context, sessionID string, blob []byte) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO gateway_sessions (session_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, sessionID, blob)
	return err
}

func (s *Postgres) Delete(ctx context.Context, sessionID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM gateway_sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT session_id FROM gateway_sessions ORDER BY session_id`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Postgres) Close(context.Context) error {
	s.DB.Close()
	return nil
}
