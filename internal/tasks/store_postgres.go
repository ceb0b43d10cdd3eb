package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antoniostano/tracker/internal/reliability"
)

const (
	connectAttempts    = 5
	connectBackoffBase = 200 * time.Millisecond
	connectBackoffCap  = 3 * time.Second
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", ErrPersistence, err)
	}
	// Retry refused connections while the database starts.
	if err := reliability.Retry(ctx, connectAttempts, connectBackoffBase, connectBackoffCap, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", ErrPersistence, err)
	}
	if err := initTrackerSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

var entityColumns = []string{"id", "kind", "name", "description", "status", "start_time", "duration_ms", "epic_id"}

func initTrackerSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tracker_entities (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			start_time TIMESTAMPTZ NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			epic_id INTEGER NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tracker_entities_kind ON tracker_entities (kind, id);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init tracker schema failed on %q: %w", ErrPersistence, stmt, err)
		}
	}
	return nil
}

// Save replaces the table contents with snap in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM tracker_entities`); err != nil {
		return fmt.Errorf("%w: clear entities: %w", ErrPersistence, err)
	}

	rows := make([][]any, 0, snap.Len())
	for _, t := range snap.All() {
		rows = append(rows, entityRow(t))
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tracker_entities"}, entityColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("%w: copy entities: %w", ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit tx: %w", ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, name, description, status, start_time, duration_ms, epic_id
		   FROM tracker_entities ORDER BY id`,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: list entities: %w", ErrPersistence, err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var (
			t          Task
			kind       string
			status     string
			startTime  *time.Time
			durationMS int64
			epicID     *int32
		)
		if err := rows.Scan(&t.ID, &kind, &t.Name, &t.Description, &status, &startTime, &durationMS, &epicID); err != nil {
			return Snapshot{}, fmt.Errorf("%w: scan entity row: %w", ErrPersistence, err)
		}
		if t.Kind, err = ParseKind(kind); err != nil {
			return Snapshot{}, fmt.Errorf("%w: entity %d: %w", ErrPersistence, t.ID, err)
		}
		if t.Status, err = ParseStatus(status); err != nil {
			return Snapshot{}, fmt.Errorf("%w: entity %d: %w", ErrPersistence, t.ID, err)
		}
		if startTime != nil {
			t.StartTime = startTime.In(time.Local)
		}
		t.Duration = time.Duration(durationMS) * time.Millisecond
		if epicID != nil {
			t.EpicID = int(*epicID)
		}
		switch t.Kind {
		case KindTask:
			snap.Tasks = append(snap.Tasks, t)
		case KindEpic:
			snap.Epics = append(snap.Epics, t)
		case KindSubtask:
			snap.Subtasks = append(snap.Subtasks, t)
		}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: iterate entity rows: %w", ErrPersistence, err)
	}
	return snap, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func entityRow(t Task) []any {
	var start any
	if t.Scheduled() {
		start = t.StartTime
	}
	var epicID any
	if t.Kind == KindSubtask {
		epicID = int32(t.EpicID)
	}
	return []any{
		int32(t.ID),
		string(t.Kind),
		t.Name,
		t.Description,
		string(t.Status),
		start,
		t.Duration.Milliseconds(),
		epicID,
	}
}
