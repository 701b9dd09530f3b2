package adjustlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS adjustment_logs (
        id TEXT PRIMARY KEY,
        queue_id TEXT,
        item_id TEXT,
        old_score REAL,
        new_score REAL,
        old_position INTEGER,
        new_position INTEGER,
        reason TEXT,
        actor TEXT,
        ts INTEGER
    );
    CREATE INDEX IF NOT EXISTS idx_adjustment_queue_ts ON adjustment_logs(queue_id, ts);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("exec schema: %v, close: %v", err, cerr)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, entries ...Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO adjustment_logs
        (id, queue_id, item_id, old_score, new_score, old_position, new_position, reason, actor, ts)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.QueueID, e.ItemID, e.OldScore, e.NewScore,
			e.OldPosition, e.NewPosition, string(e.Reason), e.Actor, e.Timestamp.UnixNano()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Entry, error) {
	query := `SELECT id, queue_id, item_id, old_score, new_score, old_position, new_position, reason, actor, ts
        FROM adjustment_logs WHERE 1=1`
	var args []any
	if q.QueueID != "" {
		query += " AND queue_id = ?"
		args = append(args, q.QueueID)
	}
	if q.ItemID != "" {
		query += " AND item_id = ?"
		args = append(args, q.ItemID)
	}
	if q.Reason != "" {
		query += " AND reason = ?"
		args = append(args, string(q.Reason))
	}
	if !q.Start.IsZero() {
		query += " AND ts >= ?"
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += " AND ts <= ?"
		args = append(args, q.End.UnixNano())
	}
	query += " ORDER BY ts"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Entry
	for rows.Next() {
		var e Entry
		var reason string
		var ts int64
		if err := rows.Scan(&e.ID, &e.QueueID, &e.ItemID, &e.OldScore, &e.NewScore,
			&e.OldPosition, &e.NewPosition, &reason, &e.Actor, &ts); err != nil {
			return nil, err
		}
		e.Reason = Reason(reason)
		e.Timestamp = time.Unix(0, ts)
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
