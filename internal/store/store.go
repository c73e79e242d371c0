package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store is the persistence interface: activity records plus the read side of
// the source collaborators.
type Store interface {
	activity.RecordStore
	activity.ParticipationStore
	activity.Roster
	activity.ReviewStore
	activity.Directory

	CountRecords(ctx context.Context) (map[activity.EntityKind]int, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type recordRow struct {
	Doc     string `db:"doc"`
	Version int64  `db:"version"`
}

func (r recordRow) decode() (*activity.Record, error) {
	var rec activity.Record
	if err := json.Unmarshal([]byte(r.Doc), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec.Version = r.Version
	return &rec, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, ref activity.EntityRef) (*activity.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row,
		"SELECT doc, version FROM activity_records WHERE kind = ? AND entity_id = ?",
		ref.Kind, ref.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, activity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", ref, err)
	}
	return row.decode()
}

// SaveRecord inserts a new record when rec.Version is 0, otherwise updates the
// stored row only if its version still matches. On success rec.Version is
// advanced.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *activity.Record) error {
	next := rec.Version + 1
	saved := *rec
	saved.Version = next
	doc, err := json.Marshal(&saved)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Entity, err)
	}

	var lastActivity any
	if rec.Streak.LastActivity != nil {
		lastActivity = rec.Streak.LastActivity.Unix()
	}

	var res sql.Result
	if rec.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO activity_records (kind, entity_id, total_score, last_activity, last_updated, version, doc)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(kind, entity_id) DO NOTHING
		`, rec.Entity.Kind, rec.Entity.ID, rec.TotalScore, lastActivity,
			rec.LastUpdated.UTC(), next, string(doc))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE activity_records
			SET total_score = ?, last_activity = ?, last_updated = ?, version = ?, doc = ?
			WHERE kind = ? AND entity_id = ? AND version = ?
		`, rec.TotalScore, lastActivity, rec.LastUpdated.UTC(), next, string(doc),
			rec.Entity.Kind, rec.Entity.ID, rec.Version)
	}
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.Entity, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.Entity, err)
	}
	if n == 0 {
		return activity.ErrVersionConflict
	}
	rec.Version = next
	return nil
}

func (s *SQLiteStore) TopRecords(ctx context.Context, kind activity.EntityKind, since time.Time, limit int) ([]activity.Record, error) {
	query := "SELECT doc, version FROM activity_records WHERE kind = ?"
	args := []any{kind}

	if !since.IsZero() {
		query += " AND last_activity >= ?"
		args = append(args, since.Unix())
	}

	query += " ORDER BY total_score DESC, entity_id ASC"

	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("top records: %w", err)
	}

	out := make([]activity.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *SQLiteStore) CountRecords(ctx context.Context) (map[activity.EntityKind]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT kind, COUNT(*) AS cnt FROM activity_records GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[activity.EntityKind]int)
	for rows.Next() {
		var kind string
		var cnt int
		if err := rows.Scan(&kind, &cnt); err != nil {
			return nil, err
		}
		counts[activity.EntityKind(kind)] = cnt
	}
	return counts, rows.Err()
}
