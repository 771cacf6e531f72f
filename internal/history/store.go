// Package history keeps a local log of polled usage so trends survive
// restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/janekbaraniewski/usagebar/internal/core"
)

// Entry is one window of one recorded snapshot.
type Entry struct {
	ProviderID  string
	RecordedAt  time.Time
	Window      string
	Utilization float64
	ResetsAt    *time.Time
	Used        *float64
	Limit       *float64
	PlanName    core.PlanName
	RawTier     string
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: creating DB dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening DB: %w", err)
	}
	if err := configureSQLiteConnection(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: configuring DB: %w", err)
	}

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage_windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			window_key TEXT NOT NULL,
			utilization REAL NOT NULL,
			resets_at TEXT,
			used REAL,
			quota REAL,
			plan_name TEXT,
			raw_tier TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_windows_provider_time
			ON usage_windows(provider_id, recorded_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: init schema: %w", err)
		}
	}
	return nil
}

// Record stores every window of snap in one transaction. Snapshots without
// windows are skipped.
func (s *Store) Record(ctx context.Context, snap core.UsageSnapshot) error {
	if len(snap.Windows) == 0 {
		return nil
	}
	recordedAt := snap.Timestamp
	if recordedAt.IsZero() {
		recordedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	keys := make([]string, 0, len(snap.Windows))
	for k := range snap.Windows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		w := snap.Windows[key]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO usage_windows
				(provider_id, recorded_at, window_key, utilization, resets_at, used, quota, plan_name, raw_tier)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ProviderID,
			formatTime(recordedAt),
			key,
			w.UtilizationPercent,
			nullableTime(w.ResetsAt),
			nullableFloat64(w.Used),
			nullableFloat64(w.Limit),
			nullable(string(snap.Tier.PlanName)),
			nullable(snap.Tier.RawTier),
		)
		if err != nil {
			return fmt.Errorf("history: insert %s/%s: %w", snap.ProviderID, key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent returns the newest entries first. An empty providerID matches all
// providers.
func (s *Store) Recent(ctx context.Context, providerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT provider_id, recorded_at, window_key, utilization, resets_at, used, quota, plan_name, raw_tier
		FROM usage_windows`
	args := []any{}
	if strings.TrimSpace(providerID) != "" {
		query += ` WHERE provider_id = ?`
		args = append(args, providerID)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			recordedAt string
			resetsAt   sql.NullString
			used       sql.NullFloat64
			quota      sql.NullFloat64
			plan       sql.NullString
			rawTier    sql.NullString
		)
		if err := rows.Scan(&e.ProviderID, &recordedAt, &e.Window, &e.Utilization, &resetsAt, &used, &quota, &plan, &rawTier); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.RecordedAt = parseTime(recordedAt)
		if resetsAt.Valid {
			t := parseTime(resetsAt.String)
			e.ResetsAt = &t
		}
		if used.Valid {
			e.Used = core.Float64Ptr(used.Float64)
		}
		if quota.Valid {
			e.Limit = core.Float64Ptr(quota.Float64)
		}
		e.PlanName = core.PlanName(plan.String)
		e.RawTier = rawTier.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries recorded before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_windows WHERE recorded_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func nullable(v string) interface{} {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullableFloat64(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return formatTime(*v)
}
