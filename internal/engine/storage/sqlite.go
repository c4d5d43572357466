// Package storage keeps scan history in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rendis/rankgrid/internal/model"
)

// ErrNotFound is returned when a scan id is unknown.
var ErrNotFound = errors.New("scan not found")

const defaultListLimit = 50

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-16000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		keyword TEXT NOT NULL,
		target_id TEXT NOT NULL,
		business_name TEXT,
		center_lat REAL NOT NULL,
		center_lng REAL NOT NULL,
		grid_size INTEGER NOT NULL,
		radius_miles REAL NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		cell_count INTEGER NOT NULL,
		ranked_cells INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);
	CREATE INDEX IF NOT EXISTS idx_scans_keyword ON scans(keyword);
	CREATE INDEX IF NOT EXISTS idx_scans_target ON scans(target_id);

	CREATE TABLE IF NOT EXISTS cells (
		scan_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		row_offset INTEGER NOT NULL,
		col_offset INTEGER NOT NULL,
		cell_rank INTEGER,
		competitors TEXT NOT NULL,
		failed INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT,
		PRIMARY KEY (scan_id, idx)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// SaveScan stores scan and its cells, replacing any previous copy with the same id.
func (s *Store) SaveScan(ctx context.Context, scan *model.ScanResult) error {
	if scan == nil || scan.ID == "" {
		return errors.New("scan id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	ranked := 0
	for _, c := range scan.Cells {
		if c.Ranked() {
			ranked++
		}
	}

	for _, q := range []string{`DELETE FROM cells WHERE scan_id = ?`, `DELETE FROM scans WHERE id = ?`} {
		if _, err := tx.ExecContext(ctx, q, scan.ID); err != nil {
			return fmt.Errorf("replacing scan %s: %w", scan.ID, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans
		(id, keyword, target_id, business_name, center_lat, center_lng, grid_size,
		 radius_miles, cancelled, cell_count, ranked_cells, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		scan.ID, scan.Keyword, scan.TargetID, scan.BusinessName,
		scan.Spec.Center.Lat, scan.Spec.Center.Lng, scan.Spec.Size, scan.Spec.RadiusMiles,
		scan.Cancelled, len(scan.Cells), ranked,
		toUnix(scan.StartedAt), nullableUnix(scan.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting scan %s: %w", scan.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cells
		(scan_id, idx, lat, lng, row_offset, col_offset, cell_rank, competitors, failed, error_kind)
		VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	for i, c := range scan.Cells {
		competitors := c.Competitors
		if competitors == nil {
			competitors = []string{}
		}
		comp, err := json.Marshal(competitors)
		if err != nil {
			return fmt.Errorf("encoding competitors of cell %d: %w", i, err)
		}

		var rank sql.NullInt64
		if c.Ranked() {
			rank = sql.NullInt64{Int64: int64(c.Rank), Valid: true}
		}

		_, err = stmt.ExecContext(ctx,
			scan.ID, i, c.Coordinate.Lat, c.Coordinate.Lng, c.Coordinate.Row, c.Coordinate.Col,
			rank, string(comp), c.Failed, nullableString(c.ErrorKind),
		)
		if err != nil {
			return fmt.Errorf("inserting cell %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}

// LoadScan returns the stored scan with its cells in their original order.
func (s *Store) LoadScan(ctx context.Context, id string) (*model.ScanResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, keyword, target_id, business_name, center_lat, center_lng,
		       grid_size, radius_miles, cancelled, started_at, finished_at
		FROM scans WHERE id = ?`, id)

	var (
		scan     model.ScanResult
		business sql.NullString
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(
		&scan.ID, &scan.Keyword, &scan.TargetID, &business,
		&scan.Spec.Center.Lat, &scan.Spec.Center.Lng, &scan.Spec.Size, &scan.Spec.RadiusMiles,
		&scan.Cancelled, &started, &finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan %s: %w", id, err)
	}
	scan.BusinessName = business.String
	scan.StartedAt = fromUnix(started)
	if finished.Valid {
		scan.FinishedAt = fromUnix(finished.Int64)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lat, lng, row_offset, col_offset, cell_rank, competitors, failed, error_kind
		FROM cells WHERE scan_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("loading cells of %s: %w", id, err)
	}
	defer rows.Close()

	scan.Cells = make([]model.CellResult, 0, scan.Spec.Cells())
	for rows.Next() {
		var (
			c    model.CellResult
			rank sql.NullInt64
			comp string
			kind sql.NullString
		)
		if err := rows.Scan(
			&c.Coordinate.Lat, &c.Coordinate.Lng, &c.Coordinate.Row, &c.Coordinate.Col,
			&rank, &comp, &c.Failed, &kind,
		); err != nil {
			return nil, fmt.Errorf("scanning cell: %w", err)
		}
		if rank.Valid {
			c.Rank = int(rank.Int64)
		}
		if err := json.Unmarshal([]byte(comp), &c.Competitors); err != nil {
			return nil, fmt.Errorf("decoding competitors: %w", err)
		}
		if c.Competitors == nil {
			c.Competitors = []string{}
		}
		c.ErrorKind = kind.String
		scan.Cells = append(scan.Cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cells: %w", err)
	}

	return &scan, nil
}

// ListFilter narrows ListScans. Keyword matches case-insensitively as a substring.
type ListFilter struct {
	Keyword  string
	TargetID string
	Limit    int
	Offset   int
}

// ListScans returns scan summaries, newest first.
func (s *Store) ListScans(ctx context.Context, f ListFilter) ([]model.ScanSummary, error) {
	var (
		where []string
		args  []any
	)
	if f.Keyword != "" {
		where = append(where, "LOWER(keyword) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Keyword)+"%")
	}
	if f.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, f.TargetID)
	}

	query := `
		SELECT id, keyword, target_id, business_name, center_lat, center_lng,
		       grid_size, radius_miles, cell_count, ranked_cells, cancelled, started_at
		FROM scans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id LIMIT ? OFFSET ?"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	out := []model.ScanSummary{}
	for rows.Next() {
		var (
			sum      model.ScanSummary
			business sql.NullString
			started  int64
		)
		if err := rows.Scan(
			&sum.ID, &sum.Keyword, &sum.TargetID, &business,
			&sum.Spec.Center.Lat, &sum.Spec.Center.Lng, &sum.Spec.Size, &sum.Spec.RadiusMiles,
			&sum.CellCount, &sum.RankedCells, &sum.Cancelled, &started,
		); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		sum.BusinessName = business.String
		sum.StartedAt = fromUnix(started)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteScan removes a scan and its cells.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells WHERE scan_id = ?`, id); err != nil {
		return fmt.Errorf("deleting cells of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting scan %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// Count returns the number of stored scans.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scans").Scan(&count)
	return count, err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(t), Valid: true}
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
