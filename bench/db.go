package bench

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS results (
	id         VARCHAR PRIMARY KEY,
	batch      VARCHAR NOT NULL,
	program    VARCHAR NOT NULL,
	requested  VARCHAR NOT NULL,
	stored     VARCHAR NOT NULL,
	level      INTEGER NOT NULL,
	width      INTEGER NOT NULL,
	height     INTEGER NOT NULL,
	original   BIGINT NOT NULL,
	container  BIGINT NOT NULL,
	ratio      DOUBLE NOT NULL,
	encode_ns  BIGINT NOT NULL,
	decode_ns  BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

// DB is a DuckDB results database.
type DB struct {
	db *sql.DB
}

// OpenDB opens (or creates) the results database at path.
func OpenDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating results dir: %w", err)
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}
	if _, err := db.Exec(resultsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating results table: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Record inserts results in one transaction.
func (d *DB) Record(ctx context.Context, results []Result) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(id, batch, program, requested, stored, level, width, height, original, container, ratio, encode_ns, decode_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err := stmt.ExecContext(ctx, r.ID, r.Batch, r.Program, r.Requested.String(), r.Stored.String(),
			r.Level, r.Width, r.Height, r.Original, r.Container, r.Ratio,
			r.Encode.Nanoseconds(), r.Decode.Nanoseconds(), r.Created)
		if err != nil {
			return fmt.Errorf("recording %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Summary aggregates recorded results per requested method.
type Summary struct {
	Method    string
	Runs      int
	MeanRatio float64
	BestRatio float64
	MeanEncNS float64
	Fallbacks int // results stored with another method than requested
}

// Summarize aggregates every recorded result, optionally restricted to one
// program, ordered by mean ratio.
func (d *DB) Summarize(ctx context.Context, program string) ([]Summary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT requested,
		       count(*),
		       avg(ratio),
		       min(ratio),
		       avg(encode_ns),
		       count(*) FILTER (WHERE requested <> 'auto' AND stored <> requested)
		FROM results
		WHERE ? = '' OR program = ?
		GROUP BY requested
		ORDER BY avg(ratio), requested`, program, program)
	if err != nil {
		return nil, fmt.Errorf("summarizing results: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Method, &s.Runs, &s.MeanRatio, &s.BestRatio, &s.MeanEncNS, &s.Fallbacks); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
