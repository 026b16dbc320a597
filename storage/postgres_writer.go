package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/TheWillMundy/CapitolGains/models"
)

const insertColumns = 8

// PostgresWriter archives disclosures in PostgreSQL. Rows are keyed by
// document URL, so re-exporting a search updates rather than duplicates.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS disclosures (
			id            SERIAL PRIMARY KEY,
			chamber       VARCHAR(16)  NOT NULL,
			category      VARCHAR(32)  NOT NULL,
			filer_name    TEXT         NOT NULL DEFAULT '',
			office        TEXT         NOT NULL DEFAULT '',
			report_type   TEXT         NOT NULL DEFAULT '',
			filed_on      DATE,
			document_type VARCHAR(16)  NOT NULL,
			document_url  TEXT         UNIQUE NOT NULL,
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_disclosures_chamber  ON disclosures(chamber);
		CREATE INDEX IF NOT EXISTS idx_disclosures_category ON disclosures(category);
		CREATE INDEX IF NOT EXISTS idx_disclosures_filer    ON disclosures(filer_name);
	`)
	return err
}

// Write upserts disclosures in batches.
func (pw *PostgresWriter) Write(disclosures []models.Disclosure) error {
	const batchSize = 50
	for i := 0; i < len(disclosures); i += batchSize {
		end := min(i+batchSize, len(disclosures))
		query, args := buildUpsert(disclosures[i:end])
		if _, err := pw.db.Exec(query, args...); err != nil {
			return fmt.Errorf("postgres: upsert batch at %d: %w", i, err)
		}
	}
	return nil
}

// buildUpsert renders a multi-row INSERT for batch. Duplicate URLs inside
// one batch would make ON CONFLICT fail, so they are dropped here.
func buildUpsert(batch []models.Disclosure) (string, []any) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*insertColumns)
	seen := make(map[string]struct{}, len(batch))

	for _, d := range batch {
		if _, dup := seen[d.DocumentURL]; dup {
			continue
		}
		seen[d.DocumentURL] = struct{}{}

		base := len(valueStrings) * insertColumns
		placeholders := make([]string, insertColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		var filed any
		if !d.Date.IsZero() {
			filed = d.Date
		}
		valueArgs = append(valueArgs,
			string(d.Chamber), string(d.Category), d.FilerName, d.Office,
			d.ReportType, filed, string(d.DocumentType), d.DocumentURL)
	}

	query := fmt.Sprintf(`
		INSERT INTO disclosures (chamber, category, filer_name, office, report_type, filed_on, document_type, document_url)
		VALUES %s
		ON CONFLICT (document_url) DO UPDATE SET
			category    = EXCLUDED.category,
			filer_name  = EXCLUDED.filer_name,
			office      = EXCLUDED.office,
			report_type = EXCLUDED.report_type,
			filed_on    = EXCLUDED.filed_on
	`, strings.Join(valueStrings, ","))
	return query, valueArgs
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves every archived disclosure, oldest filing first.
func (pw *PostgresWriter) FetchAll() ([]models.Disclosure, error) {
	rows, err := pw.db.Query(`
		SELECT chamber, category, filer_name, office, report_type, filed_on, document_type, document_url
		FROM disclosures
		ORDER BY filed_on NULLS LAST, id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var out []models.Disclosure
	for rows.Next() {
		var (
			d                          models.Disclosure
			chamber, category, docType string
			filed                      sql.NullTime
		)
		if err := rows.Scan(
			&chamber, &category, &d.FilerName, &d.Office,
			&d.ReportType, &filed, &docType, &d.DocumentURL,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		d.Chamber = models.Chamber(chamber)
		d.Category = models.Category(category)
		d.DocumentType = models.DocumentType(docType)
		if filed.Valid {
			d.Date = filed.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
