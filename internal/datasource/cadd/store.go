package cadd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store provides CADD score lookups backed by DuckDB, as an alternative to
// tabix retrieval when query order is random or the score set fits locally.
type Store struct {
	db       *sql.DB
	lookupPS *sql.Stmt // prepared statement for Lookup, lazily initialized
}

// OpenStore opens or creates a DuckDB database for CADD scores at the given
// path.
func OpenStore(dbPath string) (*Store, error) {
	if dbPath != "" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS cadd_scores (
		chrom VARCHAR,
		pos BIGINT,
		ref VARCHAR,
		alt VARCHAR,
		raw_score FLOAT,
		phred FLOAT
	)`); err != nil {
		return err
	}
	// Index for fast point lookups
	s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_cadd_lookup ON cadd_scores (chrom, pos, ref, alt)`)
	return nil
}

// Loaded returns true if the score table has data.
func (s *Store) Loaded() bool {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM cadd_scores").Scan(&count)
	return err == nil && count > 0
}

// Count returns the number of rows in the score table.
func (s *Store) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cadd_scores").Scan(&count); err != nil {
		return 0, fmt.Errorf("count cadd rows: %w", err)
	}
	return count, nil
}

// Load bulk-loads scores from a (optionally gzipped) CADD TSV using DuckDB's
// read_csv. The file has a version comment line, then a header:
//
//	#Chrom  Pos  Ref  Alt  RawScore  PHRED
func (s *Store) Load(tsvPath string) error {
	// Clear any existing data first (idempotent reload)
	s.db.Exec(`DELETE FROM cadd_scores`)

	query := fmt.Sprintf(`INSERT INTO cadd_scores
		SELECT column0, column1, column2, column3,
			CAST(column4 AS FLOAT), CAST(column5 AS FLOAT)
		FROM read_csv('%s', delim='\t', header=false, skip=2,
			columns={
				'column0': 'VARCHAR',
				'column1': 'BIGINT',
				'column2': 'VARCHAR',
				'column3': 'VARCHAR',
				'column4': 'VARCHAR',
				'column5': 'VARCHAR'
			})`, tsvPath)

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("loading CADD scores: %w", err)
	}
	return nil
}

// Result holds a single score lookup result.
type Result struct {
	Raw   float64
	Phred float64
}

// Lookup queries the scores for a specific allele. The chromosome is tried
// as given and with the "chr" prefix convention flipped.
func (s *Store) Lookup(chrom string, pos int64, ref, alt string) (Result, bool) {
	if s.lookupPS == nil {
		ps, err := s.db.Prepare(
			"SELECT raw_score, phred FROM cadd_scores WHERE chrom=? AND pos=? AND ref=? AND alt=? LIMIT 1",
		)
		if err != nil {
			return Result{}, false
		}
		s.lookupPS = ps
	}
	for _, c := range []string{chrom, flipChrPrefix(chrom)} {
		var r Result
		err := s.lookupPS.QueryRow(c, pos, ref, alt).Scan(&r.Raw, &r.Phred)
		if err == nil {
			return r, true
		}
	}
	return Result{}, false
}

func flipChrPrefix(chrom string) string {
	if len(chrom) > 3 && chrom[:3] == "chr" {
		return chrom[3:]
	}
	return "chr" + chrom
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.lookupPS != nil {
		s.lookupPS.Close()
	}
	return s.db.Close()
}
