// Package store caches propagation results in SQLite. Monte Carlo runs
// over the default corpus are expensive and deterministic for a fixed
// corpus, seed and sample count, so repeated CLI invocations hit the
// cache instead of re-sampling.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gonum.org/v1/gonum/mat"

	"flavkit/internal/constraint"
	"flavkit/internal/logging"
	"flavkit/internal/propagate"
)

// ErrCacheMiss reports that no run matches the requested key.
var ErrCacheMiss = fmt.Errorf("no cached run for key")

// Cache persists prediction summaries keyed by corpus fingerprint, seed,
// sample count and target list.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the ensemble cache at dbPath.
func Open(dbPath string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &Cache{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.dbPath
}

func (c *Cache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		seed INTEGER NOT NULL,
		samples INTEGER NOT NULL,
		targets TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		means_json TEXT NOT NULL,
		stddevs_json TEXT NOT NULL,
		covariance_json TEXT NOT NULL,
		evaluated INTEGER NOT NULL,
		discarded INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_key
		ON runs(fingerprint, seed, samples, targets);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Fingerprint hashes the full constraint state of a store. Any override
// changes the fingerprint, so stale runs are never served.
func Fingerprint(s *constraint.Store) (string, error) {
	var sb strings.Builder
	if err := constraint.WriteYAML(&sb, s); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:]), nil
}

func targetsKey(targets []propagate.Target) string {
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = t.String()
	}
	return strings.Join(parts, ";")
}

// Put stores the summary of a completed run. Partial runs and runs that
// kept raw samples are refused: the cache holds only full, compact
// results.
func (c *Cache) Put(fingerprint string, seed uint64, samples int, p *propagate.Prediction) error {
	if p.Partial {
		return fmt.Errorf("refusing to cache partial run %s", p.RunID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	means, err := json.Marshal(p.Mean)
	if err != nil {
		return fmt.Errorf("marshal means: %w", err)
	}
	stddevs, err := json.Marshal(p.StdDev)
	if err != nil {
		return fmt.Errorf("marshal stddevs: %w", err)
	}
	cov, err := marshalSym(p.Covariance)
	if err != nil {
		return fmt.Errorf("marshal covariance: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, fingerprint, seed, samples, targets, created_at,
		 means_json, stddevs_json, covariance_json, evaluated, discarded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RunID, fingerprint, int64(seed), samples, targetsKey(p.Targets),
		time.Now().UTC(), string(means), string(stddevs), string(cov),
		p.Evaluated, p.Discarded)
	if err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	logging.Store("cached run %s (%d targets, %d evaluated)", p.RunID, len(p.Targets), p.Evaluated)
	return nil
}

// Get looks up a cached run. The returned prediction carries the
// summary statistics only, never raw samples.
func (c *Cache) Get(fingerprint string, seed uint64, samples int, targets []propagate.Target) (*propagate.Prediction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRow(`
		SELECT run_id, means_json, stddevs_json, covariance_json, evaluated, discarded
		FROM runs
		WHERE fingerprint = ? AND seed = ? AND samples = ? AND targets = ?`,
		fingerprint, int64(seed), samples, targetsKey(targets))

	var (
		runID, meansJSON, stddevsJSON, covJSON string
		evaluated, discarded                   int
	)
	if err := row.Scan(&runID, &meansJSON, &stddevsJSON, &covJSON, &evaluated, &discarded); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("query run: %w", err)
	}

	p := &propagate.Prediction{
		RunID:     runID,
		Targets:   append([]propagate.Target(nil), targets...),
		Evaluated: evaluated,
		Discarded: discarded,
	}
	if err := json.Unmarshal([]byte(meansJSON), &p.Mean); err != nil {
		return nil, fmt.Errorf("unmarshal means: %w", err)
	}
	if err := json.Unmarshal([]byte(stddevsJSON), &p.StdDev); err != nil {
		return nil, fmt.Errorf("unmarshal stddevs: %w", err)
	}
	cov, err := unmarshalSym(covJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal covariance: %w", err)
	}
	p.Covariance = cov
	logging.StoreDebug("cache hit for run %s", runID)
	return p, nil
}

// Prune deletes runs older than the given age and returns the count.
func (c *Cache) Prune(olderThan time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := c.db.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("pruned %d cached runs older than %s", n, olderThan)
	}
	return n, nil
}

// Len returns the number of cached runs.
func (c *Cache) Len() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

type symJSON struct {
	N    int       `json:"n"`
	Data []float64 `json:"data"`
}

func marshalSym(s *mat.SymDense) ([]byte, error) {
	if s == nil {
		return json.Marshal(symJSON{})
	}
	n := s.SymmetricDim()
	data := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data = append(data, s.At(i, j))
		}
	}
	return json.Marshal(symJSON{N: n, Data: data})
}

func unmarshalSym(raw string) (*mat.SymDense, error) {
	var sj symJSON
	if err := json.Unmarshal([]byte(raw), &sj); err != nil {
		return nil, err
	}
	if sj.N == 0 {
		return nil, nil
	}
	if len(sj.Data) != sj.N*sj.N {
		return nil, fmt.Errorf("covariance payload has %d entries, want %d", len(sj.Data), sj.N*sj.N)
	}
	return mat.NewSymDense(sj.N, sj.Data), nil
}
