// Package cache persists method verdicts in SQLite, keyed by fingerprints
// of the method and of the class hierarchy it was verified against.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/bcverify/report"
	"github.com/chazu/bcverify/verifier"
)

// Cache is a verdict store backed by a single SQLite file.
type Cache struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
}

// Open opens the cache at path, creating the file, its directory and the
// verdicts table if needed.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// One writer at a time; verification workers share the handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS verdicts (
		key     TEXT PRIMARY KEY,
		status  INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating verdicts table: %w", err)
	}

	c := &Cache{db: db, path: path, log: commonlog.GetLogger("bcverify.cache")}
	c.log.Debugf("opened verdict cache %s", path)
	return c, nil
}

// Path returns the database file the cache was opened from.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the cached verdict for key. A miss is (nil, false, nil). The
// returned report is marked Cached.
func (c *Cache) Get(key string) (*report.MethodReport, bool, error) {
	var payload []byte
	err := c.db.QueryRow("SELECT payload FROM verdicts WHERE key = ?", key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying verdict: %w", err)
	}

	m, err := report.UnmarshalMethod(payload)
	if err != nil {
		// A payload from an incompatible build; treat it as a miss.
		c.log.Warningf("discarding unreadable verdict %s: %s", key, err)
		return nil, false, nil
	}
	m.Cached = true
	return m, true, nil
}

// Put stores the verdict in res under key, replacing any earlier entry.
// Internal errors never produce a Result, so only real verdicts land here.
func (c *Cache) Put(key string, res *verifier.Result) error {
	m := report.FromResult(res)
	payload, err := report.MarshalMethod(&m)
	if err != nil {
		return fmt.Errorf("encoding verdict: %w", err)
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO verdicts (key, status, payload, created) VALUES (?, ?, ?, ?)",
		key, int(res.Status), payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving verdict: %w", err)
	}
	return nil
}

// Len returns the number of stored verdicts.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM verdicts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting verdicts: %w", err)
	}
	return n, nil
}

// Counts returns the number of stored verdicts per status.
func (c *Cache) Counts() (map[verifier.Status]int, error) {
	rows, err := c.db.Query("SELECT status, COUNT(*) FROM verdicts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting verdicts: %w", err)
	}
	defer rows.Close()

	counts := make(map[verifier.Status]int)
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("counting verdicts: %w", err)
		}
		counts[verifier.Status(status)] = n
	}
	return counts, rows.Err()
}

// Prune deletes verdicts stored before cutoff and returns how many went.
func (c *Cache) Prune(cutoff time.Time) (int64, error) {
	res, err := c.db.Exec("DELETE FROM verdicts WHERE created < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning verdicts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.Infof("pruned %d verdicts older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}
