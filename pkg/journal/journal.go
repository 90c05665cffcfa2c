// Package journal records every reply the gateway serves in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tripmate-ai/tripmate/pkg/config"
	"github.com/tripmate-ai/tripmate/pkg/models"
)

// Journal writes and queries journal entries in a SQLite database.
type Journal struct {
	db   *sql.DB
	cfg  config.JournalConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the journal database, creates the schema and starts the hourly
// retention loop. Close stops it.
func New(dbPath string, cfg config.JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}

	j := &Journal{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	j.wg.Add(1)
	go j.retentionLoop()

	return j, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS reply_journal (
		request_id    TEXT PRIMARY KEY,
		endpoint      TEXT NOT NULL,
		model         TEXT,
		provider      TEXT,
		prompt_hash   TEXT,
		shape         TEXT,
		day_count     INTEGER,
		expected_days INTEGER,
		status_code   INTEGER,
		cache_hit     INTEGER,
		total_tokens  INTEGER,
		latency_ms    INTEGER,
		reply         TEXT,
		created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_journal_shape ON reply_journal(shape)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_journal_created ON reply_journal(created_at)`)
	return err
}

// Record inserts an entry. The reply is truncated to MaxBodySize bytes.
func (j *Journal) Record(ctx context.Context, entry models.JournalEntry) error {
	if j == nil || j.db == nil {
		return nil
	}

	reply := entry.Reply
	if j.cfg.MaxBodySize > 0 && len(reply) > j.cfg.MaxBodySize {
		reply = reply[:j.cfg.MaxBodySize]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reply_journal
		(request_id, endpoint, model, provider, prompt_hash, shape, day_count,
		 expected_days, status_code, cache_hit, total_tokens, latency_ms, reply, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Endpoint, entry.Model, entry.Provider,
		entry.PromptHash, string(entry.Shape), entry.DayCount, entry.ExpectedDays,
		entry.StatusCode, entry.CacheHit, entry.TotalTokens, entry.LatencyMs,
		reply, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

// Query returns entries matching opts, newest first.
func (j *Journal) Query(ctx context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, error) {
	q := `SELECT request_id, endpoint, model, provider, prompt_hash, shape, day_count,
		expected_days, status_code, cache_hit, total_tokens, latency_ms, reply, created_at
		FROM reply_journal WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Shape != "" {
		q += " AND shape = ?"
		args = append(args, string(opts.Shape))
	}
	if opts.Endpoint != "" {
		q += " AND endpoint = ?"
		args = append(args, opts.Endpoint)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var model, provider, hash, shape, reply sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.Endpoint, &model, &provider, &hash, &shape,
			&e.DayCount, &e.ExpectedDays, &e.StatusCode, &e.CacheHit,
			&e.TotalTokens, &e.LatencyMs, &reply, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Model = model.String
		e.Provider = provider.String
		e.PromptHash = hash.String
		e.Shape = models.Shape(shape.String)
		e.Reply = reply.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns entry counts grouped by shape and day.
func (j *Journal) Stats(ctx context.Context) ([]models.JournalStat, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT shape, date(created_at) as day, count(*) as cnt
		 FROM reply_journal GROUP BY shape, day ORDER BY day DESC, shape`)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()

	var stats []models.JournalStat
	for rows.Next() {
		var s models.JournalStat
		var shape, day sql.NullString
		if err := rows.Scan(&shape, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan journal stat: %w", err)
		}
		s.Shape = models.Shape(shape.String)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the retention period.
func (j *Journal) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -j.cfg.RetentionDays)
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM reply_journal WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (j *Journal) Close() error {
	close(j.done)
	j.wg.Wait()
	return j.db.Close()
}

func (j *Journal) retentionLoop() {
	defer j.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			_, _ = j.Cleanup(context.Background())
		}
	}
}
