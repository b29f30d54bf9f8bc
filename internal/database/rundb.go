package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/owlpair/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "owlpair.db"

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02 15:04:05.000000"

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	// StatusRunning marks a run that has started but not finished.
	StatusRunning RunStatus = "running"
	// StatusCompleted marks a run that ended normally.
	StatusCompleted RunStatus = "completed"
	// StatusInterrupted marks a run cancelled by the operator or a deadline.
	StatusInterrupted RunStatus = "interrupted"
	// StatusFailed marks a run that ended with an error.
	StatusFailed RunStatus = "failed"
)

// RunDB provides SQLite-based storage for dialogue runs and extracted documents.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	dsn := dbPath + "?mode=" + mode + "&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

func (rdb *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		final_answer TEXT NOT NULL DEFAULT '',
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		rounds INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per completed round
	CREATE TABLE IF NOT EXISTS transcript_entries (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		round INTEGER NOT NULL,
		user_text TEXT NOT NULL,
		assistant_text TEXT NOT NULL,
		tool_calls TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (run_id, round)
	);

	-- Composite documents from the extraction pipeline
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		content TEXT NOT NULL,
		page_count INTEGER NOT NULL DEFAULT 0,
		hash TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(seed, hash)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_seed ON documents(seed);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord represents a stored run without its transcript.
type RunRecord struct {
	ID               string
	Task             string
	Answer           string
	FinalAnswer      string
	PromptTokens     int
	CompletionTokens int
	Rounds           int
	Status           RunStatus
	Error            string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Usage returns the stored token counts.
func (r RunRecord) Usage() model.Usage {
	return model.Usage{PromptTokens: r.PromptTokens, CompletionTokens: r.CompletionTokens}
}

// BeginRun stores a new run in the running state and returns its ID.
func (rdb *RunDB) BeginRun(ctx context.Context, task string) (string, error) {
	id := uuid.NewString()

	query := `
	INSERT INTO runs (id, task, status, started_at)
	VALUES (?, ?, ?, ?)
	`
	if _, err := rdb.db.ExecContext(ctx, query, id, task, StatusRunning, formatTime(time.Now())); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// FinishRun stores the result of a run together with its transcript.
// runErr decides the status: nil is completed, a cancellation or an
// interrupted result is interrupted, anything else is failed. A previously
// stored transcript for the run is replaced.
func (rdb *RunDB) FinishRun(ctx context.Context, id string, result model.RunResult, runErr error) error {
	status := StatusCompleted
	errText := ""
	switch {
	case result.Interrupted || errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = StatusInterrupted
	case runErr != nil:
		status = StatusFailed
	}
	if runErr != nil {
		errText = runErr.Error()
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	update := `
	UPDATE runs SET
		answer = ?,
		final_answer = ?,
		prompt_tokens = ?,
		completion_tokens = ?,
		rounds = ?,
		status = ?,
		error = ?,
		finished_at = ?
	WHERE id = ?
	`
	res, err := tx.ExecContext(ctx, update,
		result.Answer,
		result.FinalAnswer,
		result.Usage.PromptTokens,
		result.Usage.CompletionTokens,
		result.Rounds,
		status,
		errText,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM transcript_entries WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}

	insert := `
	INSERT INTO transcript_entries (run_id, round, user_text, assistant_text, tool_calls)
	VALUES (?, ?, ?, ?, ?)
	`
	for _, entry := range result.Transcript {
		calls := entry.ToolCalls
		if calls == nil {
			calls = []model.ToolCallRecord{}
		}
		callsJSON, err := json.Marshal(calls)
		if err != nil {
			return fmt.Errorf("failed to serialize tool calls: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert, id, entry.Round, entry.UserText, entry.AssistantText, string(callsJSON)); err != nil {
			return fmt.Errorf("failed to insert transcript entry %d: %w", entry.Round, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil when no run matches.
func (rdb *RunDB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
	SELECT id, task, answer, final_answer, prompt_tokens, completion_tokens, rounds, status, error, started_at, finished_at
	FROM runs
	WHERE id = ?
	`

	record, err := scanRun(rdb.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return record, nil
}

// FindRun resolves a full run ID or a unique prefix of one.
func (rdb *RunDB) FindRun(ctx context.Context, prefix string) (*RunRecord, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}

	query := `
	SELECT id FROM runs
	WHERE id LIKE ? ESCAPE '\'
	LIMIT 2
	`
	rows, err := rdb.db.QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to find run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return rdb.GetRun(ctx, ids[0])
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, prefix)
	}
}

// ListRuns returns the most recent runs first. A non-positive limit lists all runs.
func (rdb *RunDB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
	SELECT id, task, answer, final_answer, prompt_tokens, completion_tokens, rounds, status, error, started_at, finished_at
	FROM runs
	ORDER BY started_at DESC, rowid DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		results = append(results, *record)
	}
	return results, rows.Err()
}

// Transcript returns the stored transcript of a run in round order.
func (rdb *RunDB) Transcript(ctx context.Context, runID string) ([]model.TranscriptEntry, error) {
	query := `
	SELECT round, user_text, assistant_text, tool_calls
	FROM transcript_entries
	WHERE run_id = ?
	ORDER BY round
	`

	rows, err := rdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	defer rows.Close()

	var entries []model.TranscriptEntry
	for rows.Next() {
		var entry model.TranscriptEntry
		var callsJSON string
		if err := rows.Scan(&entry.Round, &entry.UserText, &entry.AssistantText, &callsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan transcript entry: %w", err)
		}
		if err := json.Unmarshal([]byte(callsJSON), &entry.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to parse tool calls of round %d: %w", entry.Round, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteRun removes a run and its transcript.
func (rdb *RunDB) DeleteRun(ctx context.Context, id string) error {
	res, err := rdb.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// DocumentRecord is a stored composite document.
type DocumentRecord struct {
	ID        int64
	Seed      string
	Content   string
	PageCount int
	Hash      string
	CreatedAt time.Time
}

// SaveDocument stores a composite document. Saving identical content for
// the same seed again only refreshes its timestamp.
func (rdb *RunDB) SaveDocument(ctx context.Context, doc model.Document) (int64, error) {
	sum := sha3.Sum256([]byte(doc.Content))
	hash := hex.EncodeToString(sum[:])

	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `
	INSERT INTO documents (seed, content, page_count, hash, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(seed, hash) DO UPDATE SET
		page_count = excluded.page_count,
		created_at = excluded.created_at
	RETURNING id
	`

	var id int64
	err := rdb.db.QueryRowContext(ctx, query, doc.Seed, doc.Content, len(doc.Pages), hash, formatTime(created)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save document: %w", err)
	}
	return id, nil
}

// LatestDocument returns the newest document stored for seed, or nil.
func (rdb *RunDB) LatestDocument(ctx context.Context, seed string) (*DocumentRecord, error) {
	query := `
	SELECT id, seed, content, page_count, hash, created_at
	FROM documents
	WHERE seed = ?
	ORDER BY created_at DESC, id DESC
	LIMIT 1
	`

	var record DocumentRecord
	var created string
	err := rdb.db.QueryRowContext(ctx, query, seed).Scan(
		&record.ID,
		&record.Seed,
		&record.Content,
		&record.PageCount,
		&record.Hash,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	record.CreatedAt = parseTimestamp(created)
	return &record, nil
}

// HasRecentDocument reports whether a document for seed was stored within maxAge.
func (rdb *RunDB) HasRecentDocument(ctx context.Context, seed string, maxAge time.Duration) (bool, error) {
	query := `
	SELECT COUNT(*) FROM documents
	WHERE seed = ? AND created_at > ?
	`

	var count int
	cutoff := formatTime(time.Now().Add(-maxAge))
	if err := rdb.db.QueryRowContext(ctx, query, seed, cutoff).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check recent document: %w", err)
	}
	return count > 0, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var record RunRecord
	var status, started, finished string
	err := row.Scan(
		&record.ID,
		&record.Task,
		&record.Answer,
		&record.FinalAnswer,
		&record.PromptTokens,
		&record.CompletionTokens,
		&record.Rounds,
		&status,
		&record.Error,
		&started,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	record.Status = RunStatus(status)
	record.StartedAt = parseTimestamp(started)
	record.FinishedAt = parseTimestamp(finished)
	return &record, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := range len(s) {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
var timestampFormats = []string{
	timeLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
