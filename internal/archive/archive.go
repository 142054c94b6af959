package archive

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DBFileName is the database file created inside the archive directory.
const DBFileName = "fedigraph.db"

// Archive is a SQLite-backed store of past crawl runs.
//
// One database accumulates every run; runs are never overwritten, so the
// same software can be crawled repeatedly and compared over time.
type Archive struct {
	db     *sql.DB
	dbPath string
}

// Options configures Archive behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if they
	// don't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. Recommended: the archive is
	// written at the end of a run while the summary may still read it.
	EnableWAL bool
}

// DefaultOptions returns the default archive options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the archive database under dir.
func Open(dir string, opts Options) (*Archive, error) {
	dbPath := filepath.Join(dir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("archive not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check archive path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	a := &Archive{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := a.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.dbPath
}

func (a *Archive) createTables() error {
	schema := `
	-- One row per completed crawl run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		software TEXT NOT NULL,
		subject TEXT NOT NULL,
		run_dir TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		seeds INTEGER NOT NULL,
		vetoed INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_software ON runs(software, subject);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per node record of a run; metrics are stored as JSON since
	-- each crawl subject has its own column set
	CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		host TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		metrics TEXT NOT NULL DEFAULT '{}',
		UNIQUE(run_id, host)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_run ON nodes(run_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_host ON nodes(host);
	`
	_, err := a.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one archived crawl run.
type Run struct {
	ID        int64
	Software  string
	Subject   string
	RunDir    string
	StartedAt time.Time
	Elapsed   time.Duration
	Seeds     int
	Vetoed    int
	Succeeded int
	Failed    int
}

// Node is one archived node record.
type Node struct {
	Host    string
	Error   string
	Metrics map[string]string
}

// StoreRun inserts one run row and returns its id.
func (a *Archive) StoreRun(ctx context.Context, run Run) (int64, error) {
	result, err := a.db.ExecContext(ctx, `
	INSERT INTO runs (software, subject, run_dir, started_at, elapsed_ms, seeds, vetoed, succeeded, failed)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Software,
		run.Subject,
		run.RunDir,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.Elapsed.Milliseconds(),
		run.Seeds,
		run.Vetoed,
		run.Succeeded,
		run.Failed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to store run: %w", err)
	}
	return result.LastInsertId()
}

// StoreNodes inserts the node records of a run.
func (a *Archive) StoreNodes(ctx context.Context, runID int64, nodes []Node) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO nodes (run_id, host, error, metrics) VALUES (?, ?, ?, ?)
	ON CONFLICT(run_id, host) DO UPDATE SET
		error = excluded.error,
		metrics = excluded.metrics`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, node := range nodes {
		metricsJSON, err := json.Marshal(node.Metrics)
		if err != nil {
			return fmt.Errorf("failed to serialize metrics of %s: %w", node.Host, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, node.Host, node.Error, string(metricsJSON)); err != nil {
			return fmt.Errorf("failed to store node %s: %w", node.Host, err)
		}
	}
	return tx.Commit()
}

// ImportNodesCSV reads a cleaned instances CSV and stores its rows for the
// given run. The host and error columns map to their own fields; every
// other column except the Gephi Id/Label pair lands in the metrics JSON.
func (a *Archive) ImportNodesCSV(ctx context.Context, runID int64, csvPath string) (int, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open node table: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read node table header: %w", err)
	}

	var nodes []Node
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read node table row: %w", err)
		}

		node := Node{Metrics: make(map[string]string)}
		for i, field := range header {
			if i >= len(row) {
				break
			}
			switch field {
			case "host":
				node.Host = row[i]
			case "error":
				node.Error = row[i]
			case "Id", "Label":
				// Duplicates of host, kept only for Gephi imports.
			default:
				if row[i] != "" {
					node.Metrics[field] = row[i]
				}
			}
		}
		nodes = append(nodes, node)
	}

	if err := a.StoreNodes(ctx, runID, nodes); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// RunHistory returns the archived runs of one software/subject pair,
// newest first.
func (a *Archive) RunHistory(ctx context.Context, software, subject string) ([]Run, error) {
	rows, err := a.db.QueryContext(ctx, `
	SELECT id, software, subject, run_dir, started_at, elapsed_ms, seeds, vetoed, succeeded, failed
	FROM runs WHERE software = ? AND subject = ?
	ORDER BY started_at DESC`, software, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			startedAt string
			elapsedMS int64
		)
		err := rows.Scan(
			&run.ID,
			&run.Software,
			&run.Subject,
			&run.RunDir,
			&startedAt,
			&elapsedMS,
			&run.Seeds,
			&run.Vetoed,
			&run.Succeeded,
			&run.Failed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			run.StartedAt = t
		}
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// NodeErrors returns the error string of every failed node of a run.
func (a *Archive) NodeErrors(ctx context.Context, runID int64) (map[string]string, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT host, error FROM nodes WHERE run_id = ? AND error != ''`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	errors := make(map[string]string)
	for rows.Next() {
		var host, errMsg string
		if err := rows.Scan(&host, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan node error: %w", err)
		}
		errors[host] = errMsg
	}
	return errors, rows.Err()
}
