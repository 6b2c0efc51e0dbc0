package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/shopdesk/shopdesk/internal/query"
	"github.com/shopdesk/shopdesk/internal/safety"
	"github.com/shopdesk/shopdesk/internal/storage"
)

const executorName = "duckdb"

// Snapshot is a parquet export of one shop table.
type Snapshot struct {
	Table      string
	ObjectPath string
}

type Config struct {
	StatementTimeout time.Duration
	RowCap           int
}

// Executor answers approved queries from a DuckDB database file built from
// table snapshots. The file is reopened with access_mode=READ_ONLY and
// external access disabled, so it serves the local demo profile and offline
// analysis without touching the production database.
type Executor struct {
	db               *sql.DB
	workDir          string
	statementTimeout time.Duration
	rowCap           int
	tables           []string
	loadedBytes      int64
}

// lockdownDSNParams are applied when the snapshot database is reopened.
var lockdownDSNParams = map[string]string{
	"access_mode":                  "READ_ONLY",
	"enable_external_access":       "false",
	"autoinstall_known_extensions": "false",
	"autoload_known_extensions":    "false",
}

func Load(ctx context.Context, store storage.Reader, snapshots []Snapshot, cfg Config) (_ *Executor, err error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("at least one table snapshot is required")
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 5 * time.Second
	}
	if cfg.RowCap <= 0 {
		cfg.RowCap = 1000
	}

	workDir, err := os.MkdirTemp("", "shopdesk-snapshot-")
	if err != nil {
		return nil, fmt.Errorf("create snapshot temp dir: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(workDir)
		}
	}()

	stagingDir := filepath.Join(workDir, "staging")
	if err := os.Mkdir(stagingDir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	groupedPaths := map[string][]string{}
	var loadedBytes int64
	for index, snapshot := range snapshots {
		table := strings.ToLower(strings.TrimSpace(snapshot.Table))
		if table == "" {
			return nil, fmt.Errorf("snapshot %d has no table name", index)
		}
		reader, err := store.Get(ctx, snapshot.ObjectPath)
		if err != nil {
			return nil, fmt.Errorf("get snapshot %q: %w", snapshot.ObjectPath, err)
		}
		localPath := filepath.Join(stagingDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(table), index))
		n, err := stageFile(localPath, reader)
		_ = reader.Close()
		if err != nil {
			return nil, fmt.Errorf("write local snapshot %q: %w", localPath, err)
		}
		loadedBytes += n
		groupedPaths[table] = append(groupedPaths[table], localPath)
	}

	tables := make([]string, 0, len(groupedPaths))
	for table := range groupedPaths {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	dbPath := filepath.Join(workDir, "snapshot.duckdb")
	if err := buildDatabase(ctx, dbPath, tables, groupedPaths); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, fmt.Errorf("remove staging dir: %w", err)
	}

	db, err := sql.Open("duckdb", readOnlyDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open duckdb read-only: %w", err)
	}
	if _, err := db.ExecContext(ctx, "SET lock_configuration = true"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lock duckdb configuration: %w", err)
	}

	return &Executor{
		db:               db,
		workDir:          workDir,
		statementTimeout: cfg.StatementTimeout,
		rowCap:           cfg.RowCap,
		tables:           tables,
		loadedBytes:      loadedBytes,
	}, nil
}

// buildDatabase writes every table into a new database file and closes it.
func buildDatabase(ctx context.Context, dbPath string, tables []string, groupedPaths map[string][]string) error {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	for _, table := range tables {
		createSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table), quoteStringArray(groupedPaths[table]))
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			_ = db.Close()
			return fmt.Errorf("load table %q: %w", table, err)
		}
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close snapshot database: %w", err)
	}
	return nil
}

func readOnlyDSN(dbPath string) string {
	keys := make([]string, 0, len(lockdownDSNParams))
	for key := range lockdownDSNParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	params := make([]string, 0, len(keys))
	for _, key := range keys {
		params = append(params, key+"="+lockdownDSNParams[key])
	}
	return dbPath + "?" + strings.Join(params, "&")
}

func (e *Executor) Execute(ctx context.Context, verdict safety.Verdict) (result query.Result, err error) {
	if err := query.Approve(verdict); err != nil {
		return query.Result{}, err
	}
	started := time.Now()
	defer func() { query.Observe(executorName, result, err, time.Since(started)) }()

	ctx, cancel := context.WithTimeout(ctx, e.statementTimeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, verdict.SQL(), verdict.Params()...)
	if err != nil {
		return query.Result{}, &query.ExecutionError{Op: "execute", Err: err}
	}
	defer func() { _ = rows.Close() }()

	result, err = query.Collect(rows, e.rowCap)
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(started)
	return result, nil
}

// Tables lists the loaded table names in sorted order.
func (e *Executor) Tables() []string {
	return append([]string(nil), e.tables...)
}

func (e *Executor) LoadedBytes() int64 {
	return e.loadedBytes
}

func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *Executor) Close() error {
	err := e.db.Close()
	if removeErr := os.RemoveAll(e.workDir); removeErr != nil && err == nil {
		err = fmt.Errorf("remove snapshot dir: %w", removeErr)
	}
	return err
}

// stageFile copies a snapshot into a private file that must not already exist.
func stageFile(path string, reader io.Reader) (int64, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil {
		return n, copyErr
	}
	return n, closeErr
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
