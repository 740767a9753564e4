package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	gfxerrors "github.com/gfxreplay/gfxreplay/internal/errors"
	"github.com/gfxreplay/gfxreplay/internal/typeset"
)

// TraceRecord describes one registered capture.
type TraceRecord struct {
	TraceID     string
	Name        string
	CapturePath string
	EventCount  int64
	TypeCount   int64
	FrameCount  int64
	SizeBytes   int64
	CreatedAt   time.Time
}

// StepRecord describes one step of a capture's segmentation.
type StepRecord struct {
	TraceID       string
	StepNumber    int
	StartEventID  int64
	EndEventID    int64
	FrameID       *string
	FrameNumber   *int
	TotalEvents   int64
	VisibleEvents int64

	// TypeFilter is the serialized type membership filter, nil when the
	// step was indexed without one
	TypeFilter []byte
}

// Catalog manages capture and step metadata in catalog.db.
type Catalog interface {
	// RegisterTrace adds a capture and its step index in one transaction.
	RegisterTrace(ctx context.Context, trace *TraceRecord, steps []*StepRecord) error

	// GetTrace retrieves a single capture by trace ID.
	GetTrace(ctx context.Context, traceID string) (*TraceRecord, error)

	// ListTraces returns all captures, most recent first.
	ListTraces(ctx context.Context) ([]*TraceRecord, error)

	// ListSteps returns a capture's steps in step order.
	ListSteps(ctx context.Context, traceID string) ([]*StepRecord, error)

	// GetStep retrieves one step by capture and step number.
	GetStep(ctx context.Context, traceID string, stepNumber int) (*StepRecord, error)

	// FindStepByEvent returns the step whose range contains the event ID.
	FindStepByEvent(ctx context.Context, traceID string, eventID int64) (*StepRecord, error)

	// FindStepsByType returns steps whose type filter may contain the
	// given type name. False positives are possible; steps indexed
	// without a filter are always included.
	FindStepsByType(ctx context.Context, traceID, typeName string) ([]*StepRecord, error)

	// DeleteTrace removes a capture and its step index.
	DeleteTrace(ctx context.Context, traceID string) error

	// Close closes the catalog database connections.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)
}

// NewCatalog creates a new SQLite-based catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	c := &SQLiteCatalog{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
	}

	if err := c.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	return c, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stmts := append([]string{CreateTracesTableSQL, CreateStepsTableSQL}, CreateIndexesSQL...)
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RegisterTrace adds a capture and its step index in one transaction.
func (c *SQLiteCatalog) RegisterTrace(ctx context.Context, trace *TraceRecord, steps []*StepRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return gfxerrors.NewCatalogError(gfxerrors.CodeWriteConflict, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO traces (
			trace_id, name, capture_path,
			event_count, type_count, frame_count, size_bytes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trace.TraceID, trace.Name, trace.CapturePath,
		trace.EventCount, trace.TypeCount, trace.FrameCount, trace.SizeBytes,
		trace.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return gfxerrors.NewCatalogError(gfxerrors.CodeDuplicateTrace,
				fmt.Sprintf("trace %s already registered", trace.TraceID), err)
		}
		return gfxerrors.NewCatalogError(gfxerrors.CodeWriteConflict, "failed to insert trace", err)
	}

	for _, step := range steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO steps (
				trace_id, step_number, start_event_id, end_event_id,
				frame_id, frame_number, total_events, visible_events, type_filter
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trace.TraceID, step.StepNumber, step.StartEventID, step.EndEventID,
			step.FrameID, step.FrameNumber, step.TotalEvents, step.VisibleEvents,
			step.TypeFilter,
		)
		if err != nil {
			return gfxerrors.NewCatalogError(gfxerrors.CodeWriteConflict,
				fmt.Sprintf("failed to insert step %d", step.StepNumber), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return gfxerrors.NewCatalogError(gfxerrors.CodeWriteConflict, "failed to commit", err)
	}
	return nil
}

// GetTrace retrieves a single capture by trace ID.
func (c *SQLiteCatalog) GetTrace(ctx context.Context, traceID string) (*TraceRecord, error) {
	row := c.readDB.QueryRowContext(ctx, `
		SELECT trace_id, name, capture_path, event_count, type_count,
		       frame_count, size_bytes, created_at
		FROM traces WHERE trace_id = ?`, traceID)

	trace, err := scanTrace(row)
	if err == sql.ErrNoRows {
		return nil, gfxerrors.NewCatalogError(gfxerrors.CodeTraceNotFound,
			fmt.Sprintf("trace %s not found", traceID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get trace: %w", err)
	}
	return trace, nil
}

// ListTraces returns all captures, most recent first.
func (c *SQLiteCatalog) ListTraces(ctx context.Context) ([]*TraceRecord, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT trace_id, name, capture_path, event_count, type_count,
		       frame_count, size_bytes, created_at
		FROM traces ORDER BY created_at DESC, trace_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list traces: %w", err)
	}
	defer rows.Close()

	var traces []*TraceRecord
	for rows.Next() {
		trace, err := scanTrace(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan trace: %w", err)
		}
		traces = append(traces, trace)
	}
	return traces, rows.Err()
}

// ListSteps returns a capture's steps in step order.
func (c *SQLiteCatalog) ListSteps(ctx context.Context, traceID string) ([]*StepRecord, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT trace_id, step_number, start_event_id, end_event_id,
		       frame_id, frame_number, total_events, visible_events, type_filter
		FROM steps WHERE trace_id = ? ORDER BY step_number`, traceID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*StepRecord
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// GetStep retrieves one step by capture and step number.
func (c *SQLiteCatalog) GetStep(ctx context.Context, traceID string, stepNumber int) (*StepRecord, error) {
	row := c.readDB.QueryRowContext(ctx, `
		SELECT trace_id, step_number, start_event_id, end_event_id,
		       frame_id, frame_number, total_events, visible_events, type_filter
		FROM steps WHERE trace_id = ? AND step_number = ?`, traceID, stepNumber)

	step, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, gfxerrors.NewCatalogError(gfxerrors.CodeStepNotFound,
			fmt.Sprintf("step %d of trace %s not found", stepNumber, traceID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get step: %w", err)
	}
	return step, nil
}

// FindStepByEvent returns the step whose range contains the event ID.
func (c *SQLiteCatalog) FindStepByEvent(ctx context.Context, traceID string, eventID int64) (*StepRecord, error) {
	row := c.readDB.QueryRowContext(ctx, `
		SELECT trace_id, step_number, start_event_id, end_event_id,
		       frame_id, frame_number, total_events, visible_events, type_filter
		FROM steps
		WHERE trace_id = ? AND start_event_id <= ? AND end_event_id > ?`,
		traceID, eventID, eventID)

	step, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, gfxerrors.NewCatalogError(gfxerrors.CodeStepNotFound,
			fmt.Sprintf("no step of trace %s contains event %d", traceID, eventID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to find step: %w", err)
	}
	return step, nil
}

// FindStepsByType returns steps whose type filter may contain typeName.
// The filter is probabilistic, so results can include steps that never
// touched the type; they never miss a step that did.
func (c *SQLiteCatalog) FindStepsByType(ctx context.Context, traceID, typeName string) ([]*StepRecord, error) {
	steps, err := c.ListSteps(ctx, traceID)
	if err != nil {
		return nil, err
	}

	var matched []*StepRecord
	for _, step := range steps {
		if step.TypeFilter == nil {
			matched = append(matched, step)
			continue
		}
		ts, err := typeset.Deserialize(step.TypeFilter)
		if err != nil {
			// A corrupt filter degrades to "may contain"
			matched = append(matched, step)
			continue
		}
		if ts.MayContain(typeName) {
			matched = append(matched, step)
		}
	}
	return matched, nil
}

// DeleteTrace removes a capture and its step index.
func (c *SQLiteCatalog) DeleteTrace(ctx context.Context, traceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return gfxerrors.NewCatalogError(gfxerrors.CodeWriteConflict, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM steps WHERE trace_id = ?", traceID); err != nil {
		return fmt.Errorf("catalog: failed to delete steps: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM traces WHERE trace_id = ?", traceID)
	if err != nil {
		return fmt.Errorf("catalog: failed to delete trace: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: failed to check delete result: %w", err)
	}
	if affected == 0 {
		return gfxerrors.NewCatalogError(gfxerrors.CodeTraceNotFound,
			fmt.Sprintf("trace %s not found", traceID), nil)
	}

	return tx.Commit()
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if err := c.readDB.Close(); err != nil {
		firstErr = err
	}
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrace(s scanner) (*TraceRecord, error) {
	var trace TraceRecord
	var createdAt int64
	err := s.Scan(&trace.TraceID, &trace.Name, &trace.CapturePath,
		&trace.EventCount, &trace.TypeCount, &trace.FrameCount,
		&trace.SizeBytes, &createdAt)
	if err != nil {
		return nil, err
	}
	trace.CreatedAt = time.Unix(createdAt, 0)
	return &trace, nil
}

func scanStep(s scanner) (*StepRecord, error) {
	var step StepRecord
	err := s.Scan(&step.TraceID, &step.StepNumber, &step.StartEventID,
		&step.EndEventID, &step.FrameID, &step.FrameNumber,
		&step.TotalEvents, &step.VisibleEvents, &step.TypeFilter)
	if err != nil {
		return nil, err
	}
	return &step, nil
}
