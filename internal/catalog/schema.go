// Package catalog provides the SQLite catalog tracking registered captures
// and their step index.
package catalog

// Schema contains the SQL definitions for catalog.db. The catalog is the
// source of truth for which captures a session knows about and how each
// capture segments into steps, so timelines can be listed without loading
// the capture file.

// CreateTracesTableSQL creates the traces table.
const CreateTracesTableSQL = `
CREATE TABLE IF NOT EXISTS traces (
    trace_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    capture_path TEXT NOT NULL,
    event_count INTEGER NOT NULL,
    type_count INTEGER NOT NULL,
    frame_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateStepsTableSQL creates the step index table. One row per step,
// keyed by capture and step number; frame columns are NULL for
// bookkeeping steps. type_filter holds the serialized type membership
// filter used by search.
const CreateStepsTableSQL = `
CREATE TABLE IF NOT EXISTS steps (
    trace_id TEXT NOT NULL,
    step_number INTEGER NOT NULL,
    start_event_id INTEGER NOT NULL,
    end_event_id INTEGER NOT NULL,
    frame_id TEXT,
    frame_number INTEGER,
    total_events INTEGER NOT NULL,
    visible_events INTEGER NOT NULL,
    type_filter BLOB,
    PRIMARY KEY (trace_id, step_number),
    FOREIGN KEY (trace_id) REFERENCES traces(trace_id)
)`

// CreateIndexesSQL creates supporting indexes.
var CreateIndexesSQL = []string{
	// Event-range lookups: which step contains event N
	`CREATE INDEX IF NOT EXISTS idx_steps_range ON steps(trace_id, start_event_id, end_event_id)`,

	// Frame listing per capture
	`CREATE INDEX IF NOT EXISTS idx_steps_frame ON steps(trace_id, frame_number) WHERE frame_id IS NOT NULL`,

	// Recency listing of captures
	`CREATE INDEX IF NOT EXISTS idx_traces_created ON traces(created_at)`,
}
