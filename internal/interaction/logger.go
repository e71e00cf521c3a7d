// Package interaction records caller invocations in an append-only audit
// trail. Logging is strictly best-effort: a failed write never fails the
// operation being logged, it is reported through the process log instead.
package interaction

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/staffv/kbstore/internal/database"
)

// Record is one logged invocation.
type Record struct {
	ID             string
	Caller         string
	Command        string
	Parameters     map[string]any
	ResponseLength int
	SourceEntryIDs []string // entry ids that informed the response, possibly dangling
	CreatedAt      time.Time
}

// Logger appends interaction records. Safe for concurrent use.
type Logger struct {
	db     database.DBTX
	logger *slog.Logger
}

// NewLogger creates an interaction Logger.
func NewLogger(db database.DBTX, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{db: db, logger: logger}
}

const insertRecordSQL = `
INSERT INTO interaction_logs (id, caller, command, parameters, response_length, source_entry_ids)
VALUES ($1, $2, $3, $4, $5, $6)
`

// Log appends a record. It never returns an error: storage failures are
// swallowed after a warning so the logged operation is unaffected. The
// entry ids are recorded as-is; they may dangle after entry deletion.
func (l *Logger) Log(ctx context.Context, rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Parameters == nil {
		rec.Parameters = map[string]any{}
	}
	if rec.SourceEntryIDs == nil {
		rec.SourceEntryIDs = []string{}
	}

	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		l.logger.Warn("failed to encode interaction parameters",
			"command", rec.Command, "error", err)
		params = []byte("{}")
	}

	_, err = l.db.Exec(ctx, insertRecordSQL,
		rec.ID, rec.Caller, rec.Command, params, rec.ResponseLength, rec.SourceEntryIDs)
	if err != nil {
		l.logger.Warn("failed to append interaction record",
			"command", rec.Command, "caller", rec.Caller, "error", err)
	}
}

const recentRecordsSQL = `
SELECT id, caller, command, parameters, response_length, source_entry_ids, created_at
FROM interaction_logs
ORDER BY created_at DESC
LIMIT $1
`

// Recent returns the most recent records, newest first.
func (l *Logger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.Query(ctx, recentRecordsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			rawParams []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Caller, &rec.Command, &rawParams,
			&rec.ResponseLength, &rec.SourceEntryIDs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawParams, &rec.Parameters); err != nil {
			l.logger.Warn("failed to parse interaction parameters", "id", rec.ID, "error", err)
			rec.Parameters = map[string]any{}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
