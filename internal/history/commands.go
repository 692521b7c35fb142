package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Command sources.
const (
	SourceMQTT = "mqtt"
	SourceAPI  = "api"
)

// CommandRecord is one entity command that tried to write the device.
type CommandRecord struct {
	ID        int64          `json:"id"`
	RequestID string         `json:"request_id"`
	EntityID  string         `json:"entity_id"`
	Command   string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
	Source    string         `json:"source"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CommandFilter narrows ListCommands.
type CommandFilter struct {
	EntityID string
	Source   string
	Limit    int // default 50, max 200
	Offset   int
}

// CommandLog stores entity commands in the entity_writes table.
type CommandLog struct {
	db *sql.DB
}

// NewCommandLog creates a command log on an open, migrated database.
func NewCommandLog(db *sql.DB) *CommandLog {
	return &CommandLog{db: db}
}

// Log inserts rec. RequestID and CreatedAt are filled in when empty.
func (l *CommandLog) Log(ctx context.Context, rec *CommandRecord) error {
	if rec.RequestID == "" {
		rec.RequestID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	params := []byte("{}")
	if rec.Params != nil {
		b, err := json.Marshal(rec.Params)
		if err != nil {
			return fmt.Errorf("encoding command params: %w", err)
		}
		params = b
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO entity_writes (request_id, entity_id, command, params, source, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.EntityID, rec.Command, string(params), rec.Source,
		nullableString(rec.Error), rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting command record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns commands matching f, newest first.
func (l *CommandLog) List(ctx context.Context, f CommandFilter) ([]CommandRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 { //nolint:mnd // page size cap
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conds []string
	var args []any
	if f.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, f.Source)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from fixed column names with placeholders
		`SELECT id, request_id, entity_id, command, params, source, error, created_at
		 FROM entity_writes %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, where)
	args = append(args, f.Limit, f.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	out := []CommandRecord{}
	for rows.Next() {
		var rec CommandRecord
		var params string
		var errText sql.NullString
		var ms int64
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.EntityID, &rec.Command,
			&params, &rec.Source, &errText, &ms); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		if params != "" && params != "{}" {
			_ = json.Unmarshal([]byte(params), &rec.Params) //nolint:errcheck // written by Log
		}
		rec.Error = errText.String
		rec.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return out, nil
}
