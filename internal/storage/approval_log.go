package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"agentrun/internal/approval"
)

// ApprovalLog implements approval.AuditLogger on the approval_log table.
type ApprovalLog struct {
	db *DB
}

// NewApprovalLog creates an audit logger writing to db.
func NewApprovalLog(db *DB) *ApprovalLog {
	return &ApprovalLog{db: db}
}

// ApprovalEntry is one row of the audit trail.
type ApprovalEntry struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"requestId"`
	EventType  string    `json:"eventType"`
	Kind       string    `json:"kind"`
	ToolCallID string    `json:"toolCallId,omitempty"`
	ToolName   string    `json:"toolName,omitempty"`
	Title      string    `json:"title,omitempty"`
	Arguments  string    `json:"arguments,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	Approved   bool      `json:"approved"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

const insertApprovalSQL = `
	INSERT INTO approval_log (request_id, event_type, kind, tool_call_id, tool_name, title, arguments, decision, approved, message, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// LogRequest records a new request.
func (l *ApprovalLog) LogRequest(req *approval.Request) error {
	args := ""
	if len(req.Arguments) > 0 {
		data, err := json.Marshal(req.Arguments)
		if err != nil {
			return fmt.Errorf("encode arguments: %w", err)
		}
		args = string(data)
	}
	_, err := l.db.Exec(insertApprovalSQL,
		req.ID, "request", string(req.Kind), nullable(req.ToolCallID), nullable(req.ToolName),
		nullable(req.Title), nullable(args), nil, nil, nullable(req.Message), req.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

// LogDecision records how a request was resolved.
func (l *ApprovalLog) LogDecision(req *approval.Request, result *approval.Result) error {
	_, err := l.db.Exec(insertApprovalSQL,
		req.ID, "decision", string(req.Kind), nullable(req.ToolCallID), nullable(req.ToolName),
		nullable(req.Title), nil, string(result.Decision), result.Approved, nullable(result.Message),
		result.DecidedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert approval decision: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (l *ApprovalLog) Recent(limit int) ([]ApprovalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(`
		SELECT id, request_id, event_type, kind, tool_call_id, tool_name, title, arguments, decision, approved, message, created_at
		FROM approval_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query approval log: %w", err)
	}
	defer rows.Close()

	var out []ApprovalEntry
	for rows.Next() {
		var (
			e                                                          ApprovalEntry
			toolCallID, toolName, title, arguments, decision, message sql.NullString
			approved                                                   sql.NullBool
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.EventType, &e.Kind, &toolCallID, &toolName, &title,
			&arguments, &decision, &approved, &message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval log: %w", err)
		}
		e.ToolCallID = toolCallID.String
		e.ToolName = toolName.String
		e.Title = title.String
		e.Arguments = arguments.String
		e.Decision = decision.String
		e.Approved = approved.Bool
		e.Message = message.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
