package model

import "time"

// AuditLog records one mutating API request.
type AuditLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string    `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	CharID     *int64    `gorm:"index:idx_audit_char" json:"char_id"`
	CharName   string    `gorm:"size:32" json:"char_name"`
	Action     string    `gorm:"size:128;not null" json:"action"`
	Status     int       `json:"status"`
	Error      string    `gorm:"type:text" json:"error"`
	IP         string    `gorm:"size:45" json:"ip"`
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
