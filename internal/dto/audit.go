package dto

import "time"

// AuditSearchQuery binds audit filter query parameters.
type AuditSearchQuery struct {
	Table     string     `form:"tabla"`
	Operation string     `form:"operacion" validate:"omitempty,oneof=CREATE UPDATE DELETE SOFT_DELETE ANNULLED"`
	User      string     `form:"usuario"`
	From      *time.Time `form:"desde" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"hasta" time_format:"2006-01-02T15:04:05Z07:00"`
	Page      int        `form:"page"`
	PageSize  int        `form:"page_size"`
}

// PurgeResult reports the outcome of a retention sweep.
type PurgeResult struct {
	Deleted int64 `json:"deleted"`
}
