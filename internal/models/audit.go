package models

import "time"

// AuditOperation enumerates the mutation kinds written to the audit log.
type AuditOperation string

const (
	AuditCreate     AuditOperation = "CREATE"
	AuditUpdate     AuditOperation = "UPDATE"
	AuditDelete     AuditOperation = "DELETE"
	AuditSoftDelete AuditOperation = "SOFT_DELETE"
	AuditAnnulled   AuditOperation = "ANNULLED"
)

// Audited table names.
const (
	TableDrivers  = "drivers"
	TableTariffs  = "tariffs"
	TablePayments = "payments"
	TableInvoices = "invoices"
	TableCards    = "rfid_cards"
)

// AuditRecord is an immutable before/after snapshot of a mutation.
type AuditRecord struct {
	ID        string         `db:"id" json:"id"`
	TableName string         `db:"table_name" json:"table_name"`
	Operation AuditOperation `db:"operation" json:"operation"`
	OldData   JSONB          `db:"old_data" json:"old_data"`
	NewData   JSONB          `db:"new_data" json:"new_data"`
	UserID    string         `db:"user_id" json:"user_id"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// AuditCriteria filters audit searches. The date range applies only when
// both bounds are set.
type AuditCriteria struct {
	Table     string
	Operation AuditOperation
	User      string
	From      *time.Time
	To        *time.Time
	PageRequest
}

// HasDateRange reports whether the date filter is active.
func (c AuditCriteria) HasDateRange() bool {
	return c.From != nil && c.To != nil
}

// AuditRecentLimit caps lookups of records for a single entity.
const AuditRecentLimit = 20

// DBStats summarises row counts per table.
type DBStats struct {
	Drivers      int       `db:"drivers" json:"drivers"`
	Tariffs      int       `db:"tariffs" json:"tariffs"`
	Payments     int       `db:"payments" json:"payments"`
	Invoices     int       `db:"invoices" json:"invoices"`
	Cards        int       `db:"rfid_cards" json:"rfid_cards"`
	AuditRecords int       `db:"audit_records" json:"audit_records"`
	GeneratedAt  time.Time `db:"-" json:"generated_at"`
}
