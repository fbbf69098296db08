package port

import "context"

// AuditEntry represents a single auditable pipeline event.
type AuditEntry struct {
	Tool           string
	SourceDatabase string
	TargetDatabase string
	SQL            string
	MatchStatus    string
	DurationMS     int64
	Err            error
}

// Auditor records pipeline audit events.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }
