package domain

import "time"

// AuditKind classifies one audit row.
type AuditKind string

const (
	AuditDependencyAdded   AuditKind = "dependency_added"
	AuditDependencyRemoved AuditKind = "dependency_removed"
	AuditTaskMoved         AuditKind = "task_moved"
	AuditPinnedSkipped     AuditKind = "pinned_skipped"
	AuditCriticalChanged   AuditKind = "critical_changed"
	AuditImported          AuditKind = "imported"
	AuditTaskSaved         AuditKind = "task_saved"
)

// AuditEntry is one attributed change written alongside a commit. Every
// entry of one commit shares a BatchID.
type AuditEntry struct {
	ID        int64     `json:"id"`
	BatchID   string    `json:"batch_id"`
	Scope     ScopeID   `json:"scope"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason"`
	Kind      AuditKind `json:"kind"`
	TaskID    TaskID    `json:"task_id,omitempty"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
