package domain

import "time"

// AuditKind names a security-relevant occurrence.
type AuditKind string

const (
	AuditRegistered      AuditKind = "registered"
	AuditLoginSucceeded  AuditKind = "login_succeeded"
	AuditLoginFailed     AuditKind = "login_failed"
	AuditLoginThrottled  AuditKind = "login_throttled"
	AuditRefreshed       AuditKind = "refreshed"
	AuditRefreshRejected AuditKind = "refresh_rejected"
	AuditUserUpdated     AuditKind = "user_updated"
	AuditUserDeleted     AuditKind = "user_deleted"
	AuditRoleAssigned    AuditKind = "role_assigned"
	AuditRoleRemoved     AuditKind = "role_removed"
)

// AuditEvent is an append-only record of an authentication or authorization action.
type AuditEvent struct {
	ID         string    `bson:"_id"`
	Kind       AuditKind `bson:"kind"`
	Subject    string    `bson:"subject,omitempty"`
	Actor      string    `bson:"actor,omitempty"`
	Identifier string    `bson:"identifier,omitempty"`
	Detail     string    `bson:"detail,omitempty"`
	At         time.Time `bson:"at"`
}

// ShardKey returns the value events are partitioned on.
func (e AuditEvent) ShardKey() string {
	if e.Subject != "" {
		return e.Subject
	}
	return e.Identifier
}
