// audit/model.go
package audit

import (
	"encoding/json"
	"time"
)

// Actions recorded by the security trail.
const (
	ActionTokenReuse       = "TOKEN_REUSE"
	ActionFamilyRevoked    = "FAMILY_REVOKED"
	ActionTokenRotated     = "TOKEN_ROTATED"
	ActionACLGranted       = "ACL_GRANTED"
	ActionACLRevoked       = "ACL_REVOKED"
	ActionPermissionDenied = "PERMISSION_DENIED"
)

type SecurityEvent struct {
	Timestamp   time.Time       `json:"timestamp"`
	TenantID    string          `json:"tenant_id"`
	PrincipalID string          `json:"principal_id"`
	Action      string          `json:"action"`
	ResourceID  string          `json:"resource_id,omitempty"`
	Granted     bool            `json:"granted"`
	Details     json.RawMessage `json:"details,omitempty"`
}
