package acl

import (
	"time"

	"github.com/gogogo1024/mediate"
)

// SetVisibility marks a document public or restricted.
type SetVisibility struct {
	mediate.Void
	TenantID   string     `json:"tenant_id"`
	DocID      string     `json:"doc_id"`
	Visibility Visibility `json:"visibility"`
}

// Grant gives a user access to a restricted document. A nil ValidTo
// grants permanently; Restricted also restricts the document.
type Grant struct {
	mediate.Void
	TenantID   string     `json:"tenant_id"`
	DocID      string     `json:"doc_id"`
	UserID     string     `json:"user_id"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidTo    *time.Time `json:"valid_to,omitempty"`
	Restricted bool       `json:"restricted,omitempty"`
}

type Revoke struct {
	mediate.Void
	TenantID string `json:"tenant_id"`
	DocID    string `json:"doc_id"`
	UserID   string `json:"user_id"`
}

// RevokeAllUser removes every explicit grant of a user in a tenant.
type RevokeAllUser struct {
	mediate.Void
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
}

// CheckBatch returns the readable subset of DocIDs.
type CheckBatch struct {
	mediate.Returns[[]string]
	TenantID string     `json:"tenant_id"`
	UserID   string     `json:"user_id"`
	DocIDs   []string   `json:"doc_ids"`
	Now      *time.Time `json:"now,omitempty"`
}

// ListGrants returns the documents a user holds live grants to.
type ListGrants struct {
	mediate.Returns[[]string]
	TenantID string     `json:"tenant_id"`
	UserID   string     `json:"user_id"`
	Now      *time.Time `json:"now,omitempty"`
}
