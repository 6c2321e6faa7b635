package acl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogogo1024/mediate"
)

type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
)

var (
	ErrInvalidVisibility = fmt.Errorf("acl: %w: visibility must be public or restricted", mediate.ErrInvalidArgument)
	ErrInvalidWindow     = fmt.Errorf("acl: %w: valid_to must be >= valid_from", mediate.ErrInvalidArgument)
	errMissingID         = errors.New("acl: tenant, doc and user ids are required")
)

// Store keeps document visibility and per-user grants, partitioned by
// tenant. A document without a visibility record is public. Grants with a
// nil validTo never expire.
type Store interface {
	SetVisibility(ctx context.Context, tenantID, docID string, v Visibility) error
	Grant(ctx context.Context, tenantID, docID, userID string, validFrom time.Time, validTo *time.Time) error
	Revoke(ctx context.Context, tenantID, docID, userID string) error
	RevokeAllUser(ctx context.Context, tenantID, userID string) error

	// CheckBatch returns the subset of docIDs the user may read at now,
	// in input order.
	CheckBatch(ctx context.Context, tenantID, userID string, docIDs []string, now time.Time) ([]string, error)

	// ListGrants returns doc ids the user holds a live explicit grant to,
	// sorted. Public documents are not enumerated.
	ListGrants(ctx context.Context, tenantID, userID string, now time.Time) ([]string, error)
}

func validVisibility(v Visibility) bool {
	return v == VisibilityPublic || v == VisibilityRestricted
}

func validateGrant(tenantID, docID, userID string, validFrom time.Time, validTo *time.Time) error {
	if tenantID == "" || docID == "" || userID == "" {
		return errMissingID
	}
	if validTo != nil && !validFrom.IsZero() && validTo.Before(validFrom) {
		return ErrInvalidWindow
	}
	return nil
}
