package acl

import (
	"context"
	"fmt"
	"time"

	"github.com/gogogo1024/mediate"
	"github.com/gogogo1024/mediate/internal/ctxlog"
	"github.com/gogogo1024/mediate/registry"
	"github.com/google/uuid"
)

// Handlers serves every ACL request over one Store.
type Handlers struct {
	store Store
	now   func() time.Time
}

func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store, now: time.Now}
}

// Module registers Handlers backed by store.
func Module(store Store) registry.Module {
	return registry.Module{
		Name:         "acl",
		Constructors: []any{func() *Handlers { return NewHandlers(store) }},
	}
}

func (h *Handlers) HandleSetVisibility(ctx context.Context, req SetVisibility) error {
	if err := requireUUIDs(id{"tenant_id", req.TenantID}, id{"doc_id", req.DocID}); err != nil {
		return err
	}
	return h.store.SetVisibility(ctx, req.TenantID, req.DocID, req.Visibility)
}

func (h *Handlers) HandleGrant(ctx context.Context, req Grant) error {
	if err := requireUUIDs(id{"tenant_id", req.TenantID}, id{"doc_id", req.DocID}, id{"user_id", req.UserID}); err != nil {
		return err
	}
	validFrom := h.now()
	if req.ValidFrom != nil {
		validFrom = *req.ValidFrom
	}
	if req.Restricted {
		if err := h.store.SetVisibility(ctx, req.TenantID, req.DocID, VisibilityRestricted); err != nil {
			return err
		}
	}
	return h.store.Grant(ctx, req.TenantID, req.DocID, req.UserID, validFrom, req.ValidTo)
}

func (h *Handlers) HandleRevoke(ctx context.Context, req Revoke) error {
	if err := requireUUIDs(id{"tenant_id", req.TenantID}, id{"doc_id", req.DocID}, id{"user_id", req.UserID}); err != nil {
		return err
	}
	return h.store.Revoke(ctx, req.TenantID, req.DocID, req.UserID)
}

func (h *Handlers) HandleRevokeAllUser(ctx context.Context, req RevokeAllUser) error {
	if err := requireUUIDs(id{"tenant_id", req.TenantID}, id{"user_id", req.UserID}); err != nil {
		return err
	}
	return h.store.RevokeAllUser(ctx, req.TenantID, req.UserID)
}

// HandleCheckBatch fails closed: a store error yields an empty result.
func (h *Handlers) HandleCheckBatch(ctx context.Context, req CheckBatch) ([]string, error) {
	ids := []id{{"tenant_id", req.TenantID}, {"user_id", req.UserID}}
	for _, d := range req.DocIDs {
		ids = append(ids, id{"doc_ids", d})
	}
	if err := requireUUIDs(ids...); err != nil {
		return nil, err
	}

	allowed, err := h.store.CheckBatch(ctx, req.TenantID, req.UserID, req.DocIDs, h.at(req.Now))
	if err != nil {
		ctxlog.FromContext(ctx).Warn("ACL check failed, denying batch.", "tenant_id", req.TenantID, "error", err)
		return []string{}, nil
	}
	return allowed, nil
}

func (h *Handlers) HandleListGrants(ctx context.Context, req ListGrants) ([]string, error) {
	if err := requireUUIDs(id{"tenant_id", req.TenantID}, id{"user_id", req.UserID}); err != nil {
		return nil, err
	}
	return h.store.ListGrants(ctx, req.TenantID, req.UserID, h.at(req.Now))
}

func (h *Handlers) at(now *time.Time) time.Time {
	if now != nil {
		return *now
	}
	return h.now()
}

type id struct {
	field, value string
}

func requireUUIDs(ids ...id) error {
	for _, v := range ids {
		if _, err := uuid.Parse(v.value); err != nil {
			return fmt.Errorf("acl: %w: %s must be a uuid", mediate.ErrInvalidArgument, v.field)
		}
	}
	return nil
}
