package acl

import (
	"context"
	"slices"
	"sync"
	"time"
)

type docKey struct {
	tenant, doc string
}

type grantKey struct {
	docKey
	user string
}

// InMemoryStore is a Store for local development and tests.
type InMemoryStore struct {
	mu         sync.RWMutex
	visibility map[docKey]Visibility
	// Zero expiry means permanent.
	grants map[grantKey]time.Time
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		visibility: make(map[docKey]Visibility),
		grants:     make(map[grantKey]time.Time),
	}
}

func (s *InMemoryStore) SetVisibility(_ context.Context, tenantID, docID string, v Visibility) error {
	if !validVisibility(v) {
		return ErrInvalidVisibility
	}
	if tenantID == "" || docID == "" {
		return errMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := docKey{tenantID, docID}
	if v == VisibilityPublic {
		delete(s.visibility, k)
		return nil
	}
	s.visibility[k] = v
	return nil
}

func (s *InMemoryStore) Grant(_ context.Context, tenantID, docID, userID string, validFrom time.Time, validTo *time.Time) error {
	if err := validateGrant(tenantID, docID, userID, validFrom, validTo); err != nil {
		return err
	}

	var expiry time.Time
	if validTo != nil {
		expiry = *validTo
	}
	s.mu.Lock()
	s.grants[grantKey{docKey{tenantID, docID}, userID}] = expiry
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Revoke(_ context.Context, tenantID, docID, userID string) error {
	if tenantID == "" || docID == "" || userID == "" {
		return errMissingID
	}
	s.mu.Lock()
	delete(s.grants, grantKey{docKey{tenantID, docID}, userID})
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) RevokeAllUser(_ context.Context, tenantID, userID string) error {
	if tenantID == "" || userID == "" {
		return errMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.grants {
		if k.tenant == tenantID && k.user == userID {
			delete(s.grants, k)
		}
	}
	return nil
}

func (s *InMemoryStore) CheckBatch(_ context.Context, tenantID, userID string, docIDs []string, now time.Time) ([]string, error) {
	if tenantID == "" || userID == "" {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := make([]string, 0, len(docIDs))
	for _, docID := range docIDs {
		if docID == "" {
			continue
		}
		dk := docKey{tenantID, docID}
		if s.visibility[dk] != VisibilityRestricted {
			allowed = append(allowed, docID)
			continue
		}
		if expiry, ok := s.grants[grantKey{dk, userID}]; ok && live(expiry, now) {
			allowed = append(allowed, docID)
		}
	}
	return allowed, nil
}

func (s *InMemoryStore) ListGrants(_ context.Context, tenantID, userID string, now time.Time) ([]string, error) {
	if tenantID == "" || userID == "" {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for k, expiry := range s.grants {
		if k.tenant == tenantID && k.user == userID && live(expiry, now) {
			out = append(out, k.doc)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Len reports the number of stored grants, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

func live(expiry, now time.Time) bool {
	return expiry.IsZero() || now.Before(expiry)
}
