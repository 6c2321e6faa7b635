package acl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "acl:"

// Removing the last member of a set deletes the key so revoked users
// leave nothing behind.
var (
	sremDelIfEmpty = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
if redis.call('SCARD', KEYS[1]) == 0 then redis.call('DEL', KEYS[1]) end
return 1`)
	zremDelIfEmpty = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
if redis.call('ZCARD', KEYS[1]) == 0 then redis.call('DEL', KEYS[1]) end
return 1`)
)

// RedisStore keeps grants twice, indexed by document and by user:
// permanent grants in sets, expiring grants in sorted sets scored by
// expiry (unix seconds).
type RedisStore struct {
	c      redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(c redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{c: c, prefix: keyPrefix}
}

func (s *RedisStore) Prefix() string { return s.prefix }

func (s *RedisStore) SetVisibility(ctx context.Context, tenantID, docID string, v Visibility) error {
	if !validVisibility(v) {
		return ErrInvalidVisibility
	}
	if tenantID == "" || docID == "" {
		return errMissingID
	}
	key := s.visKey(tenantID, docID)
	if v == VisibilityPublic {
		return s.c.Del(ctx, key).Err()
	}
	return s.c.Set(ctx, key, string(v), 0).Err()
}

func (s *RedisStore) Grant(ctx context.Context, tenantID, docID, userID string, validFrom time.Time, validTo *time.Time) error {
	if err := validateGrant(tenantID, docID, userID, validFrom, validTo); err != nil {
		return err
	}
	docPerm, docExp := s.docKeys(tenantID, docID)
	userPerm, userExp := s.userKeys(tenantID, userID)

	_, err := s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if validTo == nil {
			p.SAdd(ctx, docPerm, userID)
			p.SAdd(ctx, userPerm, docID)
			zremDelIfEmpty.Eval(ctx, p, []string{docExp}, userID)
			zremDelIfEmpty.Eval(ctx, p, []string{userExp}, docID)
			return nil
		}
		// Drop members that already expired while we are here.
		cutoff := strconv.FormatInt(time.Now().Unix(), 10)
		p.ZRemRangeByScore(ctx, docExp, "-inf", cutoff)
		p.ZRemRangeByScore(ctx, userExp, "-inf", cutoff)

		score := float64(validTo.Unix())
		p.ZAdd(ctx, docExp, redis.Z{Score: score, Member: userID})
		p.ZAdd(ctx, userExp, redis.Z{Score: score, Member: docID})
		sremDelIfEmpty.Eval(ctx, p, []string{docPerm}, userID)
		sremDelIfEmpty.Eval(ctx, p, []string{userPerm}, docID)
		return nil
	})
	return err
}

func (s *RedisStore) Revoke(ctx context.Context, tenantID, docID, userID string) error {
	if tenantID == "" || docID == "" || userID == "" {
		return errMissingID
	}
	docPerm, docExp := s.docKeys(tenantID, docID)
	userPerm, userExp := s.userKeys(tenantID, userID)

	_, err := s.c.Pipelined(ctx, func(p redis.Pipeliner) error {
		sremDelIfEmpty.Eval(ctx, p, []string{docPerm}, userID)
		zremDelIfEmpty.Eval(ctx, p, []string{docExp}, userID)
		sremDelIfEmpty.Eval(ctx, p, []string{userPerm}, docID)
		zremDelIfEmpty.Eval(ctx, p, []string{userExp}, docID)
		return nil
	})
	return err
}

func (s *RedisStore) RevokeAllUser(ctx context.Context, tenantID, userID string) error {
	if tenantID == "" || userID == "" {
		return errMissingID
	}
	userPerm, userExp := s.userKeys(tenantID, userID)

	perm, err := s.c.SMembers(ctx, userPerm).Result()
	if err != nil {
		return err
	}
	exp, err := s.c.ZRange(ctx, userExp, 0, -1).Result()
	if err != nil {
		return err
	}

	_, err = s.c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, docID := range dedupe(perm, exp) {
			docPerm, docExp := s.docKeys(tenantID, docID)
			sremDelIfEmpty.Eval(ctx, p, []string{docPerm}, userID)
			zremDelIfEmpty.Eval(ctx, p, []string{docExp}, userID)
		}
		p.Del(ctx, userPerm, userExp)
		return nil
	})
	return err
}

type docLookup struct {
	docID string
	vis   *redis.StringCmd
	perm  *redis.BoolCmd
	exp   *redis.FloatCmd
}

func (s *RedisStore) CheckBatch(ctx context.Context, tenantID, userID string, docIDs []string, now time.Time) ([]string, error) {
	if tenantID == "" || userID == "" {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now()
	}
	userPerm, userExp := s.userKeys(tenantID, userID)

	lookups := make([]docLookup, 0, len(docIDs))
	_, err := s.c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, docID := range docIDs {
			if docID == "" {
				continue
			}
			lookups = append(lookups, docLookup{
				docID: docID,
				vis:   p.Get(ctx, s.visKey(tenantID, docID)),
				perm:  p.SIsMember(ctx, userPerm, docID),
				exp:   p.ZScore(ctx, userExp, docID),
			})
		}
		return nil
	})
	// Missing keys surface as redis.Nil on individual commands.
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	nowUnix := float64(now.Unix())
	allowed := make([]string, 0, len(lookups))
	for _, l := range lookups {
		if l.vis.Val() != string(VisibilityRestricted) {
			allowed = append(allowed, l.docID)
			continue
		}
		if l.perm.Val() {
			allowed = append(allowed, l.docID)
			continue
		}
		if score, err := l.exp.Result(); err == nil && nowUnix < score {
			allowed = append(allowed, l.docID)
		}
	}
	return allowed, nil
}

func (s *RedisStore) ListGrants(ctx context.Context, tenantID, userID string, now time.Time) ([]string, error) {
	if tenantID == "" || userID == "" {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now()
	}
	userPerm, userExp := s.userKeys(tenantID, userID)

	perm, err := s.c.SMembers(ctx, userPerm).Result()
	if err != nil {
		return nil, err
	}
	exp, err := s.c.ZRangeByScore(ctx, userExp, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	return dedupe(perm, exp), nil
}

func dedupe(lists ...[]string) []string {
	out := make([]string, 0)
	for _, l := range lists {
		for _, v := range l {
			if v != "" {
				out = append(out, v)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *RedisStore) visKey(tenantID, docID string) string {
	return fmt.Sprintf("%st:%s:doc:%s:vis", s.prefix, tenantID, docID)
}

func (s *RedisStore) docKeys(tenantID, docID string) (perm, exp string) {
	base := fmt.Sprintf("%st:%s:doc:%s", s.prefix, tenantID, docID)
	return base + ":perm", base + ":exp"
}

func (s *RedisStore) userKeys(tenantID, userID string) (perm, exp string) {
	base := fmt.Sprintf("%st:%s:u:%s", s.prefix, tenantID, userID)
	return base + ":perm", base + ":exp"
}
