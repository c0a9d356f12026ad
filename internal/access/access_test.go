package access

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emailthing/pkg/circuitbreaker"
	"emailthing/pkg/rbac"
	"emailthing/pkg/util"
)

type fakeRoles struct {
	mu    sync.Mutex
	roles map[string]string
	err   error
	calls int
}

func (f *fakeRoles) MailboxRole(ctx context.Context, mailboxID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.roles[mailboxID+"/"+userID], nil
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Scan returns one key per call to exercise cursor iteration.
func (f *fakeCache) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewScanCmdResult(nil, 0, f.err)
	}
	var keys []string
	for k := range f.data {
		if ok, _ := path.Match(match, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if int(cursor) >= len(keys) {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	next := cursor + 1
	if int(next) >= len(keys) {
		next = 0
	}
	return redis.NewScanCmdResult(keys[cursor:cursor+1], next, nil)
}

func TestCheckerAuthorize(t *testing.T) {
	roles := &fakeRoles{roles: map[string]string{
		"m1/owner": rbac.RoleOwner,
		"m1/admin": rbac.RoleAdmin,
		"m1/weird": "GUEST",
	}}
	c := NewChecker(roles)
	ctx := context.Background()

	assert.NoError(t, c.Authorize(ctx, "owner", "m1", rbac.PermissionReadMail))
	assert.NoError(t, c.Authorize(ctx, "owner", "m1", rbac.PermissionManageMailbox))
	assert.NoError(t, c.Authorize(ctx, "admin", "m1", rbac.PermissionReadMail))
	assert.ErrorIs(t, c.Authorize(ctx, "admin", "m1", rbac.PermissionManageMailbox), ErrNoAccess)
	assert.ErrorIs(t, c.Authorize(ctx, "weird", "m1", rbac.PermissionReadMail), ErrNoAccess)
	assert.ErrorIs(t, c.Authorize(ctx, "stranger", "m1", rbac.PermissionReadMail), ErrNoAccess)
	assert.ErrorIs(t, c.Authorize(ctx, "", "m1", rbac.PermissionReadMail), ErrNoAccess)
}

func TestCheckerPropagatesLookupErrors(t *testing.T) {
	boom := errors.New("db down")
	c := NewChecker(&fakeRoles{err: boom})

	err := c.Authorize(context.Background(), "u", "m", rbac.PermissionReadMail)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoAccess)
}

func TestCachedRoleSourceReadThrough(t *testing.T) {
	roles := &fakeRoles{roles: map[string]string{"m1/u1": rbac.RoleOwner}}
	cache := newFakeCache()
	src := NewCachedRoleSource(roles, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		role, err := src.MailboxRole(ctx, "m1", "u1")
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleOwner, role)
	}
	assert.Equal(t, 1, roles.calls)
	assert.Equal(t, rbac.RoleOwner, cache.data["mailbox_access:m1:u1"])
	assert.Equal(t, time.Minute, cache.ttls["mailbox_access:m1:u1"])
}

func TestCachedRoleSourceNegativeCaching(t *testing.T) {
	roles := &fakeRoles{roles: map[string]string{}}
	cache := newFakeCache()
	src := NewCachedRoleSource(roles, cache, 0, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		role, err := src.MailboxRole(ctx, "m1", "nobody")
		require.NoError(t, err)
		assert.Empty(t, role)
	}
	assert.Equal(t, 1, roles.calls)
	assert.Equal(t, DefaultTTL, cache.ttls["mailbox_access:m1:nobody"])
}

func TestCachedRoleSourceDoesNotCacheErrors(t *testing.T) {
	boom := errors.New("db down")
	roles := &fakeRoles{err: boom}
	cache := newFakeCache()
	src := NewCachedRoleSource(roles, cache, time.Minute, zap.NewNop())

	_, err := src.MailboxRole(context.Background(), "m1", "u1")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, cache.data)
}

func TestCachedRoleSourceFallsThroughWhenRedisFails(t *testing.T) {
	roles := &fakeRoles{roles: map[string]string{"m1/u1": rbac.RoleAdmin}}
	cache := newFakeCache()
	cache.err = errors.New("connection refused")
	src := NewCachedRoleSource(roles, cache, time.Minute, zap.NewNop())

	for i := 0; i < 10; i++ {
		role, err := src.MailboxRole(context.Background(), "m1", "u1")
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleAdmin, role)
	}
	assert.Equal(t, 10, roles.calls)
}

func TestCachedRoleSourceInvalidate(t *testing.T) {
	roles := &fakeRoles{roles: map[string]string{"m1/u1": rbac.RoleOwner, "m1/u2": rbac.RoleAdmin, "m2/u1": rbac.RoleOwner}}
	cache := newFakeCache()
	src := NewCachedRoleSource(roles, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	for _, k := range [][2]string{{"m1", "u1"}, {"m1", "u2"}, {"m2", "u1"}} {
		_, err := src.MailboxRole(ctx, k[0], k[1])
		require.NoError(t, err)
	}
	require.Len(t, cache.data, 3)

	require.NoError(t, src.Invalidate(ctx, "m1", "u1"))
	assert.NotContains(t, cache.data, "mailbox_access:m1:u1")
	assert.Len(t, cache.data, 2)

	require.NoError(t, src.InvalidateMailbox(ctx, "m1"))
	assert.Equal(t, []string{"mailbox_access:m2:u1"}, keysOf(cache.data))

	roles.roles["m1/u1"] = rbac.RoleAdmin
	role, err := src.MailboxRole(ctx, "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, role)
}

func TestCachedRoleSourceInvalidateReportsRedisErrors(t *testing.T) {
	cache := newFakeCache()
	cache.err = errors.New("connection refused")
	src := NewCachedRoleSource(&fakeRoles{}, cache, time.Minute, zap.NewNop())

	assert.Error(t, src.Invalidate(context.Background(), "m1", "u1"))
	assert.Error(t, src.InvalidateMailbox(context.Background(), "m1"))
}

func TestCachedRoleSourceInvalidateWithOpenBreakerIsRetryable(t *testing.T) {
	roles := &fakeRoles{roles: map[string]string{"m1/u1": rbac.RoleOwner}}
	cache := newFakeCache()
	src := NewCachedRoleSource(roles, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := src.MailboxRole(ctx, "m1", "u1")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleOwner, cache.data["mailbox_access:m1:u1"])

	cache.err = errors.New("READONLY You can't write against a read only replica")
	for i := 0; i < circuitbreaker.DefaultConfig().FailureThreshold; i++ {
		err := src.Invalidate(ctx, "m1", "u1")
		require.Error(t, err)
		retryable, _ := util.IsRetryableError(err)
		assert.True(t, retryable)
	}

	cache.err = nil
	err = src.Invalidate(ctx, "m1", "u1")
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)

	err = src.InvalidateMailbox(ctx, "m1")
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	retryable, _ = util.IsRetryableError(err)
	assert.True(t, retryable)
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
