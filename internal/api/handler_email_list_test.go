package api_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emailthing/internal/access"
	"emailthing/internal/api"
	"emailthing/internal/maillist"
	"emailthing/internal/model"
	"emailthing/internal/repository"
	"emailthing/internal/testutil"
	"emailthing/pkg/config"
	"emailthing/pkg/rbac"
	"emailthing/pkg/trace"
	"emailthing/pkg/util"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type listBody struct {
	Emails         []model.Row    `json:"emails"`
	CategoryCounts map[string]int `json:"categoryCounts"`
	TotalCount     int            `json:"totalCount"`
	NextCursor     *string        `json:"nextCursor"`
}

func newRouter(t *testing.T) (*api.Router, *repository.SQLiteStore) {
	t.Helper()
	store := testutil.NewStore(t)
	svc := maillist.NewService(store, config.ListConfig{}, zap.NewNop())
	r := api.NewRouter(api.NewEmailListHandler(svc, zap.NewNop()), access.NewChecker(store), store, secret, zap.NewNop())
	return r, store
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func get(r *api.Router, path, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestListEmailsPaginates(t *testing.T) {
	r, store := newRouter(t)
	require.NoError(t, store.UpsertMailboxUser(context.Background(), "m1", "u1", rbac.RoleOwner))

	var emails []model.Email
	for i := 0; i < 5; i++ {
		e := testutil.Email("m1", i)
		if i < 2 {
			e.CategoryID = testutil.Ptr("c1")
		}
		emails = append(emails, e)
	}
	testutil.Seed(t, store, emails, nil)

	w := get(r, "/api/v1/mailboxes/m1/emails?take=3", token(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var first listBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.Len(t, first.Emails, 3)
	assert.Equal(t, emails[0].ID, first.Emails[0].ID)
	assert.Equal(t, 5, first.TotalCount)
	assert.Equal(t, map[string]int{"c1": 2}, first.CategoryCounts)
	require.NotNil(t, first.NextCursor)

	w = get(r, "/api/v1/mailboxes/m1/emails?take=3&cursor="+url.QueryEscape(*first.NextCursor), token(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code)

	var second listBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.Len(t, second.Emails, 2)
	assert.Equal(t, emails[3].ID, second.Emails[0].ID)
	assert.Nil(t, second.NextCursor)
}

func TestListEmailsDraftsShape(t *testing.T) {
	r, store := newRouter(t)
	require.NoError(t, store.UpsertMailboxUser(context.Background(), "m1", "u1", rbac.RoleAdmin))

	w := get(r, "/api/v1/mailboxes/m1/emails?facet=drafts", token(t, "u1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"emails":[],"categoryCounts":null,"totalCount":0,"nextCursor":null}`, w.Body.String())
}

func TestListEmailsAuth(t *testing.T) {
	r, store := newRouter(t)
	require.NoError(t, store.UpsertMailboxUser(context.Background(), "m1", "u1", rbac.RoleOwner))

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/mailboxes/m1/emails", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/mailboxes/m1/emails", "garbage").Code)

	other, err := util.GenerateJWT("u1", "another-secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/mailboxes/m1/emails", other).Code)

	assert.Equal(t, http.StatusForbidden, get(r, "/api/v1/mailboxes/m1/emails", token(t, "u2")).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/api/v1/mailboxes/m2/emails", token(t, "u1")).Code)
}

func TestListEmailsBadRequests(t *testing.T) {
	r, store := newRouter(t)
	require.NoError(t, store.UpsertMailboxUser(context.Background(), "m1", "u1", rbac.RoleOwner))
	tok := token(t, "u1")

	offset := base64.RawURLEncoding.EncodeToString([]byte(`{"offset":10}`))
	for _, q := range []string{
		"facet=spam",
		"cursor=%21%21",
		"cursor=" + offset,
		"take=0",
		"take=ten",
	} {
		w := get(r, "/api/v1/mailboxes/m1/emails?"+q, tok)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

type failingLister struct{ err error }

func (f failingLister) List(ctx context.Context, req maillist.Request) (*maillist.Response, error) {
	return nil, f.err
}

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, userID, mailboxID, permission string) error {
	return nil
}

type denyWith struct{ err error }

func (d denyWith) Authorize(ctx context.Context, userID, mailboxID, permission string) error {
	return d.err
}

type okPinger struct{ err error }

func (p okPinger) Ping(ctx context.Context) error { return p.err }

func TestListEmailsStorageFailure(t *testing.T) {
	h := api.NewEmailListHandler(failingLister{err: errors.New("db down")}, zap.NewNop())
	r := api.NewRouter(h, allowAll{}, okPinger{}, secret, zap.NewNop())

	w := get(r, "/api/v1/mailboxes/m1/emails", token(t, "u1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderName))
}

func TestAccessCheckFailureIs500(t *testing.T) {
	h := api.NewEmailListHandler(failingLister{}, zap.NewNop())
	r := api.NewRouter(h, denyWith{err: errors.New("redis and db down")}, okPinger{}, secret, zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, get(r, "/api/v1/mailboxes/m1/emails", token(t, "u1")).Code)
}

func TestHealthEndpoints(t *testing.T) {
	h := api.NewEmailListHandler(failingLister{}, zap.NewNop())

	r := api.NewRouter(h, allowAll{}, okPinger{}, secret, zap.NewNop())
	assert.Equal(t, http.StatusOK, get(r, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/metrics", "").Code)

	r = api.NewRouter(h, allowAll{}, okPinger{err: errors.New("down")}, secret, zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/readyz", "").Code)
}

func TestTraceIDIsEchoed(t *testing.T) {
	h := api.NewEmailListHandler(failingLister{}, zap.NewNop())
	r := api.NewRouter(h, allowAll{}, okPinger{}, secret, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderName, "abc123")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get(trace.HeaderName))
}
