package posting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kakizome/middleware/identity"
	rlapp "kakizome/middleware/ratelimit/application"
	rldomain "kakizome/middleware/ratelimit/domain"
	rlinfra "kakizome/middleware/ratelimit/infra"
	"kakizome/posting/application"
	"kakizome/posting/domain"
	"kakizome/posting/infra"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, store domain.Store, writeLimit int) http.Handler {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	if store == nil {
		store = infra.NewMemoryStore(infra.WithMemoryClock(mock))
	}
	limiter := rlinfra.NewWindowStore(rldomain.Policies{
		rldomain.ClassWrite: {Limit: writeLimit, Window: 10 * time.Second},
		rldomain.ClassRead:  {Limit: 60, Window: time.Minute},
	}, rlinfra.WithWindowClock(mock))

	return NewRouter(Options{
		Service: application.Service{
			Store:    store,
			Throttle: rlapp.Service{Limiter: limiter, FailOpen: true},
		},
	})
}

func do(t *testing.T, h http.Handler, method, path, body, addr string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if addr != "" {
		req.RemoteAddr = addr + ":40000"
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func identityCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.CookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", identity.CookieName)
	return nil
}

func decodePosting(t *testing.T, rec *httptest.ResponseRecorder) domain.Posting {
	t.Helper()
	var p domain.Posting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestLifecycle(t *testing.T) {
	h := newTestRouter(t, nil, 10)

	rec := do(t, h, http.MethodPost, "/api/calligraphy", `{"display_name":"山田","content":"謹賀新年"}`, "10.0.0.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	cookie := identityCookie(t, rec)
	created := decodePosting(t, rec)
	assert.Equal(t, cookie.Value, created.UserID.String())
	assert.True(t, created.IsMine)

	rec = do(t, h, http.MethodGet, "/api/calligraphy/me", "", "10.0.0.1", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "recognized identity must not be reissued")
	got := decodePosting(t, rec)
	assert.Equal(t, "謹賀新年", got.Content)
	assert.Equal(t, "山田", got.DisplayName)

	rec = do(t, h, http.MethodDelete, "/api/calligraphy/me", "", "10.0.0.1", cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/calligraphy/me", "", "10.0.0.1", cookie)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Resource Not Found", decodeError(t, rec))
}

func TestPathIDIsIgnored(t *testing.T) {
	h := newTestRouter(t, nil, 10)

	rec := do(t, h, http.MethodPost, "/api/calligraphy", `{"content":"mine"}`, "10.0.0.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := identityCookie(t, rec)

	rec = do(t, h, http.MethodGet, "/api/calligraphy/"+uuid.NewString(), "", "10.0.0.1", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mine", decodePosting(t, rec).Content)
}

func TestGetWithoutCookieIssuesIdentity(t *testing.T) {
	h := newTestRouter(t, nil, 10)

	rec := do(t, h, http.MethodGet, "/api/calligraphy/me", "", "10.0.0.1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	c := identityCookie(t, rec)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
}

func TestInvalidCookieIsReplaced(t *testing.T) {
	h := newTestRouter(t, nil, 10)

	rec := do(t, h, http.MethodPost, "/api/calligraphy", `{"content":"x"}`, "10.0.0.1",
		&http.Cookie{Name: identity.CookieName, Value: "not-a-uuid"})
	require.Equal(t, http.StatusOK, rec.Code)
	c := identityCookie(t, rec)
	_, err := uuid.Parse(c.Value)
	assert.NoError(t, err)
}

func TestRateLimitBoundary(t *testing.T) {
	h := newTestRouter(t, nil, 1)

	rec := do(t, h, http.MethodPost, "/api/calligraphy", `{"content":"Hello"}`, "192.168.1.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/calligraphy", `{"content":"World"}`, "192.168.1.1", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too Many Requests", decodeError(t, rec))
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))

	rec = do(t, h, http.MethodPost, "/api/calligraphy", `{"content":"Hi"}`, "192.168.1.2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestValidationErrors(t *testing.T) {
	h := newTestRouter(t, nil, 100)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"content too long", `{"content":"` + strings.Repeat("あ", 51) + `"}`, "Content must be 50 chars or less"},
		{"name too long", `{"display_name":"` + strings.Repeat("あ", 21) + `","content":"ok"}`, "Display name must be 20 chars or less"},
		{"legacy name too long", `{"user_name":"` + strings.Repeat("a", 21) + `","content":"ok"}`, "Display name must be 20 chars or less"},
		{"broken json", `{"content":`, "Invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/calligraphy", tc.body, "10.0.0.1", nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, decodeError(t, rec))
		})
	}
}

func TestLegacyUserNameField(t *testing.T) {
	h := newTestRouter(t, nil, 10)

	rec := do(t, h, http.MethodPost, "/api/calligraphy", `{"user_name":"鈴木","content":"福"}`, "10.0.0.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "鈴木", decodePosting(t, rec).DisplayName)

	rec = do(t, h, http.MethodPost, "/api/calligraphy", `{"display_name":"佐藤","user_name":"鈴木","content":"福"}`, "10.0.0.2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "佐藤", decodePosting(t, rec).DisplayName)
}

func TestListMarksOwnPosting(t *testing.T) {
	h := newTestRouter(t, nil, 10)

	rec := do(t, h, http.MethodPost, "/api/calligraphy", `{"content":"a"}`, "10.0.0.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := identityCookie(t, rec)
	rec = do(t, h, http.MethodPost, "/api/calligraphy", `{"content":"b"}`, "10.0.0.2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/calligraphy", "", "10.0.0.1", mine)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Posting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)

	own := 0
	for _, p := range list {
		if p.IsMine {
			own++
			assert.Equal(t, mine.Value, p.UserID.String())
		}
	}
	assert.Equal(t, 1, own)

	// listagem anônima não emite cookie
	rec = do(t, h, http.MethodGet, "/api/calligraphy", "", "10.0.0.3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestEmptyListIsArray(t *testing.T) {
	h := newTestRouter(t, nil, 10)

	rec := do(t, h, http.MethodGet, "/api/calligraphy", "", "10.0.0.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

type failingStore struct{ domain.Store }

func (failingStore) CreateOrReplace(context.Context, uuid.UUID, string, string, *domain.Diagnostics) (domain.Posting, error) {
	return domain.Posting{}, errors.New("pq: password authentication failed for user calli")
}

func TestStorageFailureHidesDetail(t *testing.T) {
	h := newTestRouter(t, failingStore{}, 10)

	rec := do(t, h, http.MethodPost, "/api/calligraphy", `{"content":"x"}`, "10.0.0.1", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t, nil, 10)

	rec := do(t, h, http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
