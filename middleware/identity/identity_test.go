package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_SameCookieYieldsSameIdentity(t *testing.T) {
	v := "6f1c1b9e-6c1f-4d0e-9a55-0d2b7c1f9e01"

	a := Resolve(v)
	b := Resolve(v)

	assert.Equal(t, Recognized, a.Disposition)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, v, a.ID.String())
}

func TestResolve_NoCookieIssuesDistinctIdentities(t *testing.T) {
	a := Resolve("")
	b := Resolve("")

	assert.Equal(t, Issued, a.Disposition)
	assert.Equal(t, Issued, b.Disposition)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, uuid.Nil, a.ID)
}

func TestResolve_InvalidValuesAreReissued(t *testing.T) {
	for _, v := range []string{"garbage", "1234", uuid.Nil.String()} {
		id := Resolve(v)
		assert.Equal(t, Issued, id.Disposition, "value %q", v)
	}
}

func TestResolver_UsesGenerator(t *testing.T) {
	fixed := uuid.MustParse("11111111-2222-4333-8444-555555555555")
	id := Resolver{Generate: func() uuid.UUID { return fixed }}.Resolve("")
	assert.Equal(t, fixed, id.ID)
}

func TestNewCookie_Attributes(t *testing.T) {
	id := uuid.New()
	c := NewCookie(id, false)

	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, id.String(), c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 365*24*60*60, c.MaxAge)
	assert.True(t, c.HttpOnly)
}

func TestIssue_SetsCookieOnlyWhenIssued(t *testing.T) {
	var seen Identity
	h := Issue(Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		seen, ok = FromContext(r.Context())
		require.True(t, ok)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/calligraphy", nil))

	assert.Equal(t, Issued, seen.Disposition)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, seen.ID.String(), cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	r2 := httptest.NewRequest(http.MethodPost, "/api/calligraphy", nil)
	r2.AddCookie(&http.Cookie{Name: CookieName, Value: seen.ID.String()})
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)

	assert.Equal(t, Recognized, seen.Disposition)
	assert.Empty(t, w2.Result().Cookies())
}

func TestRecognize_NeverIssues(t *testing.T) {
	var ok bool
	h := Recognize(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = FromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calligraphy", nil))

	assert.False(t, ok)
	assert.Empty(t, w.Result().Cookies())
}
