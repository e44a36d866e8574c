package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/soedash/internal/ratelimit"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(r.RemoteAddr))
})

func TestSessionStore_Lifecycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Hour)
	store.now = func() time.Time { return now }

	id, expires := store.Create()
	assert.NotEmpty(t, id)
	assert.Equal(t, now.Add(time.Hour), expires)
	assert.True(t, store.Valid(id))
	assert.False(t, store.Valid("unknown"))
	assert.False(t, store.Valid(""))

	now = now.Add(time.Hour)
	assert.False(t, store.Valid(id), "session must expire at its TTL")
	assert.Equal(t, 0, store.Len(), "expired session removed on lookup")

	id2, _ := store.Create()
	store.Delete(id2)
	assert.False(t, store.Valid(id2))
}

func TestSessionStore_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(time.Minute)
	store.now = func() time.Time { return now }

	store.Create()
	store.Create()
	now = now.Add(30 * time.Second)
	live, _ := store.Create()

	now = now.Add(45 * time.Second)
	assert.Equal(t, 2, store.Sweep())
	assert.True(t, store.Valid(live))
}

func TestCheckPassword(t *testing.T) {
	assert.True(t, CheckPassword("secret", "secret"))
	assert.False(t, CheckPassword("secret2", "secret"))
	assert.False(t, CheckPassword("", "secret"))
	assert.False(t, CheckPassword("", ""), "an unset password admits nobody")
}

func TestPasswordGate(t *testing.T) {
	store := NewSessionStore(time.Hour)
	id, _ := store.Create()
	h := PasswordGate(store, "sess", "/login", "/login", "/healthz")(okHandler)

	tests := []struct {
		name       string
		path       string
		cookie     string
		wantStatus int
		wantLoc    string
	}{
		{"public login", "/login", "", http.StatusOK, ""},
		{"public health", "/healthz", "", http.StatusOK, ""},
		{"page without session", "/", "", http.StatusSeeOther, "/login"},
		{"deep page keeps target", "/province?x=1", "", http.StatusSeeOther, "/login?next=%2Fprovince%3Fx%3D1"},
		{"api without session", "/api/central/categories", "", http.StatusUnauthorized, ""},
		{"stale cookie", "/api/central/categories", "nope", http.StatusUnauthorized, ""},
		{"valid session", "/api/central/categories", id, http.StatusOK, ""},
		{"prefix is not a public path", "/loginx", "", http.StatusSeeOther, "/login?next=%2Floginx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "sess", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "AUTH002")
			}
		})
	}
}

func TestTrustedRealIP(t *testing.T) {
	h := TrustedRealIP([]string{"10.0.0.0/8", "127.0.0.1", "not-an-ip"})(okHandler)

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted ignores headers", "203.0.113.5:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.5:4000"},
		{"trusted cidr uses X-Real-IP", "10.1.2.3:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"trusted single address", "127.0.0.1:4000", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "5.6.7.8"},
		{"invalid header keeps remote", "10.1.2.3:4000", map[string]string{"X-Real-IP": "garbage"}, "10.1.2.3:4000"},
		{"no headers keeps remote", "10.1.2.3:4000", nil, "10.1.2.3:4000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::ffff:192.0.2.1]:80"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.RemoteAddr = "weird"
	assert.Equal(t, "weird", ClientIP(req))
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(0.001, 2, 0)
	h := RateLimit(limiter, 30*time.Second)(okHandler)

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("192.0.2.1:1").Code)
	assert.Equal(t, http.StatusOK, do("192.0.2.1:2").Code, "same IP on another port shares the bucket")

	rec := do("192.0.2.1:3")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE001")

	assert.Equal(t, http.StatusOK, do("192.0.2.2:1").Code)
}

func TestLogger_CapturesStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
