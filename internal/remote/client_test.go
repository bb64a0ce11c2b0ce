package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/sync.php"})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "ftp://example.org"})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "https://example.org/sync.php?site=a"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/sync.php?action=index&site=a", c.actionURL("index"))
}

func TestFetchAll_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sync.php", r.URL.Path)
		assert.Equal(t, "index", r.URL.Query().Get("action"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		_, _ = io.WriteString(w, `[
			{"id": 5, "title": "S", "content": "X", "created_at": "2026-01-10 07:36:29"},
			{"id": "6", "title": "T", "content": null, "created_at": "2026-01-11T08:00:00Z"}
		]`)
	})

	records, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(5), records[0].ID)
	assert.Equal(t, "S", records[0].Title)
	assert.Equal(t, "X", records[0].Content)
	assert.True(t, records[0].CreatedAt.Equal(time.Date(2026, 1, 10, 7, 36, 29, 0, time.UTC)))

	assert.Equal(t, int64(6), records[1].ID)
	assert.Equal(t, "", records[1].Content)
}

func TestFetchAll_EmptyArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "[]\n")
	})

	records, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchAll_RecoversEmbeddedPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<br />\n<b>Notice</b>: Undefined index [user] in sync.php<br />\n"+
			`[{"id": 9, "title": "wrapped", "content": "ok", "created_at": "2026-01-10"}]`+
			"\n</body></html>")
	})

	records, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(9), records[0].ID)
	assert.Equal(t, "wrapped", records[0].Title)
}

func TestFetchAll_ParseFault(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body>Fatal error</body></html>")
	})

	_, err := c.FetchAll(context.Background())
	require.Error(t, err)

	var pf *ParseFault
	require.True(t, errors.As(err, &pf), "expected ParseFault, got %T", err)
	assert.Equal(t, "fetch", pf.Op)
	assert.Contains(t, pf.Snippet, "Fatal error")
	assert.False(t, IsNetwork(err))
}

func TestFetchAll_HTTPFault(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.FetchAll(context.Background())
	require.Error(t, err)

	var hf *HTTPFault
	require.True(t, errors.As(err, &hf))
	assert.Equal(t, http.StatusInternalServerError, hf.Status)
	assert.False(t, hf.IsTransient())
	assert.False(t, hf.IsAuth())
}

func TestFetchAll_NetworkFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetwork(err), "expected NetworkFault, got %T: %v", err, err)
	assert.False(t, IsTransient(err))
}

func TestCreateOne_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "create", r.URL.Query().Get("action"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"title": "T", "content": "C"}, body)

		_, _ = io.WriteString(w, `{"id": 7, "title": "T"}`)
	})

	id, err := c.CreateOne(context.Background(), "T", "C")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestCreateOne_StringIDInWrappedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `Warning: deprecated call {"status":"ok","id":"12"}`)
	})

	id, err := c.CreateOne(context.Background(), "T", "C")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestCreateOne_StatusPolicy(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
		auth      bool
	}{
		{http.StatusServiceUnavailable, true, false},
		{http.StatusUnauthorized, false, true},
		{http.StatusForbidden, false, true},
		{http.StatusBadRequest, false, false},
		{http.StatusBadGateway, false, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.CreateOne(context.Background(), "T", "C")
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, tt.auth, IsAuth(err))
		})
	}
}

func TestCreateOne_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	_, err := c.CreateOne(context.Background(), "T", "C")
	assert.True(t, IsParse(err), "expected ParseFault, got %v", err)
}

func TestBearerToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "writer",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		assert.Equal(t, "device-1", r.Header.Get("X-Device"))
		_, _ = io.WriteString(w, "[]")
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Token: token, Headers: map[string]string{"X-Device": "device-1"}})
	require.NoError(t, err)

	_, err = c.FetchAll(context.Background())
	require.NoError(t, err)
}

func TestExpiredTokenSkipsNetwork(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Token: token})
	require.NoError(t, err)

	_, err = c.CreateOne(context.Background(), "T", "C")
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Zero(t, calls)
}

func TestTokenExpiry_OpaqueToken(t *testing.T) {
	_, ok := TokenExpiry("not-a-jwt")
	assert.False(t, ok)

	_, ok = TokenExpiry("")
	assert.False(t, ok)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	assert.NoError(t, c.Ping(context.Background()))
}
