package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensely/internal/auth"
	"expensely/internal/services"
	"expensely/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// apiClient drives the test server with a cookie jar so session cookies
// flow the way a browser would send them.
type apiClient struct {
	t      *testing.T
	ts     *httptest.Server
	client *http.Client
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	tokens := auth.NewTokenManager(testSecret, time.Hour)
	authSvc := services.NewAuthService(repo, tokens, 4)
	expSvc := services.NewExpenseService(repo, nil)

	srv := NewServer(Options{
		RateLimitPerMinute: 1000,
		PageSizeDefault:    20,
		PageSizeMax:        100,
	}, authSvc, expSvc, tokens)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.rateLimiter.stop() })

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &apiClient{t: t, ts: ts, client: &http.Client{Jar: jar}}
}

func (c *apiClient) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.ts.URL+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

func (c *apiClient) registerAndLogin(username, email string) {
	c.t.Helper()

	resp, _ := c.do("POST", "/auth/register", map[string]any{
		"username": username, "email": email, "password": "secret1",
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)

	resp, _ = c.do("POST", "/auth/login", map[string]any{
		"email": email, "password": "secret1",
	})
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Error.Code
}

func decodeExpense(t *testing.T, data []byte) expenseDTO {
	t.Helper()
	var wrapper struct {
		Expense expenseDTO `json:"expense"`
	}
	require.NoError(t, json.Unmarshal(data, &wrapper))
	return wrapper.Expense
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do("GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, body = api.do("GET", "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", string(body))
}

func TestRegisterLoginFlow(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do("POST", "/auth/register", map[string]any{
		"username": "alice", "email": "alice@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotContains(t, string(body), "password", "response must not leak credentials")

	var reg struct {
		User userDTO `json:"user"`
	}
	require.NoError(t, json.Unmarshal(body, &reg))
	assert.Equal(t, "alice", reg.User.Username)
	assert.NotZero(t, reg.User.ID)

	// duplicate registration conflicts
	resp, body = api.do("POST", "/auth/register", map[string]any{
		"username": "alice", "email": "other@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "user_exists", errorCode(t, body))

	resp, _ = api.do("POST", "/auth/login", map[string]any{
		"email": "alice@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "login must set the session cookie")
	assert.True(t, sessionCookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, sessionCookie.SameSite)
	assert.NotEmpty(t, sessionCookie.Value)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin("alice", "alice@example.com")

	resp, body := api.do("POST", "/auth/login", map[string]any{
		"email": "alice@example.com", "password": "wrongpass",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", errorCode(t, body))

	resp, body = api.do("POST", "/auth/login", map[string]any{
		"email": "nobody@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", errorCode(t, body))
}

func TestExpensesRequireSession(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do("GET", "/expenses", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing_token", errorCode(t, body))

	resp, _ = api.do("POST", "/expenses", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInvalidTokenClearsCookie(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest("GET", api.ts.URL+"/expenses", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage-token"})

	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var cleared *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared, "invalid token must clear the stored cookie")
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestExpenseCRUDFlow(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin("alice", "alice@example.com")

	resp, body := api.do("POST", "/expenses", map[string]any{
		"title": "Gym membership", "amount": "40.00", "frequency": 1,
		"isRecurring": true, "categoryId": 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeExpense(t, body)
	assert.Equal(t, "40.00", created.Amount)
	assert.Equal(t, "40.00", created.Total)
	assert.Equal(t, "Others", created.Category.Name)

	resp, body = api.do("GET", "/expenses/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ID, decodeExpense(t, body).ID)

	// frequency bump recomputes the total, amount untouched
	resp, body = api.do("PUT", "/expenses/"+itoa(created.ID), map[string]any{"frequency": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeExpense(t, body)
	assert.Equal(t, "40.00", updated.Amount)
	assert.Equal(t, "120.00", updated.Total)
	assert.Equal(t, "Gym membership", updated.Title)

	resp, body = api.do("GET", "/expenses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page expensePageDTO
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)

	resp, _ = api.do("DELETE", "/expenses/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = api.do("GET", "/expenses/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))
}

func TestExpenseValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin("alice", "alice@example.com")

	tests := []struct {
		name     string
		body     map[string]any
		wantCode string
	}{
		{"missing title", map[string]any{"title": "", "amount": "10.00", "categoryId": 1}, "empty_title"},
		{"bad amount", map[string]any{"title": "Lunch", "amount": "abc", "categoryId": 1}, "invalid_amount"},
		{"zero amount", map[string]any{"title": "Lunch", "amount": "0", "categoryId": 1}, "invalid_amount"},
		{"zero frequency", map[string]any{"title": "Lunch", "amount": "10.00", "frequency": 0, "categoryId": 1}, "invalid_frequency"},
		{"unknown category", map[string]any{"title": "Lunch", "amount": "10.00", "categoryId": 999}, "invalid_category"},
		{"unknown field", map[string]any{"title": "Lunch", "amount": "10.00", "categoryId": 1, "bogus": 1}, "invalid_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := api.do("POST", "/expenses", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.wantCode, errorCode(t, body))
		})
	}
}

func TestExpenseOwnershipIsolation(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin("alice", "alice@example.com")

	resp, body := api.do("POST", "/expenses", map[string]any{
		"title": "Secret", "amount": "10.00", "categoryId": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeExpense(t, body)

	// a second browser session for a different user
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	bob := &apiClient{t: t, ts: api.ts, client: &http.Client{Jar: jar}}
	bob.registerAndLogin("bob", "bob@example.com")

	resp, body = bob.do("GET", "/expenses/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))

	resp, _ = bob.do("PUT", "/expenses/"+itoa(created.ID), map[string]any{"title": "hijack"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = bob.do("DELETE", "/expenses/"+itoa(created.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = bob.do("GET", "/expenses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page expensePageDTO
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Empty(t, page.Items, "listing must be scoped to the session user")
}

func TestListFiltersOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin("alice", "alice@example.com")

	for _, e := range []map[string]any{
		{"title": "Monthly Rent", "amount": "500.00", "categoryId": 3},
		{"title": "Lunch", "amount": "12.50", "categoryId": 1},
		{"title": "Office rent share", "amount": "200.00", "categoryId": 3},
	} {
		resp, _ := api.do("POST", "/expenses", e)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := api.do("GET", "/expenses?title=RENT", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page expensePageDTO
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Len(t, page.Items, 2)

	resp, body = api.do("GET", "/expenses?category=Food", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Lunch", page.Items[0].Title)

	resp, body = api.do("GET", "/expenses?minAmount=100&maxAmount=600", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Len(t, page.Items, 2)

	resp, body = api.do("GET", "/expenses?minAmount=50&maxAmount=10", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_amount_range", errorCode(t, body))
}

func TestLogoutClearsCookie(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin("alice", "alice@example.com")

	resp, _ := api.do("POST", "/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cleared *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// the jar dropped the cookie, so the next call is unauthenticated
	resp, body := api.do("GET", "/expenses", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing_token", errorCode(t, body))
}

func TestCategoriesEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin("alice", "alice@example.com")

	resp, body := api.do("GET", "/categories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Categories []categoryDTO `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Categories, 5)
	assert.Equal(t, "Food", out.Categories[0].Name)

	// second call is served from the cache and must match
	_, body2 := api.do("GET", "/categories", nil)
	assert.JSONEq(t, string(body), string(body2))
}

func TestSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do("POST", "/auth/login", map[string]any{"email": "x@example.com", "password": "y"})
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestRateLimitOnMutations(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	tokens := auth.NewTokenManager(testSecret, time.Hour)
	srv := NewServer(Options{
		RateLimitPerMinute: 2,
		PageSizeDefault:    20,
		PageSizeMax:        100,
	}, services.NewAuthService(repo, tokens, 4), services.NewExpenseService(repo, nil), tokens)
	t.Cleanup(func() { srv.rateLimiter.stop() })

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	post := func() *http.Response {
		req, err := http.NewRequest("POST", ts.URL+"/auth/login",
			bytes.NewReader([]byte(`{"email":"x@example.com","password":"y"}`)))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		// pin the client key so connection reuse does not matter
		req.Header.Set("X-Forwarded-For", "203.0.113.7")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp
	}

	assert.NotEqual(t, http.StatusTooManyRequests, post().StatusCode)
	assert.NotEqual(t, http.StatusTooManyRequests, post().StatusCode)

	resp := post()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// reads stay unthrottled
	getResp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
