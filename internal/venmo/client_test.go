package venmo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/walletsync/internal/model"
)

func testWindow() model.SyncWindow {
	return model.SyncWindow{
		Start: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("tok-123", WithBaseURL(srv.URL), WithRateLimit(100))
}

func TestFetchStatement(t *testing.T) {
	data, err := os.ReadFile("../../testdata/venmo_statement.csv")
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, statementPath, r.URL.Path)
		assert.Equal(t, "09-01-2026", r.URL.Query().Get("startDate"))
		assert.Equal(t, "09-30-2026", r.URL.Query().Get("endDate"))
		assert.Equal(t, "2784930155", r.URL.Query().Get("profileId"))
		assert.Equal(t, "personal", r.URL.Query().Get("accountType"))

		cookie, err := r.Cookie("api_access_token")
		if assert.NoError(t, err) {
			assert.Equal(t, "tok-123", cookie.Value)
		}

		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write(data)
	})

	stmt, err := c.FetchStatement(context.Background(), "2784930155", testWindow())
	require.NoError(t, err)
	assert.Len(t, stmt.Entries, 4)
	assert.Equal(t, "390.00", stmt.Snapshot.Beginning.StringFixed(2))
	assert.Equal(t, "50.89", stmt.Snapshot.Ending.StringFixed(2))
}

func TestFetchStatement_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	})

	_, err := c.FetchStatement(context.Background(), "1", testWindow())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAuth)
	assert.False(t, errors.Is(err, model.ErrTransient))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "token expired", apiErr.Message)
}

func TestFetchStatement_ServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchStatement(context.Background(), "1", testWindow())
	assert.ErrorIs(t, err, model.ErrTransient)
}

func TestFetchStatement_UnableToFetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Unable to fetch transaction history for this period"))
	})

	_, err := c.FetchStatement(context.Background(), "1", testWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to fetch transaction history")
	assert.False(t, errors.Is(err, model.ErrTransient))
}

func TestFetchStatement_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	_, err := c.FetchStatement(context.Background(), "1", testWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing Venmo statement")
}

func TestFetchStatement_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient("tok", WithBaseURL(url), WithTimeout(time.Second))
	_, err := c.FetchStatement(context.Background(), "1", testWindow())
	assert.ErrorIs(t, err, model.ErrTransient)
}

func TestAPIError_Unwrap(t *testing.T) {
	assert.ErrorIs(t, &APIError{StatusCode: 403}, model.ErrAuth)
	assert.ErrorIs(t, &APIError{StatusCode: 429}, model.ErrTransient)
	assert.ErrorIs(t, &APIError{StatusCode: 503}, model.ErrTransient)
	assert.Nil(t, (&APIError{StatusCode: 400}).Unwrap())
}
