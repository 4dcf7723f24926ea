package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", srv.Client())
	require.NoError(t, err)
	return c
}

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	got, err := NormalizeBaseURL(" https://api.example.test/v1/ ")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.test/v1", got)

	for _, bad := range []string{"", "not a url", "/relative"} {
		_, err := NormalizeBaseURL(bad)
		require.Error(t, err, bad)
	}
}

func TestLogin_OK_NormalizesUser(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PathLogin, r.URL.Path)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, "trainee@astiro-systems.com", in["email"])
		require.Equal(t, "Astiro@2025", in["password"])
		_, _ = w.Write([]byte(`{"success":true,"data":{"user":{"user_id":17,"first_name":"Tina","last_name":"T","email":"trainee@astiro-systems.com"},"access_token":"tok","expires_in":3600}}`))
	})

	res, err := c.Login(context.Background(), "trainee@astiro-systems.com", "Astiro@2025")
	require.NoError(t, err)
	require.Equal(t, "tok", res.AccessToken)
	require.Equal(t, 3600, res.ExpiresIn)
	require.Equal(t, "17", res.User.ID)
	require.Equal(t, "Tina", res.User.FirstName)
}

func TestLogin_FailureCarriesServerMessage(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"Invalid credentials"}`))
	})

	_, err := c.Login(context.Background(), "a", "b")
	var re *errs.RemoteError
	require.True(t, errors.As(err, &re))
	require.Equal(t, http.StatusUnauthorized, re.Status)
	require.Equal(t, "Invalid credentials", re.Message)
}

func TestLogin_SuccessFlagFalseWith200(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	})

	_, err := c.Login(context.Background(), "a", "b")
	var re *errs.RemoteError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "Login failed", re.Message)
}

func TestLogin_TransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	srv.Close()

	_, err = c.Login(context.Background(), "a", "b")
	require.ErrorIs(t, err, errs.ErrTransport)
}

func TestRefresh_SendsBearer_AndFallsBackToJWTExp(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 9, 24, 8, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Minute)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "Bearer old", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"access_token": signed}})
	})
	c.now = func() time.Time { return now }

	res, err := c.Refresh(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, signed, res.AccessToken)
	require.Equal(t, 1800, res.ExpiresIn)
}

func TestRefresh_OpaqueTokenWithoutExpiry(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"access_token":"opaque"}}`))
	})

	res, err := c.Refresh(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, 0, res.ExpiresIn, "caller applies the default lifetime")
}

func TestRefresh_Failures(t *testing.T) {
	t.Parallel()

	_, err := (&Client{}).Refresh(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrNoToken)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	})
	_, err = c.Refresh(context.Background(), "old")
	var re *errs.RemoteError
	require.True(t, errors.As(err, &re))

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err = c.Refresh(context.Background(), "old")
	require.True(t, errors.As(err, &re))
	require.Equal(t, http.StatusUnauthorized, re.Status)
}

func TestLogout(t *testing.T) {
	t.Parallel()
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, PathLogout, r.URL.Path)
		require.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Logout(context.Background(), "t"))
	require.Equal(t, 1, calls)
}

func TestNormalizeUser_KeyVariants(t *testing.T) {
	t.Parallel()

	cases := []map[string]any{
		{"user_id": "9"},
		{"id": json.Number("9")},
		{"userId": 9.0},
		{"userID": "9"},
		{"user_id": nil, "id": "9"},
	}
	for _, raw := range cases {
		require.Equal(t, "9", NormalizeUser(raw).ID, "%v", raw)
	}
	require.Empty(t, NormalizeUser(nil).ID)
	require.Equal(t, "Ann", NormalizeUser(map[string]any{"firstName": "Ann"}).FirstName)
}
