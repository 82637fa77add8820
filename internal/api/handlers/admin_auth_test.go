package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/civicsquare/server/internal/auth"
	"github.com/stretchr/testify/require"
)

func newAdminFixture(t *testing.T) (*fixture, *AdminAuthHandler, *memRevocations) {
	t.Helper()
	f := newFixture()
	tokens := auth.NewTokenManager("test-signing-secret", "civicsquare", 15*time.Minute, 24*time.Hour)
	store := newMemRevocations()
	return f, NewAdminAuthHandler(f.users, tokens, store, "test"), store
}

func TestCreateAuthorityIsActiveImmediately(t *testing.T) {
	f, h, _ := newAdminFixture(t)

	body := `{"email":"parks@city.gov","password":"sup3r-secret-pw","first_name":"Parks","last_name":"Dept"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/admin/create/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateAuthority(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp userSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "authority", resp.Role)
	require.True(t, resp.IsActive)

	// No confirmation mail for provisioned accounts.
	require.Empty(t, f.mailer.sent)
}

func TestCreateAuthorityDuplicateEmail(t *testing.T) {
	f, h, _ := newAdminFixture(t)
	f.activeUser(t, "parks@city.gov")

	body := `{"email":"parks@city.gov","password":"sup3r-secret-pw","first_name":"Parks","last_name":"Dept"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/admin/create/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateAuthority(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenLoginReturnsPair(t *testing.T) {
	f, h, _ := newAdminFixture(t)
	user, password := f.activeUser(t, "parks@city.gov")

	body := `{"email":"` + user.Email + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/admin/login/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.TokenLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["refresh"])
	require.NotEmpty(t, resp["access"])

	claims, err := h.Tokens.ValidateAccess(resp["access"])
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), claims.Subject)
}

func TestTokenLoginBadCredentials(t *testing.T) {
	f, h, _ := newAdminFixture(t)
	f.activeUser(t, "parks@city.gov")

	body := `{"email":"parks@city.gov","password":"wrong-password"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/admin/login/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.TokenLogin(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid Credentials")
}

func TestTokenLogoutRevokesRefresh(t *testing.T) {
	f, h, _ := newAdminFixture(t)
	user, _ := f.activeUser(t, "parks@city.gov")

	pair, err := h.Tokens.GeneratePair(user.ID.String(), user.Role)
	require.NoError(t, err)

	body := `{"refresh":"` + pair.Refresh + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/admin/logout/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.TokenLogout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	// A second logout with the same token is a token error.
	again := httptest.NewRequest(http.MethodPost, "/api/users/admin/logout/", strings.NewReader(body))
	againRec := httptest.NewRecorder()
	h.TokenLogout(againRec, again)
	require.Equal(t, http.StatusBadRequest, againRec.Code)
	require.Contains(t, againRec.Body.String(), "token-error")
}

func TestTokenRefreshMintAndReject(t *testing.T) {
	f, h, _ := newAdminFixture(t)
	user, _ := f.activeUser(t, "parks@city.gov")

	pair, err := h.Tokens.GeneratePair(user.ID.String(), user.Role)
	require.NoError(t, err)

	body := `{"refresh":"` + pair.Refresh + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/token/refresh/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.TokenRefresh(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["access"])

	// Revoked refresh tokens no longer mint access tokens.
	logoutReq := httptest.NewRequest(http.MethodPost, "/api/users/admin/logout/", strings.NewReader(body))
	h.TokenLogout(httptest.NewRecorder(), logoutReq)

	rejected := httptest.NewRequest(http.MethodPost, "/api/token/refresh/", strings.NewReader(body))
	rejectedRec := httptest.NewRecorder()
	h.TokenRefresh(rejectedRec, rejected)
	require.Equal(t, http.StatusBadRequest, rejectedRec.Code)
}

func TestTokenEndpointsRejectGarbage(t *testing.T) {
	_, h, _ := newAdminFixture(t)

	for _, body := range []string{`{"refresh":"not-a-jwt"}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/token/refresh/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.TokenRefresh(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body=%s", body)
	}
}
