package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pennyflow/backend/internal/bank"
	"github.com/pennyflow/backend/internal/link"
	"github.com/pennyflow/backend/internal/models"
	"github.com/pennyflow/backend/internal/session"
	"github.com/pennyflow/backend/internal/tokens"
	"github.com/pennyflow/backend/internal/truelayer"
)

type stubCredentialStore struct {
	rec *models.TokenRecord
}

func (s *stubCredentialStore) Get(ctx context.Context, userID int) (*models.TokenRecord, error) {
	return s.rec, nil
}

func (s *stubCredentialStore) Save(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error) {
	s.rec = rec
	return rec, nil
}

type stubRefresher struct {
	err error
}

func (s *stubRefresher) RefreshToken(ctx context.Context, refreshToken string) (*truelayer.Token, error) {
	return nil, s.err
}

type stubExchanger struct {
	token *truelayer.Token
	err   error
	calls int
}

func (s *stubExchanger) AuthorizationURL(codeChallenge, nonce string) string {
	return "https://auth.example.com/?code_challenge=" + codeChallenge
}

func (s *stubExchanger) ExchangeCode(ctx context.Context, code, codeVerifier string) (*truelayer.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

type stubProvider struct {
	accounts []truelayer.Account
}

func (s *stubProvider) Accounts(ctx context.Context, accessToken string) ([]truelayer.Account, error) {
	return s.accounts, nil
}

func (s *stubProvider) AccountTransactions(ctx context.Context, accessToken, accountID string) ([]truelayer.Transaction, error) {
	return nil, nil
}

func (s *stubProvider) AccountBalance(ctx context.Context, accessToken, accountID string) (*truelayer.Balance, error) {
	return &truelayer.Balance{}, nil
}

func withUser(r *http.Request, user *models.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userContextKey, user))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func freshManager(t *testing.T) *tokens.Manager {
	t.Helper()
	store := &stubCredentialStore{rec: &models.TokenRecord{
		UserID:      1,
		AccessToken: "usable-token",
		ExpiresIn:   3600,
		CreatedAt:   time.Now(),
	}}
	return tokens.NewManager(store, &stubRefresher{})
}

func TestBeginLinkSetsSessionAndReturnsURL(t *testing.T) {
	sessions := session.NewStore(time.Minute)
	linker := link.NewHandler(&stubExchanger{}, &stubCredentialStore{})

	req := withUser(httptest.NewRequest(http.MethodPost, "/banks/link", nil), &models.User{ID: 1})
	rr := httptest.NewRecorder()
	HandleBeginLink(sessions, linker)(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, decodeBody(t, rr)["url"])

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, linkSessionCookie, cookies[0].Name)

	sess := sessions.Get(cookies[0].Value)
	require.NotNil(t, sess)
	require.NotEmpty(t, sess.CodeVerifier)
	require.False(t, sess.CodeExchangeDone)
}

func TestLinkCallbackMissingCode(t *testing.T) {
	sessions := session.NewStore(time.Minute)
	linker := link.NewHandler(&stubExchanger{}, &stubCredentialStore{})

	req := withUser(httptest.NewRequest(http.MethodGet, "/banks/callback", nil), &models.User{ID: 1})
	rr := httptest.NewRecorder()
	HandleLinkCallback(sessions, linker)(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Missing code", decodeBody(t, rr)["error"])
}

func TestLinkCallbackMissingSession(t *testing.T) {
	sessions := session.NewStore(time.Minute)
	linker := link.NewHandler(&stubExchanger{}, &stubCredentialStore{})

	req := withUser(httptest.NewRequest(http.MethodGet, "/banks/callback?code=abc", nil), &models.User{ID: 1})
	rr := httptest.NewRecorder()
	HandleLinkCallback(sessions, linker)(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t,
		"Missing PKCE code_verifier in session. Please restart the bank linking process.",
		decodeBody(t, rr)["error"])
}

func TestLinkCallbackReplayRejected(t *testing.T) {
	sessions := session.NewStore(time.Minute)
	client := &stubExchanger{token: &truelayer.Token{AccessToken: "a"}}
	linker := link.NewHandler(client, &stubCredentialStore{})

	id, sess := sessions.Create()
	sess.CodeVerifier = "verifier"
	sess.CodeExchangeDone = true

	req := withUser(httptest.NewRequest(http.MethodGet, "/banks/callback?code=abc", nil), &models.User{ID: 1})
	req.AddCookie(&http.Cookie{Name: linkSessionCookie, Value: id})
	rr := httptest.NewRecorder()
	HandleLinkCallback(sessions, linker)(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t,
		"This authorization code has already been used. Please restart the bank linking process.",
		decodeBody(t, rr)["error"])
	require.Zero(t, client.calls)
}

func TestLinkCallbackExchangeFailure(t *testing.T) {
	sessions := session.NewStore(time.Minute)
	client := &stubExchanger{err: &truelayer.APIError{Status: 400, Body: `{"error":"invalid_grant"}`}}
	linker := link.NewHandler(client, &stubCredentialStore{})

	id, sess := sessions.Create()
	sess.CodeVerifier = "verifier"

	req := withUser(httptest.NewRequest(http.MethodGet, "/banks/callback?code=abc", nil), &models.User{ID: 1})
	req.AddCookie(&http.Cookie{Name: linkSessionCookie, Value: id})
	rr := httptest.NewRecorder()
	HandleLinkCallback(sessions, linker)(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "Token exchange failed", body["error"])
	require.Contains(t, body["details"], "invalid_grant")
}

func TestLinkCallbackSuccess(t *testing.T) {
	sessions := session.NewStore(time.Minute)
	client := &stubExchanger{token: &truelayer.Token{AccessToken: "access", RefreshToken: "refresh"}}
	store := &stubCredentialStore{}
	linker := link.NewHandler(client, store)

	id, sess := sessions.Create()
	sess.CodeVerifier = "verifier"

	req := withUser(httptest.NewRequest(http.MethodGet, "/banks/callback?code=abc", nil), &models.User{ID: 9})
	req.AddCookie(&http.Cookie{Name: linkSessionCookie, Value: id})
	rr := httptest.NewRecorder()
	HandleLinkCallback(sessions, linker)(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, decodeBody(t, rr)["success"])
	require.NotNil(t, store.rec)
	require.Equal(t, 9, store.rec.UserID)
	require.True(t, sess.CodeExchangeDone)
}

func TestAccountsNotLinkedRespondsRelink(t *testing.T) {
	manager := tokens.NewManager(&stubCredentialStore{}, &stubRefresher{})
	svc := bank.NewService(&stubProvider{})

	req := withUser(httptest.NewRequest(http.MethodGet, "/banks/accounts", nil), &models.User{ID: 1})
	rr := httptest.NewRecorder()
	HandleAccounts(manager, svc)(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "Authorisation expired. Please re-link your bank account.", body["error"])
	require.Equal(t, "/link", body["relink_url"])
}

func TestAccountsRefreshFailureRespondsRelink(t *testing.T) {
	store := &stubCredentialStore{rec: &models.TokenRecord{
		UserID:       1,
		AccessToken:  "stale",
		RefreshToken: "stale-refresh",
		ExpiresIn:    1,
		CreatedAt:    time.Now().Add(-time.Hour),
	}}
	manager := tokens.NewManager(store, &stubRefresher{err: errors.New("invalid_grant")})
	svc := bank.NewService(&stubProvider{})

	req := withUser(httptest.NewRequest(http.MethodGet, "/banks/accounts", nil), &models.User{ID: 1})
	rr := httptest.NewRecorder()
	HandleAccounts(manager, svc)(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "/link", decodeBody(t, rr)["relink_url"])
}

func TestAccountsSucceededShape(t *testing.T) {
	svc := bank.NewService(&stubProvider{accounts: []truelayer.Account{{AccountID: "acc-1"}}})

	req := withUser(httptest.NewRequest(http.MethodGet, "/banks/accounts", nil), &models.User{ID: 1})
	rr := httptest.NewRecorder()
	HandleAccounts(freshManager(t), svc)(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	require.Equal(t, "Succeeded", body["status"])
	require.Len(t, body["results"], 1)
}

func TestIncomeByMonthValidatesParams(t *testing.T) {
	svc := bank.NewService(&stubProvider{})
	manager := freshManager(t)

	r := chi.NewRouter()
	r.Get("/income/month/{year}/{month}", HandleIncomeByMonth(manager, svc))

	for _, path := range []string{
		"/income/month/1800/5",
		"/income/month/2026/13",
		"/income/month/abc/5",
	} {
		req := withUser(httptest.NewRequest(http.MethodGet, path, nil), &models.User{ID: 1})
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}
