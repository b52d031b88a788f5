package link

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pennyflow/backend/internal/models"
	"github.com/pennyflow/backend/internal/session"
	"github.com/pennyflow/backend/internal/truelayer"
)

type fakeExchanger struct {
	token *truelayer.Token
	err   error
	calls int

	lastChallenge string
	lastVerifier  string
}

func (f *fakeExchanger) AuthorizationURL(codeChallenge, nonce string) string {
	f.lastChallenge = codeChallenge
	return "https://auth.example.com/?code_challenge=" + codeChallenge + "&nonce=" + nonce
}

func (f *fakeExchanger) ExchangeCode(ctx context.Context, code, codeVerifier string) (*truelayer.Token, error) {
	f.calls++
	f.lastVerifier = codeVerifier
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

type fakeSaver struct {
	saved []*models.TokenRecord
	err   error
}

func (f *fakeSaver) Save(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.saved = append(f.saved, rec)
	return rec, nil
}

func TestBeginLinkResetsSessionState(t *testing.T) {
	client := &fakeExchanger{}
	h := NewHandler(client, &fakeSaver{})
	sess := &session.LinkSession{CodeVerifier: "stale", CodeExchangeDone: true}

	url, err := h.BeginLink(sess, 7)
	require.NoError(t, err)
	require.NotEmpty(t, url)
	require.Equal(t, 7, sess.UserID)
	require.NotEqual(t, "stale", sess.CodeVerifier)
	require.False(t, sess.CodeExchangeDone)
}

func TestBeginLinkFreshVerifierEachAttempt(t *testing.T) {
	h := NewHandler(&fakeExchanger{}, &fakeSaver{})
	sess := &session.LinkSession{}

	_, err := h.BeginLink(sess, 1)
	require.NoError(t, err)
	first := sess.CodeVerifier

	_, err = h.BeginLink(sess, 1)
	require.NoError(t, err)

	require.NotEqual(t, first, sess.CodeVerifier)
}

func TestBeginLinkChallengeDerivedFromVerifier(t *testing.T) {
	client := &fakeExchanger{}
	h := NewHandler(client, &fakeSaver{})
	sess := &session.LinkSession{}

	_, err := h.BeginLink(sess, 1)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(sess.CodeVerifier))
	want := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sum[:])
	require.Equal(t, want, client.lastChallenge)
}

func TestCompleteLinkMissingCode(t *testing.T) {
	client := &fakeExchanger{}
	h := NewHandler(client, &fakeSaver{})
	sess := &session.LinkSession{CodeVerifier: "verifier"}

	_, err := h.CompleteLink(context.Background(), sess, 1, "")
	require.ErrorIs(t, err, ErrMissingCode)
	require.Zero(t, client.calls)
}

func TestCompleteLinkMissingVerifier(t *testing.T) {
	client := &fakeExchanger{}
	h := NewHandler(client, &fakeSaver{})

	_, err := h.CompleteLink(context.Background(), nil, 1, "code")
	require.ErrorIs(t, err, ErrMissingVerifier)

	_, err = h.CompleteLink(context.Background(), &session.LinkSession{}, 1, "code")
	require.ErrorIs(t, err, ErrMissingVerifier)
	require.Zero(t, client.calls)
}

func TestCompleteLinkReplayRejected(t *testing.T) {
	client := &fakeExchanger{token: &truelayer.Token{AccessToken: "a"}}
	h := NewHandler(client, &fakeSaver{})
	sess := &session.LinkSession{CodeVerifier: "verifier", CodeExchangeDone: true}

	// Rejected regardless of the code's own validity at the aggregator.
	_, err := h.CompleteLink(context.Background(), sess, 1, "any-code")
	require.ErrorIs(t, err, ErrCodeAlreadyUsed)
	require.Zero(t, client.calls, "replay must perform zero aggregator calls")
}

func TestCompleteLinkSuccess(t *testing.T) {
	client := &fakeExchanger{token: &truelayer.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		Scope:        "accounts",
		TokenType:    "Bearer",
	}}
	store := &fakeSaver{}
	h := NewHandler(client, store)
	sess := &session.LinkSession{CodeVerifier: "verifier"}

	rec, err := h.CompleteLink(context.Background(), sess, 42, "code")
	require.NoError(t, err)
	require.Equal(t, "verifier", client.lastVerifier)
	require.True(t, sess.CodeExchangeDone)

	require.Len(t, store.saved, 1)
	require.Equal(t, 42, rec.UserID)
	require.Equal(t, "access", rec.AccessToken)
	require.Equal(t, "refresh", rec.RefreshToken)
}

func TestCompleteLinkSecondCallbackRejected(t *testing.T) {
	client := &fakeExchanger{token: &truelayer.Token{AccessToken: "access"}}
	h := NewHandler(client, &fakeSaver{})
	sess := &session.LinkSession{CodeVerifier: "verifier"}

	_, err := h.CompleteLink(context.Background(), sess, 1, "code")
	require.NoError(t, err)

	// Browser back-button / duplicate retry with the same session.
	_, err = h.CompleteLink(context.Background(), sess, 1, "code")
	require.ErrorIs(t, err, ErrCodeAlreadyUsed)
	require.Equal(t, 1, client.calls)
}

func TestCompleteLinkExchangeFailure(t *testing.T) {
	client := &fakeExchanger{err: &truelayer.APIError{Status: 400, Body: `{"error":"invalid_grant"}`}}
	h := NewHandler(client, &fakeSaver{})
	sess := &session.LinkSession{CodeVerifier: "verifier"}

	_, err := h.CompleteLink(context.Background(), sess, 1, "expired-code")
	var exchangeErr *ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.Equal(t, `{"error":"invalid_grant"}`, exchangeErr.Detail)

	// The flag stays clear: the user restarts via a fresh link attempt.
	require.False(t, sess.CodeExchangeDone)
}

func TestCompleteLinkSaveFailureDoesNotMarkDone(t *testing.T) {
	client := &fakeExchanger{token: &truelayer.Token{AccessToken: "access"}}
	h := NewHandler(client, &fakeSaver{err: errors.New("db down")})
	sess := &session.LinkSession{CodeVerifier: "verifier"}

	_, err := h.CompleteLink(context.Background(), sess, 1, "code")
	require.Error(t, err)
	require.False(t, sess.CodeExchangeDone)
}
