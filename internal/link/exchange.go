// Package link drives the PKCE-protected authorization-code flow that
// connects a local user to the open-banking aggregator.
package link

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/pennyflow/backend/internal/models"
	"github.com/pennyflow/backend/internal/session"
	"github.com/pennyflow/backend/internal/truelayer"
)

// CodeExchanger is the aggregator surface the flow needs
type CodeExchanger interface {
	AuthorizationURL(codeChallenge, nonce string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*truelayer.Token, error)
}

// TokenSaver persists the token bundle of a successful exchange
type TokenSaver interface {
	Save(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error)
}

// Handler controls link attempts: it owns verifier generation and enforces
// single-use of the returned authorization code per session.
type Handler struct {
	client CodeExchanger
	store  TokenSaver
}

// NewHandler creates an exchange handler
func NewHandler(client CodeExchanger, store TokenSaver) *Handler {
	return &Handler{client: client, store: store}
}

// BeginLink starts a fresh link attempt for the user. The session is reset to
// a new verifier with the exchange flag cleared, so starting a new attempt
// always invalidates any prior in-flight one.
func (h *Handler) BeginLink(sess *session.LinkSession, userID int) (string, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return "", err
	}

	sess.UserID = userID
	sess.CodeVerifier = verifier
	sess.CodeExchangeDone = false

	return h.client.AuthorizationURL(codeChallenge(verifier), uuid.NewString()), nil
}

// CompleteLink exchanges the callback's authorization code exactly once for
// the session. Preconditions are checked in order and each failure is a
// distinct error so the caller can render the right recovery instruction.
func (h *Handler) CompleteLink(ctx context.Context, sess *session.LinkSession, userID int, code string) (*models.TokenRecord, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if sess == nil || sess.CodeVerifier == "" {
		return nil, ErrMissingVerifier
	}
	if sess.CodeExchangeDone {
		return nil, ErrCodeAlreadyUsed
	}

	token, err := h.client.ExchangeCode(ctx, code, sess.CodeVerifier)
	if err != nil {
		// The flag stays false: the user recovers by starting a new link
		// attempt, which replaces the verifier.
		detail := err.Error()
		var apiErr *truelayer.APIError
		if errors.As(err, &apiErr) {
			detail = apiErr.Body
		}
		return nil, &ExchangeError{Detail: detail, Err: err}
	}

	rec := &models.TokenRecord{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
		Scope:        token.Scope,
		TokenType:    token.TokenType,
	}
	saved, err := h.store.Save(ctx, rec)
	if err != nil {
		return nil, err
	}

	// From here a retried callback on this session is rejected even if the
	// aggregator would accept the code again.
	sess.CodeExchangeDone = true

	log.Printf("Link: completed code exchange for user %d", userID)
	return saved, nil
}
