package tokens

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pennyflow/backend/internal/models"
	"github.com/pennyflow/backend/internal/truelayer"
)

// expirySafetyBuffer is subtracted from the computed expiry before comparing
// to now, so a token is treated as expired slightly before it actually is.
// This avoids racing the aggregator on a token that dies mid-request.
const expirySafetyBuffer = 30 * time.Second

var (
	// ErrNotLinked means no token record exists for the user; they have
	// never completed a link.
	ErrNotLinked = errors.New("no linked bank account for user")

	// ErrReauthRequired means the refresh attempt itself failed. This is
	// terminal for the stored credentials; the user must re-link.
	ErrReauthRequired = errors.New("token refresh failed, re-linking required")
)

// CredentialStore is the persistence the manager needs
type CredentialStore interface {
	Get(ctx context.Context, userID int) (*models.TokenRecord, error)
	Save(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error)
}

// TokenRefresher is the aggregator operation the manager needs
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*truelayer.Token, error)
}

// Manager decides whether a stored access token is still usable, refreshing
// and persisting rotated tokens when it is not. It is the single entry point
// for all data-fetching code that needs a bearer token.
type Manager struct {
	store  CredentialStore
	client TokenRefresher
	now    func() time.Time
}

// NewManager creates a token lifecycle manager
func NewManager(store CredentialStore, client TokenRefresher) *Manager {
	return &Manager{
		store:  store,
		client: client,
		now:    time.Now,
	}
}

// AccessToken returns a usable bearer token for the user.
//
// The common path is cheap: when the stored token has more than the safety
// buffer of life left it is returned without any network call. Otherwise one
// refresh is attempted; a failed refresh is never retried here and surfaces
// as ErrReauthRequired. Two concurrent calls near expiry may both refresh;
// the store's upsert makes the last successful write authoritative.
func (m *Manager) AccessToken(ctx context.Context, userID int) (string, error) {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrNotLinked
	}

	if m.now().Before(m.expiryOf(rec).Add(-expirySafetyBuffer)) {
		return rec.AccessToken, nil
	}

	token, err := m.client.RefreshToken(ctx, rec.RefreshToken)
	if err != nil {
		log.Printf("TokenManager: refresh failed for user %d: %v", userID, err)
		return "", ErrReauthRequired
	}

	// Always persist whatever the aggregator returned, even if the refresh
	// token looks unchanged; rotation is possible on every refresh.
	saved := &models.TokenRecord{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
		Scope:        token.Scope,
		TokenType:    token.TokenType,
	}
	if _, err := m.store.Save(ctx, saved); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	return token.AccessToken, nil
}

// expiryOf computes when the record's access token expires, preferring the
// token's own embedded claims over the stored metadata.
func (m *Manager) expiryOf(rec *models.TokenRecord) time.Time {
	if _, expiresAt, ok := decodeTokenLifetime(rec.AccessToken); ok {
		return expiresAt
	}
	return rec.CreatedAt.Add(time.Duration(rec.ExpiresIn) * time.Second)
}
