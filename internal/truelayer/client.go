package truelayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pennyflow/backend/internal/config"
)

const requestTimeout = 30 * time.Second

// Client is a stateless typed client for the TrueLayer sandbox API. Callers
// supply the bearer token on every data call; the client holds no per-user
// state.
type Client struct {
	cfg        config.TrueLayerConfig
	httpClient *http.Client
}

// NewClient creates a TrueLayer API client
func NewClient(cfg config.TrueLayerConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// AuthorizationURL builds the URL the browser is redirected to when starting
// a link attempt. Only the derived challenge crosses this boundary; the
// verifier stays in server-side session state.
func (c *Client) AuthorizationURL(codeChallenge, nonce string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("scope", strings.Join(c.cfg.Scopes, " "))
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "S256")
	params.Set("nonce", nonce)
	params.Set("providers", strings.Join(c.cfg.Providers, " "))

	return strings.TrimSuffix(c.cfg.AuthBaseURL, "/") + "/?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for a token bundle
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)
	data.Set("redirect_uri", c.cfg.RedirectURI)
	data.Set("code", code)
	data.Set("code_verifier", codeVerifier)

	return c.tokenRequest(ctx, data)
}

// RefreshToken exchanges a refresh token for a fresh token bundle
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)
	data.Set("redirect_uri", c.cfg.RedirectURI)

	return c.tokenRequest(ctx, data)
}

func (c *Client) tokenRequest(ctx context.Context, data url.Values) (*Token, error) {
	endpoint := strings.TrimSuffix(c.cfg.AuthBaseURL, "/") + "/connect/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &token, nil
}

// Accounts fetches all linked accounts
func (c *Client) Accounts(ctx context.Context, accessToken string) ([]Account, error) {
	var envelope resultsEnvelope[Account]
	if err := c.getJSON(ctx, accessToken, "/data/v1/accounts", &envelope); err != nil {
		return nil, err
	}
	return envelope.Results, nil
}

// AccountTransactions fetches transactions for a single account
func (c *Client) AccountTransactions(ctx context.Context, accessToken, accountID string) ([]Transaction, error) {
	path := fmt.Sprintf("/data/v1/accounts/%s/transactions", url.PathEscape(accountID))
	var envelope resultsEnvelope[Transaction]
	if err := c.getJSON(ctx, accessToken, path, &envelope); err != nil {
		return nil, err
	}
	return envelope.Results, nil
}

// AccountBalance fetches the balance for a single account. The API returns a
// results array; the first element is the balance.
func (c *Client) AccountBalance(ctx context.Context, accessToken, accountID string) (*Balance, error) {
	path := fmt.Sprintf("/data/v1/accounts/%s/balance", url.PathEscape(accountID))
	var envelope resultsEnvelope[Balance]
	if err := c.getJSON(ctx, accessToken, path, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Results) == 0 {
		return nil, fmt.Errorf("balance response missing results")
	}
	return &envelope.Results[0], nil
}

// ExtendConnection reconfirms consent to extend the bank connection. The
// upstream status code and body are returned so the caller can propagate them
// verbatim; err is non-nil only when the request itself could not be made.
func (c *Client) ExtendConnection(ctx context.Context, accessToken string, reconfirmed bool) (int, []byte, error) {
	endpoint := strings.TrimSuffix(c.cfg.APIBaseURL, "/") + "/data/v1/connections/extend"

	payload, err := json.Marshal(map[string]bool{"user_has_reconfirmed_consent": reconfirmed})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode extend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create extend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("extend request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read extend response: %w", err)
	}

	return resp.StatusCode, body, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, path string, out any) error {
	endpoint := strings.TrimSuffix(c.cfg.APIBaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}
