package truelayer

import (
	"fmt"
	"time"
)

// Token is the bundle returned by the token endpoint for both the
// authorization-code exchange and a refresh. Refresh tokens may rotate, so
// callers must always persist the whole bundle.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// Provider identifies the bank behind an account
type Provider struct {
	DisplayName string `json:"display_name,omitempty"`
	ProviderID  string `json:"provider_id,omitempty"`
	LogoURI     string `json:"logo_uri,omitempty"`
}

// AccountNumber holds the identifiers of a bank account
type AccountNumber struct {
	IBAN     string `json:"iban,omitempty"`
	Number   string `json:"number,omitempty"`
	SortCode string `json:"sort_code,omitempty"`
	SwiftBIC string `json:"swift_bic,omitempty"`
}

// Account represents one linked bank account. Optional fields are pointers so
// an absent value is distinguishable from a zero one.
type Account struct {
	AccountID     string         `json:"account_id"`
	AccountType   string         `json:"account_type,omitempty"`
	DisplayName   string         `json:"display_name,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	AccountNumber *AccountNumber `json:"account_number,omitempty"`
	Provider      *Provider      `json:"provider,omitempty"`
}

// Transaction represents a single account transaction. AccountID is not part
// of the upstream payload for per-account fetches; the aggregation layer tags
// it in before merging.
type Transaction struct {
	TransactionID       string    `json:"transaction_id"`
	AccountID           string    `json:"account_id,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
	Description         string    `json:"description,omitempty"`
	Amount              float64   `json:"amount"`
	Currency            string    `json:"currency,omitempty"`
	TransactionType     string    `json:"transaction_type,omitempty"`
	TransactionCategory string    `json:"transaction_category,omitempty"`
	MerchantName        string    `json:"merchant_name,omitempty"`
}

// Balance represents an account balance snapshot
type Balance struct {
	Currency        string     `json:"currency,omitempty"`
	Available       *float64   `json:"available,omitempty"`
	Current         *float64   `json:"current,omitempty"`
	Overdraft       *float64   `json:"overdraft,omitempty"`
	UpdateTimestamp *time.Time `json:"update_timestamp,omitempty"`
}

// resultsEnvelope is the {status, results} wrapper the data API puts around
// every collection response
type resultsEnvelope[T any] struct {
	Status  string `json:"status"`
	Results []T    `json:"results"`
}

// APIError is returned when the aggregator responds with a non-2xx status.
// Body carries the upstream error detail verbatim.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("truelayer: status %d: %s", e.Status, e.Body)
}
