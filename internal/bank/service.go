// Package bank aggregates account, transaction and balance data from the
// open-banking API. It operates on a bearer token already vetted by the
// token lifecycle manager.
package bank

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pennyflow/backend/internal/truelayer"
)

// DataProvider is the aggregator surface the service consumes
type DataProvider interface {
	Accounts(ctx context.Context, accessToken string) ([]truelayer.Account, error)
	AccountTransactions(ctx context.Context, accessToken, accountID string) ([]truelayer.Transaction, error)
	AccountBalance(ctx context.Context, accessToken, accountID string) (*truelayer.Balance, error)
}

// AccountBalance joins an account's metadata with its balance. Balance is nil
// when that account's balance fetch failed; feed gaps here are expected and
// must not fail the whole response.
type AccountBalance struct {
	AccountID     string                   `json:"account_id"`
	AccountType   string                   `json:"account_type,omitempty"`
	Currency      string                   `json:"currency,omitempty"`
	Name          string                   `json:"name,omitempty"`
	DisplayName   string                   `json:"display_name,omitempty"`
	AccountNumber *truelayer.AccountNumber `json:"account_number,omitempty"`
	Provider      *truelayer.Provider      `json:"provider,omitempty"`
	Balance       *truelayer.Balance       `json:"balance"`
}

// BalanceSummary is the balances view across all linked accounts
type BalanceSummary struct {
	Total    decimal.Decimal
	Balances []AccountBalance
}

// IncomeSummary is a filtered transaction set with its decimal total
type IncomeSummary struct {
	Total        decimal.Decimal
	Transactions []truelayer.Transaction
}

// Service fans out per-account fetches and merges the results
type Service struct {
	provider DataProvider
}

// NewService creates a data aggregation service
func NewService(provider DataProvider) *Service {
	return &Service{provider: provider}
}

// Accounts returns all linked accounts
func (s *Service) Accounts(ctx context.Context, accessToken string) ([]truelayer.Account, error) {
	return s.provider.Accounts(ctx, accessToken)
}

// TransactionsForAccount returns the transactions of a single account
func (s *Service) TransactionsForAccount(ctx context.Context, accessToken, accountID string) ([]truelayer.Transaction, error) {
	return s.provider.AccountTransactions(ctx, accessToken, accountID)
}

// AllTransactions fetches every account's transactions in parallel, tags each
// transaction with its source account id and flattens the result into one
// sequence sorted by timestamp descending. Any single fetch failing fails the
// whole aggregation.
func (s *Service) AllTransactions(ctx context.Context, accessToken string) ([]truelayer.Transaction, error) {
	accounts, err := s.provider.Accounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	results := make([][]truelayer.Transaction, len(accounts))
	errs := make([]error, len(accounts))

	var wg sync.WaitGroup
	for i, acc := range accounts {
		wg.Add(1)
		go func(i int, acc truelayer.Account) {
			defer wg.Done()
			txs, err := s.provider.AccountTransactions(ctx, accessToken, acc.AccountID)
			if err != nil {
				errs[i] = err
				return
			}
			for j := range txs {
				txs[j].AccountID = acc.AccountID
			}
			results[i] = txs
		}(i, acc)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	merged := make([]truelayer.Transaction, 0)
	for _, txs := range results {
		merged = append(merged, txs...)
	}

	// Recency ordering is a presentation step, not a fetch guarantee
	sort.Slice(merged, func(a, b int) bool {
		return merged[a].Timestamp.After(merged[b].Timestamp)
	})

	return merged, nil
}

// Balances fetches each account's balance in parallel. A failed balance fetch
// is isolated to its account and surfaces as a nil balance; the total sums
// whatever balances did arrive, preferring available over current.
func (s *Service) Balances(ctx context.Context, accessToken string) (*BalanceSummary, error) {
	accounts, err := s.provider.Accounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	balances := make([]AccountBalance, len(accounts))

	var wg sync.WaitGroup
	for i, acc := range accounts {
		wg.Add(1)
		go func(i int, acc truelayer.Account) {
			defer wg.Done()
			entry := AccountBalance{
				AccountID:     acc.AccountID,
				AccountType:   acc.AccountType,
				Currency:      acc.Currency,
				Name:          acc.DisplayName,
				DisplayName:   acc.DisplayName,
				AccountNumber: acc.AccountNumber,
				Provider:      acc.Provider,
			}
			if balance, err := s.provider.AccountBalance(ctx, accessToken, acc.AccountID); err == nil {
				entry.Balance = balance
			}
			balances[i] = entry
		}(i, acc)
	}
	wg.Wait()

	total := decimal.Zero
	for _, b := range balances {
		if b.Balance == nil {
			continue
		}
		switch {
		case b.Balance.Available != nil:
			total = total.Add(decimal.NewFromFloat(*b.Balance.Available))
		case b.Balance.Current != nil:
			total = total.Add(decimal.NewFromFloat(*b.Balance.Current))
		}
	}

	return &BalanceSummary{Total: total, Balances: balances}, nil
}

// TransactionsByMonth returns all transactions falling in the given month
func (s *Service) TransactionsByMonth(ctx context.Context, accessToken string, year, month int) ([]truelayer.Transaction, error) {
	all, err := s.AllTransactions(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return filterTransactions(all, func(tx truelayer.Transaction) bool {
		return inMonth(tx, year, month)
	}), nil
}

// Income returns all income transactions (amount > 0) with their total
func (s *Service) Income(ctx context.Context, accessToken string) (*IncomeSummary, error) {
	return s.income(ctx, accessToken, func(tx truelayer.Transaction) bool {
		return true
	})
}

// IncomeByYear returns income transactions for one year
func (s *Service) IncomeByYear(ctx context.Context, accessToken string, year int) (*IncomeSummary, error) {
	return s.income(ctx, accessToken, func(tx truelayer.Transaction) bool {
		return tx.Timestamp.Year() == year
	})
}

// IncomeByMonth returns income transactions for one month
func (s *Service) IncomeByMonth(ctx context.Context, accessToken string, year, month int) (*IncomeSummary, error) {
	return s.income(ctx, accessToken, func(tx truelayer.Transaction) bool {
		return inMonth(tx, year, month)
	})
}

func (s *Service) income(ctx context.Context, accessToken string, inPeriod func(truelayer.Transaction) bool) (*IncomeSummary, error) {
	all, err := s.AllTransactions(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	income := filterTransactions(all, func(tx truelayer.Transaction) bool {
		return tx.Amount > 0 && inPeriod(tx)
	})

	total := decimal.Zero
	for _, tx := range income {
		total = total.Add(decimal.NewFromFloat(tx.Amount))
	}

	return &IncomeSummary{Total: total, Transactions: income}, nil
}

func filterTransactions(txs []truelayer.Transaction, keep func(truelayer.Transaction) bool) []truelayer.Transaction {
	out := make([]truelayer.Transaction, 0)
	for _, tx := range txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

func inMonth(tx truelayer.Transaction, year, month int) bool {
	return tx.Timestamp.Year() == year && int(tx.Timestamp.Month()) == month
}
