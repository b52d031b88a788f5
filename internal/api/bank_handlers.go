package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pennyflow/backend/internal/bank"
	"github.com/pennyflow/backend/internal/link"
	"github.com/pennyflow/backend/internal/session"
	"github.com/pennyflow/backend/internal/tokens"
	"github.com/pennyflow/backend/internal/truelayer"
)

const linkSessionCookie = "link_session"

// relinkResponse is the uniform payload for any request whose stored
// credentials are missing or no longer refreshable
var relinkResponse = map[string]string{
	"error":      "Authorisation expired. Please re-link your bank account.",
	"relink_url": "/link",
}

// HandleBeginLink starts a new link attempt: fresh PKCE state in the caller's
// session and the aggregator authorization URL in the response
func HandleBeginLink(sessions *session.Store, linker *link.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)

		sess := linkSessionFromRequest(sessions, r)
		if sess == nil {
			var id string
			id, sess = sessions.Create()
			http.SetCookie(w, &http.Cookie{
				Name:     linkSessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		url, err := linker.BeginLink(sess, user.ID)
		if err != nil {
			log.Println("Link: failed to begin link attempt:", err)
			respondError(w, http.StatusInternalServerError, "Failed to start bank linking")
			return
		}

		respondJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

// HandleLinkCallback completes a link attempt from the aggregator's redirect
func HandleLinkCallback(sessions *session.Store, linker *link.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		code := r.URL.Query().Get("code")
		sess := linkSessionFromRequest(sessions, r)

		rec, err := linker.CompleteLink(r.Context(), sess, user.ID, code)
		if err != nil {
			var exchangeErr *link.ExchangeError
			switch {
			case errors.Is(err, link.ErrMissingCode):
				respondError(w, http.StatusBadRequest, "Missing code")
			case errors.Is(err, link.ErrMissingVerifier):
				respondError(w, http.StatusBadRequest, "Missing PKCE code_verifier in session. Please restart the bank linking process.")
			case errors.Is(err, link.ErrCodeAlreadyUsed):
				respondError(w, http.StatusBadRequest, "This authorization code has already been used. Please restart the bank linking process.")
			case errors.As(err, &exchangeErr):
				log.Println("Link: code exchange rejected:", err)
				respondJSON(w, http.StatusBadRequest, map[string]string{
					"error":   "Token exchange failed",
					"details": exchangeErr.Detail,
				})
			default:
				log.Println("Link: callback failed:", err)
				respondError(w, http.StatusInternalServerError, "Failed to complete bank linking")
			}
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tokens":  rec,
		})
	}
}

// withAccessToken resolves a usable bearer token before running the handler.
// Both "never linked" and "refresh failed" collapse to the same 401 relink
// payload; the distinction stays internal.
func withAccessToken(manager *tokens.Manager, next func(w http.ResponseWriter, r *http.Request, accessToken string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)

		accessToken, err := manager.AccessToken(r.Context(), user.ID)
		if err != nil {
			if errors.Is(err, tokens.ErrNotLinked) || errors.Is(err, tokens.ErrReauthRequired) {
				respondJSON(w, http.StatusUnauthorized, relinkResponse)
				return
			}
			log.Println("Banks: failed to obtain access token:", err)
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		next(w, r, accessToken)
	}
}

// HandleAccounts returns all linked bank accounts
func HandleAccounts(manager *tokens.Manager, svc *bank.Service) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		accounts, err := svc.Accounts(r.Context(), accessToken)
		if err != nil {
			log.Println("Banks: accounts fetch failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch accounts")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "Succeeded",
			"results": accounts,
		})
	})
}

// HandleAllTransactions returns all transactions across every linked account,
// sorted by recency
func HandleAllTransactions(manager *tokens.Manager, svc *bank.Service) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		txs, err := svc.AllTransactions(r.Context(), accessToken)
		if err != nil {
			log.Println("Banks: transactions fetch failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch transactions")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "Succeeded",
			"results": txs,
		})
	})
}

// HandleAccountTransactions returns transactions for a single account
func HandleAccountTransactions(manager *tokens.Manager, svc *bank.Service) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		accountID := chi.URLParam(r, "accountID")
		if accountID == "" {
			respondError(w, http.StatusBadRequest, "Account ID is required")
			return
		}

		txs, err := svc.TransactionsForAccount(r.Context(), accessToken, accountID)
		if err != nil {
			log.Println("Banks: account transactions fetch failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch transactions")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "Succeeded",
			"results": txs,
		})
	})
}

// HandleTransactionsByMonth returns all transactions within one month
func HandleTransactionsByMonth(manager *tokens.Manager, svc *bank.Service) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		year, month, ok := yearMonthParams(w, r)
		if !ok {
			return
		}

		txs, err := svc.TransactionsByMonth(r.Context(), accessToken, year, month)
		if err != nil {
			log.Println("Banks: transactions fetch failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch transactions")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "Succeeded",
			"year":    year,
			"month":   month,
			"results": txs,
		})
	})
}

// HandleBalances returns per-account balances with a grand total. An account
// whose balance fetch failed appears with a null balance.
func HandleBalances(manager *tokens.Manager, svc *bank.Service) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		summary, err := svc.Balances(r.Context(), accessToken)
		if err != nil {
			log.Println("Banks: balances fetch failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch balances")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":   "Succeeded",
			"total":    summary.Total.InexactFloat64(),
			"balances": summary.Balances,
		})
	})
}

// HandleIncome returns all income transactions with their total
func HandleIncome(manager *tokens.Manager, svc *bank.Service) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		summary, err := svc.Income(r.Context(), accessToken)
		if err != nil {
			log.Println("Banks: income fetch failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch income")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":             "Succeeded",
			"totalIncome":        summary.Total.InexactFloat64(),
			"incomeTransactions": summary.Transactions,
		})
	})
}

// HandleIncomeByYear returns income transactions for one year
func HandleIncomeByYear(manager *tokens.Manager, svc *bank.Service) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		year, ok := yearParam(w, r)
		if !ok {
			return
		}

		summary, err := svc.IncomeByYear(r.Context(), accessToken, year)
		if err != nil {
			log.Println("Banks: income fetch failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch income")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":             "Succeeded",
			"year":               year,
			"totalIncome":        summary.Total.InexactFloat64(),
			"incomeTransactions": summary.Transactions,
		})
	})
}

// HandleIncomeByMonth returns income transactions for one month
func HandleIncomeByMonth(manager *tokens.Manager, svc *bank.Service) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		year, month, ok := yearMonthParams(w, r)
		if !ok {
			return
		}

		summary, err := svc.IncomeByMonth(r.Context(), accessToken, year, month)
		if err != nil {
			log.Println("Banks: income fetch failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to fetch income")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":             "Succeeded",
			"year":               year,
			"month":              month,
			"totalIncome":        summary.Total.InexactFloat64(),
			"incomeTransactions": summary.Transactions,
		})
	})
}

// ExtendConnectionRequest carries the consent reconfirmation flag
type ExtendConnectionRequest struct {
	UserHasReconfirmedConsent *bool `json:"user_has_reconfirmed_consent"`
}

// HandleExtendConnection forwards a consent reconfirmation to the aggregator.
// An upstream failure propagates the aggregator's status code and body
// verbatim.
func HandleExtendConnection(manager *tokens.Manager, client *truelayer.Client) http.HandlerFunc {
	return withAccessToken(manager, func(w http.ResponseWriter, r *http.Request, accessToken string) {
		var req ExtendConnectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserHasReconfirmedConsent == nil {
			respondError(w, http.StatusBadRequest, "user_has_reconfirmed_consent must be boolean")
			return
		}

		status, body, err := client.ExtendConnection(r.Context(), accessToken, *req.UserHasReconfirmedConsent)
		if err != nil {
			log.Println("Banks: extend connection failed:", err)
			respondError(w, http.StatusInternalServerError, "Failed to extend connection")
			return
		}

		if status < 200 || status >= 300 {
			respondJSON(w, status, map[string]any{"error": upstreamBody(body)})
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"status": "Succeeded",
			"result": upstreamBody(body),
		})
	})
}

// upstreamBody keeps JSON bodies as-is and falls back to a plain string for
// anything else, so the forwarded payload always encodes cleanly
func upstreamBody(body []byte) any {
	if json.Valid(body) && len(body) > 0 {
		return json.RawMessage(body)
	}
	return string(body)
}

func linkSessionFromRequest(sessions *session.Store, r *http.Request) *session.LinkSession {
	cookie, err := r.Cookie(linkSessionCookie)
	if err != nil {
		return nil
	}
	return sessions.Get(cookie.Value)
}

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1900 || year > 2100 {
		respondError(w, http.StatusBadRequest, "Year must be a valid integer")
		return 0, false
	}
	return year, true
}

func yearMonthParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	year, ok := yearParam(w, r)
	if !ok {
		return 0, 0, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		respondError(w, http.StatusBadRequest, "Month must be between 1 and 12")
		return 0, 0, false
	}
	return year, month, true
}
