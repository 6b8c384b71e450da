package http

import (
	"net/http"
	"strings"
	"time"
)

// handleAccountBalance returns the cached balance, or the balance replayed
// from the versions valid at as_of when one is given.
func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	var (
		balance int64
		asOf    *time.Time
		err     error
	)
	if strings.TrimSpace(r.URL.Query().Get("as_of")) == "" {
		balance, err = s.ledger.AccountBalance(r.Context(), accountID)
	} else {
		var ts time.Time
		if ts, err = ParseAsOf(r, s.clock.Now()); err != nil {
			respondError(w, r, err)
			return
		}
		asOf = &ts
		balance, err = s.ledger.AccountBalanceAsOf(r.Context(), accountID, ts)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	NewJSONResponse().Body(balanceResponse{
		AccountID:    accountID,
		BalanceMinor: balance,
		AsOf:         asOf,
	}).Write(w)
}

func (s *Server) handleCategoryMonth(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonth(r.PathValue("month"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	state, err := s.ledger.CategoryMonthlyState(r.Context(), r.PathValue("id"), month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	// A month nobody touched has no row yet; report it under the request.
	if state.CategoryID == "" {
		state.CategoryID = r.PathValue("id")
	}
	if state.Month.IsZero() {
		state.Month = month
	}
	NewJSONResponse().Body(newMonthlyStateResponse(state)).Write(w)
}

func (s *Server) handleBudgetMonth(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonth(r.PathValue("month"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	summary, err := s.ledger.BudgetMonth(r.Context(), month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newBudgetResponse(summary)).Write(w)
}

func (s *Server) handleReadyToAssign(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonth(r.PathValue("month"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	rta, err := s.ledger.ReadyToAssign(r.Context(), month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(readyToAssignResponse{
		Month:              month.String(),
		ReadyToAssignMinor: rta,
	}).Write(w)
}
