package http

import (
	"errors"
	"net/http"

	"github.com/blogle/dojo-sub001/internal/core"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Accounts(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, newAccountResponse(a))
	}
	NewJSONResponse().Body(map[string]any{"accounts": resp}).Write(w)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	account, err := s.ledger.CreateAccount(r.Context(), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newAccountResponse(account)).Write(w)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	account, err := s.ledger.UpdateAccount(r.Context(), r.PathValue("id"), core.AccountUpdatePayload{
		Name: sanitizeInput(req.Name),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newAccountResponse(account)).Write(w)
}

func (s *Server) handleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeactivateAccount(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconciliationRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	rec, err := s.ledger.Reconcile(r.Context(), r.PathValue("id"), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newReconciliationResponse(rec)).Write(w)
}

// handleLatestReconciliation answers 204 for an account never reconciled.
func (s *Server) handleLatestReconciliation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.LatestReconciliation(r.Context(), r.PathValue("id"))
	if errors.Is(err, core.ErrNoReconciliation) {
		NewJSONResponse().Status(http.StatusNoContent).Write(w)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newReconciliationResponse(rec)).Write(w)
}

func (s *Server) handleReconciliationWorksheet(w http.ResponseWriter, r *http.Request) {
	ws, err := s.ledger.ReconciliationWorksheet(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newWorksheetResponse(ws)).Write(w)
}

func (s *Server) handleListCategoryGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.ledger.CategoryGroups(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]categoryGroupResponse, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, newCategoryGroupResponse(g))
	}
	NewJSONResponse().Body(map[string]any{"category_groups": resp}).Write(w)
}

func (s *Server) handleCreateCategoryGroup(w http.ResponseWriter, r *http.Request) {
	var req categoryGroupRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	group, err := s.ledger.CreateCategoryGroup(r.Context(), core.CategoryGroupPayload{
		GroupID:   sanitizeInput(req.GroupID),
		Name:      sanitizeInput(req.Name),
		SortOrder: req.SortOrder,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newCategoryGroupResponse(group)).Write(w)
}

func (s *Server) handleUpdateCategoryGroup(w http.ResponseWriter, r *http.Request) {
	var req categoryGroupUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	group, err := s.ledger.UpdateCategoryGroup(r.Context(), r.PathValue("id"), core.CategoryGroupUpdatePayload{
		Name:      sanitizeInput(req.Name),
		SortOrder: req.SortOrder,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newCategoryGroupResponse(group)).Write(w)
}

func (s *Server) handleDeactivateCategoryGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeactivateCategoryGroup(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.ledger.Categories(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, newCategoryResponse(c))
	}
	NewJSONResponse().Body(map[string]any{"categories": resp}).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	category, err := s.ledger.CreateCategory(r.Context(), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newCategoryResponse(category)).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryUpdateRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	category, err := s.ledger.UpdateCategory(r.Context(), r.PathValue("id"), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newCategoryResponse(category)).Write(w)
}

func (s *Server) handleDeactivateCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeactivateCategory(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
