package http

import (
	"net/http"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.ledger.CreateTransaction(r.Context(), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/v1/transactions/"+view.ConceptID.String()).
		Body(newTransactionResponse(view)).
		Write(w)
}

// handleGetTransaction returns the version valid at as_of, the current one by
// default.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	conceptID, err := PathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	asOf, err := ParseAsOf(r, s.clock.Now())
	if err != nil {
		respondError(w, r, err)
		return
	}

	version, err := s.ledger.TransactionAsOf(r.Context(), conceptID, asOf)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newTransactionVersionResponse(version)).Write(w)
}

func (s *Server) handleTransactionHistory(w http.ResponseWriter, r *http.Request) {
	conceptID, err := PathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	versions, err := s.ledger.TransactionHistory(r.Context(), conceptID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"concept_id": conceptID.String(),
		"versions":   newTransactionVersionResponses(versions),
	}).Write(w)
}

// handleListTransactions returns the active transactions, latest dated first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	versions, err := s.ledger.RecentTransactions(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"transactions": newTransactionVersionResponses(versions),
	}).Write(w)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	conceptID, err := PathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req transactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.ledger.EditTransaction(r.Context(), conceptID, payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newTransactionResponse(view)).Write(w)
}

// handleDeleteTransaction closes the concept. Deleting a transfer leg
// deletes the whole transfer.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	conceptID, err := PathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), conceptID); err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.ledger.CreateTransfer(r.Context(), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newTransferResponse(view)).Write(w)
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	transferID, err := PathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransfer(r.Context(), transferID); err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
