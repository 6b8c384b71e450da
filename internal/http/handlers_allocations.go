package http

import (
	"net/http"
	"strings"

	"github.com/blogle/dojo-sub001/internal/core"
)

func (s *Server) handleCreateAllocation(w http.ResponseWriter, r *http.Request) {
	var req allocationRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.ledger.CreateAllocation(r.Context(), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/v1/allocations/"+view.ConceptID.String()).
		Body(newAllocationResponse(view)).
		Write(w)
}

func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
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

	version, err := s.ledger.AllocationAsOf(r.Context(), conceptID, asOf)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newAllocationVersionResponse(version)).Write(w)
}

func (s *Server) handleEditAllocation(w http.ResponseWriter, r *http.Request) {
	conceptID, err := PathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req allocationRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.ledger.EditAllocation(r.Context(), conceptID, payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Body(newAllocationResponse(view)).Write(w)
}

func (s *Server) handleDeleteAllocation(w http.ResponseWriter, r *http.Request) {
	conceptID, err := PathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.ledger.DeleteAllocation(r.Context(), conceptID); err != nil {
		respondError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleListAllocations returns the active allocations dated in the month
// query parameter, the current month by default.
func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	month := core.DateOf(s.clock.Now()).MonthStart()
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		var err error
		if month, err = ParseMonth(raw); err != nil {
			respondError(w, r, err)
			return
		}
	}
	limit, err := ParseLimit(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	versions, err := s.ledger.AllocationsForMonth(r.Context(), month, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := make([]allocationResponse, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, newAllocationVersionResponse(v))
	}
	NewJSONResponse().Body(map[string]any{
		"month":       month.String(),
		"allocations": resp,
	}).Write(w)
}
