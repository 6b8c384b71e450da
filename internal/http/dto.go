package http

import (
	"time"

	"github.com/blogle/dojo-sub001/internal/core"
)

// Request bodies. Dates travel as YYYY-MM-DD strings and amounts as signed
// minor units.

type transactionRequest struct {
	TransactionDate string `json:"transaction_date"`
	AccountID       string `json:"account_id"`
	CategoryID      string `json:"category_id"`
	AmountMinor     int64  `json:"amount_minor"`
	Memo            string `json:"memo"`
	Status          string `json:"status"`
}

func (req transactionRequest) payload() (core.TransactionPayload, error) {
	date, err := ParseDate("transaction_date", req.TransactionDate)
	if err != nil {
		return core.TransactionPayload{}, err
	}
	return core.TransactionPayload{
		TransactionDate: date,
		AccountID:       sanitizeInput(req.AccountID),
		CategoryID:      sanitizeInput(req.CategoryID),
		AmountMinor:     req.AmountMinor,
		Memo:            sanitizeInput(req.Memo),
		Status:          core.TransactionStatus(sanitizeInput(req.Status)),
	}, nil
}

type transferRequest struct {
	SourceAccountID      string `json:"source_account_id"`
	DestinationAccountID string `json:"destination_account_id"`
	CategoryID           string `json:"category_id"`
	AmountMinor          int64  `json:"amount_minor"`
	TransactionDate      string `json:"transaction_date"`
	Memo                 string `json:"memo"`
}

func (req transferRequest) payload() (core.TransferPayload, error) {
	date, err := ParseDate("transaction_date", req.TransactionDate)
	if err != nil {
		return core.TransferPayload{}, err
	}
	return core.TransferPayload{
		SourceAccountID:      sanitizeInput(req.SourceAccountID),
		DestinationAccountID: sanitizeInput(req.DestinationAccountID),
		CategoryID:           sanitizeInput(req.CategoryID),
		AmountMinor:          req.AmountMinor,
		TransactionDate:      date,
		Memo:                 sanitizeInput(req.Memo),
	}, nil
}

type allocationRequest struct {
	FromCategoryID string `json:"from_category_id"`
	ToCategoryID   string `json:"to_category_id"`
	AmountMinor    int64  `json:"amount_minor"`
	AllocationDate string `json:"allocation_date"`
	Memo           string `json:"memo"`
}

func (req allocationRequest) payload() (core.AllocationPayload, error) {
	date, err := ParseDate("allocation_date", req.AllocationDate)
	if err != nil {
		return core.AllocationPayload{}, err
	}
	return core.AllocationPayload{
		FromCategoryID: sanitizeInput(req.FromCategoryID),
		ToCategoryID:   sanitizeInput(req.ToCategoryID),
		AmountMinor:    req.AmountMinor,
		AllocationDate: date,
		Memo:           sanitizeInput(req.Memo),
	}, nil
}

type accountRequest struct {
	AccountID           string `json:"account_id"`
	Name                string `json:"name"`
	Type                string `json:"type"`
	Class               string `json:"class"`
	Role                string `json:"role"`
	Currency            string `json:"currency"`
	OpeningBalanceMinor int64  `json:"opening_balance_minor"`
	OpenedOn            string `json:"opened_on"`
}

func (req accountRequest) payload() (core.AccountPayload, error) {
	openedOn, err := ParseDate("opened_on", req.OpenedOn)
	if err != nil {
		return core.AccountPayload{}, err
	}
	return core.AccountPayload{
		AccountID:           sanitizeInput(req.AccountID),
		Name:                sanitizeInput(req.Name),
		Type:                core.AccountType(sanitizeInput(req.Type)),
		Class:               core.AccountClass(sanitizeInput(req.Class)),
		Role:                core.AccountRole(sanitizeInput(req.Role)),
		Currency:            sanitizeInput(req.Currency),
		OpeningBalanceMinor: req.OpeningBalanceMinor,
		OpenedOn:            openedOn,
	}, nil
}

type categoryGroupRequest struct {
	GroupID   string `json:"group_id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

type categoryRequest struct {
	CategoryID string       `json:"category_id"`
	GroupID    string       `json:"group_id"`
	Name       string       `json:"name"`
	SortOrder  int          `json:"sort_order"`
	Goal       *goalRequest `json:"goal,omitempty"`
}

func (req categoryRequest) payload() (core.CategoryPayload, error) {
	goal, err := req.Goal.goal()
	if err != nil {
		return core.CategoryPayload{}, err
	}
	return core.CategoryPayload{
		CategoryID: sanitizeInput(req.CategoryID),
		GroupID:    sanitizeInput(req.GroupID),
		Name:       sanitizeInput(req.Name),
		SortOrder:  req.SortOrder,
		Goal:       goal,
	}, nil
}

// categoryUpdateRequest replaces every mutable field; omitting goal clears it.
type categoryUpdateRequest struct {
	GroupID   string       `json:"group_id"`
	Name      string       `json:"name"`
	SortOrder int          `json:"sort_order"`
	Goal      *goalRequest `json:"goal,omitempty"`
}

func (req categoryUpdateRequest) payload() (core.CategoryUpdatePayload, error) {
	goal, err := req.Goal.goal()
	if err != nil {
		return core.CategoryUpdatePayload{}, err
	}
	return core.CategoryUpdatePayload{
		GroupID:   sanitizeInput(req.GroupID),
		Name:      sanitizeInput(req.Name),
		SortOrder: req.SortOrder,
		Goal:      goal,
	}, nil
}

type goalRequest struct {
	Type        string `json:"type"`
	AmountMinor int64  `json:"amount_minor"`
	TargetDate  string `json:"target_date"`
	Frequency   string `json:"frequency"`
}

func (req *goalRequest) goal() (*core.Goal, error) {
	if req == nil {
		return nil, nil
	}
	target, err := ParseDate("target_date", req.TargetDate)
	if err != nil {
		return nil, err
	}
	return &core.Goal{
		Type:        core.GoalType(sanitizeInput(req.Type)),
		AmountMinor: req.AmountMinor,
		TargetDate:  target,
		Frequency:   core.GoalFrequency(sanitizeInput(req.Frequency)),
	}, nil
}

type accountUpdateRequest struct {
	Name string `json:"name"`
}

type categoryGroupUpdateRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

type reconciliationRequest struct {
	StatementDate              string `json:"statement_date"`
	StatementBalanceMinor      int64  `json:"statement_balance_minor"`
	StatementPendingTotalMinor int64  `json:"statement_pending_total_minor"`
}

func (req reconciliationRequest) payload() (core.ReconciliationPayload, error) {
	date, err := ParseDate("statement_date", req.StatementDate)
	if err != nil {
		return core.ReconciliationPayload{}, err
	}
	return core.ReconciliationPayload{
		StatementDate:              date,
		StatementBalanceMinor:      req.StatementBalanceMinor,
		StatementPendingTotalMinor: req.StatementPendingTotalMinor,
	}, nil
}

// Response bodies.

type transactionResponse struct {
	ConceptID           string     `json:"concept_id"`
	VersionID           string     `json:"version_id"`
	TransferID          string     `json:"transfer_id,omitempty"`
	TransactionDate     string     `json:"transaction_date"`
	AccountID           string     `json:"account_id"`
	CategoryID          string     `json:"category_id"`
	AmountMinor         int64      `json:"amount_minor"`
	Memo                string     `json:"memo,omitempty"`
	Status              string     `json:"status"`
	ValidFrom           time.Time  `json:"valid_from"`
	ValidTo             *time.Time `json:"valid_to,omitempty"`
	RecordedAt          time.Time  `json:"recorded_at"`
	AccountBalanceMinor *int64     `json:"account_balance_minor,omitempty"`
}

func newTransactionResponse(v core.TransactionView) transactionResponse {
	balance := v.AccountBalanceMinor
	resp := transactionResponse{
		ConceptID:           v.ConceptID.String(),
		VersionID:           v.VersionID.String(),
		TransactionDate:     v.TransactionDate.String(),
		AccountID:           v.AccountID,
		CategoryID:          v.CategoryID,
		AmountMinor:         v.AmountMinor,
		Memo:                v.Memo,
		Status:              string(v.Status),
		ValidFrom:           v.ValidFrom,
		RecordedAt:          v.RecordedAt,
		AccountBalanceMinor: &balance,
	}
	if v.TransferID.Valid {
		resp.TransferID = v.TransferID.UUID.String()
	}
	return resp
}

func newTransactionVersionResponse(v core.TransactionVersion) transactionResponse {
	resp := newTransactionResponse(core.NewTransactionView(v, 0))
	resp.AccountBalanceMinor = nil
	resp.ValidTo = v.ValidTo
	return resp
}

type transferResponse struct {
	TransferID  string              `json:"transfer_id"`
	Source      transactionResponse `json:"source"`
	Destination transactionResponse `json:"destination"`
}

func newTransferResponse(v core.TransferView) transferResponse {
	return transferResponse{
		TransferID:  v.TransferID.String(),
		Source:      newTransactionResponse(v.Source),
		Destination: newTransactionResponse(v.Destination),
	}
}

type allocationResponse struct {
	ConceptID          string     `json:"concept_id"`
	VersionID          string     `json:"version_id"`
	AllocationDate     string     `json:"allocation_date"`
	FromCategoryID     string     `json:"from_category_id,omitempty"`
	ToCategoryID       string     `json:"to_category_id"`
	AmountMinor        int64      `json:"amount_minor"`
	Memo               string     `json:"memo,omitempty"`
	ValidFrom          time.Time  `json:"valid_from"`
	ValidTo            *time.Time `json:"valid_to,omitempty"`
	ReadyToAssignMinor *int64     `json:"ready_to_assign_minor,omitempty"`
}

func newAllocationResponse(v core.AllocationView) allocationResponse {
	rta := v.ReadyToAssignMinor
	return allocationResponse{
		ConceptID:          v.ConceptID.String(),
		VersionID:          v.VersionID.String(),
		AllocationDate:     v.AllocationDate.String(),
		FromCategoryID:     v.FromCategoryID,
		ToCategoryID:       v.ToCategoryID,
		AmountMinor:        v.AmountMinor,
		Memo:               v.Memo,
		ValidFrom:          v.ValidFrom,
		ReadyToAssignMinor: &rta,
	}
}

func newAllocationVersionResponse(v core.AllocationVersion) allocationResponse {
	resp := newAllocationResponse(core.NewAllocationView(v, 0))
	resp.ReadyToAssignMinor = nil
	resp.ValidTo = v.ValidTo
	return resp
}

type accountResponse struct {
	AccountID    string `json:"account_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Class        string `json:"class"`
	Role         string `json:"role"`
	Currency     string `json:"currency"`
	BalanceMinor int64  `json:"balance_minor"`
	IsActive     bool   `json:"is_active"`
	OpenedOn     string `json:"opened_on"`
}

func newAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		AccountID:    a.ID,
		Name:         a.Name,
		Type:         string(a.Type),
		Class:        string(a.Class),
		Role:         string(a.Role),
		Currency:     a.Currency,
		BalanceMinor: a.BalanceMinor,
		IsActive:     a.IsActive,
		OpenedOn:     a.OpenedOn.String(),
	}
}

type categoryGroupResponse struct {
	GroupID   string `json:"group_id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	IsSystem  bool   `json:"is_system,omitempty"`
	IsActive  bool   `json:"is_active"`
}

func newCategoryGroupResponse(g core.CategoryGroup) categoryGroupResponse {
	return categoryGroupResponse{
		GroupID:   g.ID,
		Name:      g.Name,
		SortOrder: g.SortOrder,
		IsSystem:  g.IsSystem,
		IsActive:  g.IsActive,
	}
}

type goalResponse struct {
	Type        string `json:"type"`
	AmountMinor int64  `json:"amount_minor"`
	TargetDate  string `json:"target_date,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
}

func newGoalResponse(g *core.Goal) *goalResponse {
	if g == nil {
		return nil
	}
	resp := &goalResponse{
		Type:        string(g.Type),
		AmountMinor: g.AmountMinor,
		Frequency:   string(g.Frequency),
	}
	if !g.TargetDate.IsZero() {
		resp.TargetDate = g.TargetDate.String()
	}
	return resp
}

type categoryResponse struct {
	CategoryID       string        `json:"category_id"`
	GroupID          string        `json:"group_id,omitempty"`
	Name             string        `json:"name"`
	PaymentAccountID string        `json:"payment_account_id,omitempty"`
	SortOrder        int           `json:"sort_order"`
	IsSystem         bool          `json:"is_system,omitempty"`
	IsActive         bool          `json:"is_active"`
	Goal             *goalResponse `json:"goal,omitempty"`
}

func newCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{
		CategoryID:       c.ID,
		GroupID:          c.GroupID,
		Name:             c.Name,
		PaymentAccountID: c.PaymentAccountID,
		SortOrder:        c.SortOrder,
		IsSystem:         c.IsSystem,
		IsActive:         c.IsActive,
		Goal:             newGoalResponse(c.Goal),
	}
}

type monthlyStateResponse struct {
	CategoryID              string `json:"category_id"`
	Month                   string `json:"month"`
	LastMonthAvailableMinor int64  `json:"last_month_available_minor"`
	AllocatedMinor          int64  `json:"allocated_minor"`
	InflowMinor             int64  `json:"inflow_minor"`
	ActivityMinor           int64  `json:"activity_minor"`
	AvailableMinor          int64  `json:"available_minor"`
}

func newMonthlyStateResponse(st core.MonthlyState) monthlyStateResponse {
	return monthlyStateResponse{
		CategoryID:              st.CategoryID,
		Month:                   st.Month.String(),
		LastMonthAvailableMinor: st.LastMonthAvailableMinor,
		AllocatedMinor:          st.AllocatedMinor,
		InflowMinor:             st.InflowMinor,
		ActivityMinor:           st.ActivityMinor,
		AvailableMinor:          st.AvailableMinor,
	}
}

type goalProgressResponse struct {
	MonthlyTargetMinor int64 `json:"monthly_target_minor"`
	NeededMinor        int64 `json:"needed_minor"`
}

type budgetCategoryResponse struct {
	Category categoryResponse      `json:"category"`
	State    monthlyStateResponse  `json:"state"`
	Goal     *goalProgressResponse `json:"goal_progress,omitempty"`
}

type budgetResponse struct {
	Month              string                   `json:"month"`
	ReadyToAssignMinor int64                    `json:"ready_to_assign_minor"`
	AllocatedMinor     int64                    `json:"allocated_minor"`
	ActivityMinor      int64                    `json:"activity_minor"`
	AvailableMinor     int64                    `json:"available_minor"`
	UnderfundedMinor   int64                    `json:"underfunded_minor"`
	Categories         []budgetCategoryResponse `json:"categories"`
}

func newBudgetResponse(s core.MonthSummary) budgetResponse {
	resp := budgetResponse{
		Month:              s.Month.String(),
		ReadyToAssignMinor: s.ReadyToAssignMinor,
		AllocatedMinor:     s.AllocatedMinor,
		ActivityMinor:      s.ActivityMinor,
		AvailableMinor:     s.AvailableMinor,
		UnderfundedMinor:   s.UnderfundedMinor,
		Categories:         make([]budgetCategoryResponse, 0, len(s.Categories)),
	}
	for _, row := range s.Categories {
		state := row.State
		if state.CategoryID == "" {
			state.CategoryID = row.Category.ID
		}
		if state.Month.IsZero() {
			state.Month = s.Month
		}
		item := budgetCategoryResponse{
			Category: newCategoryResponse(row.Category),
			State:    newMonthlyStateResponse(state),
		}
		if row.Goal != nil {
			item.Goal = &goalProgressResponse{
				MonthlyTargetMinor: row.Goal.MonthlyTargetMinor,
				NeededMinor:        row.Goal.NeededMinor,
			}
		}
		resp.Categories = append(resp.Categories, item)
	}
	return resp
}

type balanceResponse struct {
	AccountID    string     `json:"account_id"`
	BalanceMinor int64      `json:"balance_minor"`
	AsOf         *time.Time `json:"as_of,omitempty"`
}

type readyToAssignResponse struct {
	Month              string `json:"month"`
	ReadyToAssignMinor int64  `json:"ready_to_assign_minor"`
}

type reconciliationResponse struct {
	ReconciliationID           string    `json:"reconciliation_id"`
	AccountID                  string    `json:"account_id"`
	CreatedAt                  time.Time `json:"created_at"`
	StatementDate              string    `json:"statement_date"`
	StatementBalanceMinor      int64     `json:"statement_balance_minor"`
	StatementPendingTotalMinor int64     `json:"statement_pending_total_minor"`
	ClearedBalanceMinor        int64     `json:"cleared_balance_minor"`
	DifferenceMinor            int64     `json:"difference_minor"`
	PreviousReconciliationID   string    `json:"previous_reconciliation_id,omitempty"`
}

func newReconciliationResponse(rec core.Reconciliation) reconciliationResponse {
	resp := reconciliationResponse{
		ReconciliationID:           rec.ID.String(),
		AccountID:                  rec.AccountID,
		CreatedAt:                  rec.CreatedAt,
		StatementDate:              rec.StatementDate.String(),
		StatementBalanceMinor:      rec.StatementBalanceMinor,
		StatementPendingTotalMinor: rec.StatementPendingTotalMinor,
		ClearedBalanceMinor:        rec.ClearedBalanceMinor,
		DifferenceMinor:            rec.DifferenceMinor(),
	}
	if rec.PreviousID.Valid {
		resp.PreviousReconciliationID = rec.PreviousID.UUID.String()
	}
	return resp
}

type worksheetResponse struct {
	AccountID           string                  `json:"account_id"`
	Since               time.Time               `json:"since"`
	Latest              *reconciliationResponse `json:"latest,omitempty"`
	ClearedBalanceMinor int64                   `json:"cleared_balance_minor"`
	PendingBalanceMinor int64                   `json:"pending_balance_minor"`
	Transactions        []transactionResponse   `json:"transactions"`
}

func newWorksheetResponse(ws core.Worksheet) worksheetResponse {
	resp := worksheetResponse{
		AccountID:           ws.AccountID,
		Since:               ws.Since,
		ClearedBalanceMinor: ws.ClearedBalanceMinor,
		PendingBalanceMinor: ws.PendingBalanceMinor,
		Transactions:        newTransactionVersionResponses(ws.Transactions),
	}
	if ws.Latest != nil {
		latest := newReconciliationResponse(*ws.Latest)
		resp.Latest = &latest
	}
	return resp
}

func newTransactionVersionResponses(versions []core.TransactionVersion) []transactionResponse {
	resp := make([]transactionResponse, 0, len(versions))
	for _, v := range versions {
		resp = append(resp, newTransactionVersionResponse(v))
	}
	return resp
}
