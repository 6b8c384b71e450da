package core

// CategoryMonth pairs a visible envelope category with its state for a month.
// Goal is nil when the category has no goal.
type CategoryMonth struct {
	Category Category
	State    MonthlyState
	Goal     *GoalProgress
}

// MonthSummary is the budget view of one month: every visible envelope
// plus the Ready to Assign pool.
type MonthSummary struct {
	Month              Date
	ReadyToAssignMinor int64
	AllocatedMinor     int64
	ActivityMinor      int64
	AvailableMinor     int64
	// UnderfundedMinor sums what the month still needs to meet every goal.
	UnderfundedMinor int64
	Categories       []CategoryMonth
}

// Add appends a category and folds its figures into the totals.
func (s *MonthSummary) Add(c Category, st MonthlyState) {
	cm := CategoryMonth{Category: c, State: st}
	if c.Goal != nil {
		p := c.Goal.Progress(s.Month, st)
		cm.Goal = &p
		s.UnderfundedMinor += p.NeededMinor
	}
	s.Categories = append(s.Categories, cm)
	s.AllocatedMinor += st.AllocatedMinor
	s.ActivityMinor += st.ActivityMinor
	s.AvailableMinor += st.AvailableMinor
}
