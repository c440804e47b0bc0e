package transaction

// Stats are the backend's aggregate transaction counters
type Stats struct {
	Total   int64 `json:"total_transactions"`
	Flagged int64 `json:"flagged_transactions"`
	Blocked int64 `json:"blocked_transactions"`
}

// FraudRate returns (flagged + blocked) / total as a percentage, or 0 when
// there are no transactions.
func (s Stats) FraudRate() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Flagged+s.Blocked) / float64(s.Total) * 100
}

// Approved returns the transactions that were neither flagged nor blocked
func (s Stats) Approved() int64 {
	approved := s.Total - s.Flagged - s.Blocked
	if approved < 0 {
		return 0
	}
	return approved
}

// DashboardData is the full snapshot served by the dashboard endpoint
type DashboardData struct {
	RecentTransactions []Event `json:"recent_transactions"`
	Stats              Stats   `json:"fraud_stats"`
}
