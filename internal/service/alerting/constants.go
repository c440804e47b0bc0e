package alerting

// Capacity is the maximum number of alerts retained
const Capacity = 20

// RiskThreshold is the risk score above which any transaction raises an alert
const RiskThreshold = 0.7

// Class groups alerts for display
type Class string

const (
	ClassBlock Class = "block"
	ClassFlag  Class = "flag"
	ClassOther Class = "other"
)
