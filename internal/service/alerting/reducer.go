// Package alerting derives the dashboard's alert feed from live transactions.
package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/values"
)

// Entry is one alert shown to the analyst
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message"`
	Class         Class     `json:"class"`
	TransactionID string    `json:"transaction_id"`
}

// ShouldAlert reports whether e triggers an alert: it was blocked, or its
// risk score is strictly above RiskThreshold.
func ShouldAlert(e transaction.Event) bool {
	return e.Action == transaction.ActionBlock || e.RiskScore > RiskThreshold
}

// ClassOf maps a decision to an alert class
func ClassOf(a transaction.Action) Class {
	switch a {
	case transaction.ActionBlock:
		return ClassBlock
	case transaction.ActionFlag:
		return ClassFlag
	default:
		return ClassOther
	}
}

// FormatMessage renders the alert text, e.g.
// "BLOCK: Transaction TXN_1 - $2500.00 (Risk: 85.0%)".
func FormatMessage(e transaction.Event) string {
	action := strings.ToUpper(e.Action.String())
	if action == "" {
		action = "ALERT"
	}
	return fmt.Sprintf("%s: Transaction %s - $%s (Risk: %.1f%%)",
		action, e.ID, e.Amount.StringFixed(2), e.RiskScore*100)
}

// Reducer keeps the most recent alerts, newest first
type Reducer struct {
	entries *values.Recent[Entry]
	now     func() time.Time
	newID   func() (uuid.UUID, error)
}

// NewReducer creates an empty alert feed
func NewReducer() *Reducer {
	return &Reducer{
		entries: values.NewRecent[Entry](Capacity),
		now:     time.Now,
		newID:   uuid.NewV7,
	}
}

// Apply evaluates e against the alert policy. When it triggers, the new
// entry is prepended and returned; the oldest entries beyond Capacity are
// evicted.
func (r *Reducer) Apply(e transaction.Event) (Entry, bool, error) {
	if !ShouldAlert(e) {
		return Entry{}, false, nil
	}

	// v7 identifiers sort by creation time
	id, err := r.newID()
	if err != nil {
		return Entry{}, false, fmt.Errorf("generating alert id: %w", err)
	}

	entry := Entry{
		ID:            id.String(),
		Timestamp:     r.now().UTC(),
		Message:       FormatMessage(e),
		Class:         ClassOf(e.Action),
		TransactionID: e.ID,
	}
	r.entries.Prepend(entry)
	return entry, true, nil
}

// Dismiss removes the alert with the given id. Other entries keep their
// relative order.
func (r *Reducer) Dismiss(id string) bool {
	return r.entries.Remove(func(e Entry) bool { return e.ID == id }) > 0
}

// Clear dismisses every alert
func (r *Reducer) Clear() {
	r.entries.Clear()
}

// Entries returns a copy of the alerts, newest first
func (r *Reducer) Entries() []Entry {
	return r.entries.Items()
}

func (r *Reducer) Len() int {
	return r.entries.Len()
}
