// Package history keeps the bounded, most-recent-first list of transactions
// shown on the dashboard.
package history

import (
	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/values"
)

// Capacity is the maximum number of transactions kept
const Capacity = 50

// Reducer merges live pushes with full-refresh pulls.
//
// No deduplication happens between ReplaceAll and Prepend: a transaction
// delivered live and then included in a later refresh shows up twice until
// it is pushed out by newer entries.
type Reducer struct {
	records *values.Recent[transaction.Event]
}

// NewReducer creates an empty history
func NewReducer() *Reducer {
	return &Reducer{records: values.NewRecent[transaction.Event](Capacity)}
}

// ReplaceAll replaces the whole list with a full refresh. records must be
// most-recent-first, as the backend returns them. It returns how many
// records were cut off past Capacity.
func (r *Reducer) ReplaceAll(records []transaction.Event) int {
	return r.records.ReplaceAll(records)
}

// Prepend inserts a live event at the front. Entries past Capacity are
// dropped; the returned count is informational, not an error.
func (r *Reducer) Prepend(record transaction.Event) int {
	return r.records.Prepend(record)
}

// Records returns a copy of the current list
func (r *Reducer) Records() []transaction.Event {
	return r.records.Items()
}

func (r *Reducer) Len() int {
	return r.records.Len()
}
