package models

import "time"

// PassReport counts what happened to the items of one direction in a tick.
type PassReport struct {
	Direction string `json:"direction"`
	Pending   int64  `json:"pending"`
	Processed int    `json:"processed"`
	Retried   int    `json:"retried"`
	Exhausted int    `json:"exhausted"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// TickReport is returned by a manual or scheduled synchronization tick.
type TickReport struct {
	TenantID         int64          `json:"tenant_id"`
	StartedAt        time.Time      `json:"started_at"`
	Duration         time.Duration  `json:"duration"`
	Passes           []PassReport   `json:"passes"`
	RetentionDeleted map[Side]int64 `json:"retention_deleted"`
}

// Totals sums the per-pass counters.
func (r TickReport) Totals() PassReport {
	var total PassReport
	for _, p := range r.Passes {
		total.Pending += p.Pending
		total.Processed += p.Processed
		total.Retried += p.Retried
		total.Exhausted += p.Exhausted
		total.Skipped += p.Skipped
	}
	return total
}

// DeadLetter is the record kept for a queue item that ran out of retries.
type DeadLetter struct {
	ItemID     string    `json:"item_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	TenantID   int64     `json:"tenant_id"`
	ChangeKind string    `json:"change_kind"`
	Direction  string    `json:"direction"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}
