// Package observability carries the engine's advisory signals and
// cross-request access statistics. Advisories are side effects for
// operators, never part of the data contract.
package observability

import (
	"log"
	"time"
)

// RequestSummary is the traffic summary of one read request.
type RequestSummary struct {
	// RequestID identifies the request across log lines.
	RequestID string
	// Pages, Items, ScannedCount, Queries, Retries mirror the
	// executor's counters.
	Pages        int64
	Items        int64
	ScannedCount int64
	Queries      int64
	Retries      int64
	// Rows is the number of rows yielded to the host after local
	// filtering.
	Rows int64
	// Duration is wall time from plan to completion.
	Duration time.Duration
}

// Notifier receives the engine's advisory signals.
type Notifier interface {
	// ScanSelected fires when a plan falls back to a full scan.
	ScanSelected(table string, segments int)

	// RequestCompleted fires once per read request, including requests
	// the consumer abandoned early.
	RequestCompleted(table string, summary RequestSummary)

	// WriteReplayFailed fires when a commit-time drain could not apply
	// every buffered write.
	WriteReplayFailed(txn string, failed, total int)
}

// LogNotifier writes advisories to the standard logger.
type LogNotifier struct{}

func (LogNotifier) ScanSelected(table string, segments int) {
	log.Printf("Warning: table %s: full scan selected (%d segments); this can be costly and time-consuming, use a partition key predicate if possible", table, segments)
}

func (LogNotifier) RequestCompleted(table string, s RequestSummary) {
	log.Printf("table %s: request %s complete: %d pages, %d items, %d scanned, %d rows returned, %d queries, %d retries in %s",
		table, s.RequestID, s.Pages, s.Items, s.ScannedCount, s.Rows, s.Queries, s.Retries, s.Duration)
}

func (LogNotifier) WriteReplayFailed(txn string, failed, total int) {
	log.Printf("Warning: transaction %s: %d of %d buffered writes failed during commit replay", txn, failed, total)
}

// NopNotifier discards every advisory.
type NopNotifier struct{}

func (NopNotifier) ScanSelected(string, int)                {}
func (NopNotifier) RequestCompleted(string, RequestSummary) {}
func (NopNotifier) WriteReplayFailed(string, int, int)      {}
