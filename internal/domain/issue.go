package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by lookup sources when no record exists for a key.
	ErrNotFound = errors.New("not found")
	// ErrMalformedPayload marks a lookup payload that could not be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
)

// IssueKind classifies a problem encountered during a run.
type IssueKind string

const (
	KindLookupMiss          IssueKind = "lookup_miss"
	KindMalformedPayload    IssueKind = "malformed_payload"
	KindInvalidSalesRow     IssueKind = "invalid_sales_row"
	KindDataIntegrity       IssueKind = "data_integrity"
	KindResolutionFailure   IssueKind = "resolution_failure"
	KindResolutionAmbiguous IssueKind = "resolution_ambiguous"
	KindOrphanReference     IssueKind = "orphan_reference"
	KindStoreError          IssueKind = "store_error"
	KindPublishFailed       IssueKind = "publish_failed"
)

// Severity is either "warning" or "error".
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one actionable entry of a run report.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Table  string    `json:"table,omitempty"`
	Key    string    `json:"key,omitempty"`
	Reason string    `json:"reason"`
}

// Severity reports whether the issue degraded the run (warning) or dropped an
// entity collection or table (error).
func (i Issue) Severity() Severity {
	switch i.Kind {
	case KindDataIntegrity, KindStoreError:
		return SeverityError
	default:
		return SeverityWarning
	}
}

func (i Issue) String() string {
	s := string(i.Kind)
	if i.Table != "" {
		s += " table=" + i.Table
	}
	if i.Key != "" {
		s += " key=" + i.Key
	}
	return s + ": " + i.Reason
}

// DataIntegrityError reports an entity collection that violates its
// uniqueness invariant, e.g. one order_id carrying two different orders.
type DataIntegrityError struct {
	Table     string
	Key       string
	Conflicts []string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s %s has conflicting rows: %v", e.Table, e.Key, e.Conflicts)
}

// Issue converts the error into a report entry.
func (e *DataIntegrityError) Issue() Issue {
	return Issue{
		Kind:   KindDataIntegrity,
		Table:  e.Table,
		Key:    e.Key,
		Reason: fmt.Sprintf("conflicting rows: %v", e.Conflicts),
	}
}
