// Package businessflow contains the notification dispatch pipeline: policy
// evaluation, duplicate classification, circuit breaking, and the dispatch
// state machine that ties them to the ledger and the transport.
package businessflow

import "errors"

var (
	// ErrCustomerSuspended means the circuit breaker has the customer's number
	// suspended after repeated transport failures. No ledger row is written.
	ErrCustomerSuspended = errors.New("customer is temporarily suspended after repeated send failures")

	// ErrInvalidCandidate means the candidate failed validation before any
	// classification or sending happened.
	ErrInvalidCandidate = errors.New("candidate is missing required fields")

	// ErrReminderSequenceMissing means a reminder-class candidate arrived
	// without an assigned sequence number.
	ErrReminderSequenceMissing = errors.New("reminder candidate has no sequence number")

	// ErrReminderSequenceStale means the candidate's sequence number no longer
	// follows the last issued one, usually because another cycle already sent
	// this reminder.
	ErrReminderSequenceStale = errors.New("reminder sequence does not follow the last issued sequence")

	// ErrTransportNotConnected means the messaging session is not logged in or
	// the connection dropped. Candidates stay retryable.
	ErrTransportNotConnected = errors.New("messaging transport is not connected")

	// ErrFallbackDepthExceeded guards against a fallback message spawning
	// another fallback.
	ErrFallbackDepthExceeded = errors.New("fallback messages do not get their own fallback")
)
