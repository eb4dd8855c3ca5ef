package types

import "time"

// NotifyAttempt records one notification delivery attempt, success or not.
type NotifyAttempt struct {
	At          time.Time `json:"at"`
	Destination string    `json:"destination"`
	Kind        string    `json:"kind"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}

// AttemptLog is the append-only delivery log kept on a payment for audit.
// Entries are never rewritten or removed.
type AttemptLog []NotifyAttempt

// Append returns the log with the attempt added.
func (l AttemptLog) Append(attempt NotifyAttempt) AttemptLog {
	return append(l, attempt)
}

// Succeeded reports whether any attempt in the log delivered.
func (l AttemptLog) Succeeded() bool {
	for _, attempt := range l {
		if attempt.Success {
			return true
		}
	}
	return false
}
