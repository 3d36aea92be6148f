// Package metrics counts payment gate and facilitator outcomes.
package metrics

import "time"

// Event names passed to Recorder.IncCounter.
const (
	EventChallenge     = "challenge"
	EventRejected      = "rejected"
	EventServed        = "served"
	EventFault         = "fault"
	EventVerifyValid   = "verify_valid"
	EventVerifyInvalid = "verify_invalid"
	EventSettled       = "settled"
	EventSettleFailed  = "settle_failed"
)

// Operation names passed to Recorder.ObserveLatency.
const (
	OpVerify = "verify"
	OpSettle = "settle"
)

// Recorder receives counters and latencies. Recognized label keys are
// "network" and "reason".
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Labels builds the label map for a network and an optional reason.
func Labels(network, reason string) map[string]string {
	return map[string]string{"network": network, "reason": reason}
}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
