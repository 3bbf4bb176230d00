// SPDX-License-Identifier: MIT

package core

// WaitStatus is the admission state of a visitor.
type WaitStatus string

const (
	// StatusWaiting means the visitor is queued and must wait.
	StatusWaiting WaitStatus = "WAITING"
	// StatusReady means the visitor has been admitted pending verification.
	StatusReady WaitStatus = "READY"
	// StatusBypassed means rule matching exempted the request from queueing.
	// Terminal; never transitions further.
	StatusBypassed WaitStatus = "BYPASSED"
	// StatusDisabled means the owning action group is disabled. Terminal.
	StatusDisabled WaitStatus = "DISABLED"
	// StatusEntered means the visitor passed verification and entered.
	StatusEntered WaitStatus = "ENTERED"
	// StatusExpired means the visitor's ticket TTL elapsed.
	StatusExpired WaitStatus = "EXPIRED"
)

// Queued reports whether the status corresponds to a live queue membership.
func (s WaitStatus) Queued() bool {
	return s == StatusWaiting || s == StatusReady
}

// Terminal reports whether the status can never transition again.
func (s WaitStatus) Terminal() bool {
	switch s {
	case StatusBypassed, StatusDisabled, StatusEntered, StatusExpired:
		return true
	}
	return false
}
