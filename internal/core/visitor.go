// SPDX-License-Identifier: MIT

package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// VisitorID identifies one visitor of one action. The wire form is
// "{actionID}:{suffix}" where the suffix is time-sortable, so any component
// holding only the string can recover the owning action.
type VisitorID struct {
	ActionID string
	Suffix   string
}

// NewVisitorID mints a fresh visitor identity for the given action. The
// suffix is a UUIDv7, which sorts by creation time.
func NewVisitorID(actionID string) (VisitorID, error) {
	if actionID == "" {
		return VisitorID{}, fmt.Errorf("new visitor id: %w", ErrBadRequest)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return VisitorID{}, fmt.Errorf("new visitor id: %w", err)
	}
	return VisitorID{ActionID: actionID, Suffix: id.String()}, nil
}

// ParseVisitorID splits a wire-form visitor id on its first delimiter.
func ParseVisitorID(s string) (VisitorID, error) {
	actionID, suffix, ok := strings.Cut(s, ":")
	if !ok || actionID == "" || suffix == "" {
		return VisitorID{}, fmt.Errorf("parse visitor id %q: %w", s, ErrBadRequest)
	}
	return VisitorID{ActionID: actionID, Suffix: suffix}, nil
}

// String renders the wire form.
func (v VisitorID) String() string {
	return v.ActionID + ":" + v.Suffix
}

// IsZero reports whether the id is unset.
func (v VisitorID) IsZero() bool {
	return v.ActionID == "" && v.Suffix == ""
}
