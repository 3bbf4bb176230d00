// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	FieldRequestID = "request_id"
	FieldComponent = "component"
	FieldEvent     = "event"

	FieldActionID      = "action_id"
	FieldActionGroupID = "action_group_id"
	FieldVisitorID     = "visitor_id"
	FieldWaitStatus    = "wait_status"
	FieldQueueStatus   = "queue_status"
)
