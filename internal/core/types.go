// SPDX-License-Identifier: MIT

// Package core holds the waiting-room domain model shared by all components:
// actions, action groups, rules, visitor identity, wait status and the
// service error taxonomy.
package core

// RulePolicy controls which requests an action queues.
type RulePolicy string

const (
	// PolicyAll queues every request regardless of rules.
	PolicyAll RulePolicy = "ALL"
	// PolicyInclude queues a request only when at least one rule matches.
	PolicyInclude RulePolicy = "INCLUDE"
	// PolicyExclude queues every request except those matching a rule.
	PolicyExclude RulePolicy = "EXCLUDE"
)

// RuleOperator is the string predicate applied by an ActionRule.
type RuleOperator string

const (
	OpEqual      RuleOperator = "EQUAL"
	OpContains   RuleOperator = "CONTAINS"
	OpStartsWith RuleOperator = "STARTSWITH"
	OpEndsWith   RuleOperator = "ENDSWITH"
)

// ActionRule is a single match rule belonging to an Action. Rules are
// evaluated in ascending Seq order; the first match short-circuits.
type ActionRule struct {
	Seq       int          `json:"seq"`
	ParamName string       `json:"paramName"`
	Value     string       `json:"value"`
	Operator  RuleOperator `json:"operator"`
}

// Action is a protected resource subject to queueing. Read-only to this
// service; an external admin plane creates and edits actions.
type Action struct {
	ID            string       `json:"id"`
	ActionGroupID string       `json:"actionGroupId"`
	Name          string       `json:"name"`
	ResourceURL   string       `json:"resourceUrl"`
	LandingStart  int64        `json:"landingStart,omitempty"` // unix millis, 0 = unset
	LandingEnd    int64        `json:"landingEnd,omitempty"`
	LandingDest   string       `json:"landingDest,omitempty"`
	DefaultPolicy RulePolicy   `json:"defaultPolicy"`
	Rules         []ActionRule `json:"rules,omitempty"`
}

// ActionGroup is a capacity-sharing grouping of Actions. Capacity is the
// number of admissions allowed per relocation window; the occupancy
// admission strategy reuses it as a ceiling on concurrently READY visitors.
type ActionGroup struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Capacity    int64  `json:"capacity"`
	Enabled     bool   `json:"enabled"`
}
