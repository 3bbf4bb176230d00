// SPDX-License-Identifier: MIT

// Package rules decides whether a request is subject to queueing for a given
// action, based on the action's default policy and its ordered rule list.
package rules

import (
	"strings"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

// IsSubjectToQueue evaluates the action's rule policy against the request
// parameters.
//
// ALL (or nil params) queues everyone. INCLUDE queues only when a rule
// matches. EXCLUDE queues unless a rule matches. An unrecognized policy
// queues everyone: failing safe means waiting, never bypassing.
func IsSubjectToQueue(action *core.Action, params map[string]string) bool {
	if action == nil {
		return true
	}
	switch action.DefaultPolicy {
	case core.PolicyAll:
		return true
	case core.PolicyInclude:
		if params == nil {
			return true
		}
		return anyRuleMatches(action.Rules, params)
	case core.PolicyExclude:
		if params == nil {
			return true
		}
		return !anyRuleMatches(action.Rules, params)
	default:
		return true
	}
}

// anyRuleMatches scans rules in slice order; the first match short-circuits.
// Rules are stored pre-sorted by Seq.
func anyRuleMatches(ruleList []core.ActionRule, params map[string]string) bool {
	for _, rule := range ruleList {
		value, ok := params[rule.ParamName]
		if !ok {
			continue
		}
		if Matches(value, rule.Value, rule.Operator) {
			return true
		}
	}
	return false
}

// Matches applies a single operator. An empty rule value or operator never
// matches.
func Matches(requestValue, ruleValue string, op core.RuleOperator) bool {
	if ruleValue == "" {
		return false
	}
	switch op {
	case core.OpEqual:
		return requestValue == ruleValue
	case core.OpContains:
		return strings.Contains(requestValue, ruleValue)
	case core.OpStartsWith:
		return strings.HasPrefix(requestValue, ruleValue)
	case core.OpEndsWith:
		return strings.HasSuffix(requestValue, ruleValue)
	default:
		return false
	}
}
