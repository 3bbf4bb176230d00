// SPDX-License-Identifier: MIT

package rules

import (
	"testing"

	"github.com/B2-2-BW/greenlight-core-api-sub000/internal/core"
)

func action(policy core.RulePolicy, ruleList ...core.ActionRule) *core.Action {
	return &core.Action{
		ID:            "act-1",
		ActionGroupID: "grp-1",
		DefaultPolicy: policy,
		Rules:         ruleList,
	}
}

func TestIsSubjectToQueue_Policies(t *testing.T) {
	vipRule := core.ActionRule{Seq: 1, ParamName: "vip", Value: "true", Operator: core.OpEqual}

	tests := []struct {
		name   string
		action *core.Action
		params map[string]string
		want   bool
	}{
		{name: "nil action queues", action: nil, params: map[string]string{}, want: true},
		{name: "ALL queues everyone", action: action(core.PolicyAll, vipRule), params: map[string]string{"vip": "true"}, want: true},
		{name: "nil params queues", action: action(core.PolicyExclude, vipRule), params: nil, want: true},
		{name: "INCLUDE match queues", action: action(core.PolicyInclude, vipRule), params: map[string]string{"vip": "true"}, want: true},
		{name: "INCLUDE no match skips", action: action(core.PolicyInclude, vipRule), params: map[string]string{"vip": "false"}, want: false},
		{name: "INCLUDE param absent skips", action: action(core.PolicyInclude, vipRule), params: map[string]string{}, want: false},
		{name: "EXCLUDE match bypasses", action: action(core.PolicyExclude, vipRule), params: map[string]string{"vip": "true"}, want: false},
		{name: "EXCLUDE no match queues", action: action(core.PolicyExclude, vipRule), params: map[string]string{}, want: true},
		{name: "unknown policy fails safe to queueing", action: action(core.RulePolicy("WHATEVER"), vipRule), params: map[string]string{"vip": "true"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSubjectToQueue(tt.action, tt.params); got != tt.want {
				t.Errorf("IsSubjectToQueue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSubjectToQueue_FirstMatchShortCircuits(t *testing.T) {
	a := action(core.PolicyInclude,
		core.ActionRule{Seq: 1, ParamName: "src", Value: "mail", Operator: core.OpEqual},
		core.ActionRule{Seq: 2, ParamName: "src", Value: "m", Operator: core.OpStartsWith},
	)
	if !IsSubjectToQueue(a, map[string]string{"src": "mail"}) {
		t.Error("expected first rule to match")
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		reqVal  string
		ruleVal string
		op      core.RuleOperator
		want    bool
	}{
		{"equal hit", "abc", "abc", core.OpEqual, true},
		{"equal miss", "abc", "abd", core.OpEqual, false},
		{"contains hit", "xabcx", "abc", core.OpContains, true},
		{"contains miss", "xyz", "abc", core.OpContains, false},
		{"startswith hit", "abcdef", "abc", core.OpStartsWith, true},
		{"startswith miss", "zabc", "abc", core.OpStartsWith, false},
		{"endswith hit", "xyzabc", "abc", core.OpEndsWith, true},
		{"endswith miss", "abcx", "abc", core.OpEndsWith, false},
		{"empty rule value never matches", "abc", "", core.OpEqual, false},
		{"empty operator never matches", "abc", "abc", core.RuleOperator(""), false},
		{"unknown operator never matches", "abc", "abc", core.RuleOperator("REGEX"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.reqVal, tt.ruleVal, tt.op); got != tt.want {
				t.Errorf("Matches(%q, %q, %s) = %v, want %v", tt.reqVal, tt.ruleVal, tt.op, got, tt.want)
			}
		})
	}
}
