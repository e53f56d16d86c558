package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDelegations(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []Delegation
	}{
		{
			name:  "free text",
			reply: "Your next appointment is on Tuesday.",
			want:  nil,
		},
		{
			name:  "valid json without delegations",
			reply: `{"answer":"all good"}`,
			want:  nil,
		},
		{
			name:  "delegations not an array",
			reply: `{"delegations":"revenue"}`,
			want:  nil,
		},
		{
			name:  "snake_case fields",
			reply: `{"delegations":[{"agent_type":"revenue","sub_query":"Q3 collections"}]}`,
			want:  []Delegation{{AgentType: "revenue", SubQuery: "Q3 collections"}},
		},
		{
			name:  "camelCase fields",
			reply: `{"delegations":[{"agentType":"staff","subQuery":"on-call roster"}]}`,
			want:  []Delegation{{AgentType: "staff", SubQuery: "on-call roster"}},
		},
		{
			name:  "entries missing fields are skipped",
			reply: `{"delegations":[{"agent_type":"revenue"},{"sub_query":"x"},{"agent_type":"staff","sub_query":"roster"}]}`,
			want:  []Delegation{{AgentType: "staff", SubQuery: "roster"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDelegations(tt.reply))
		})
	}
}

func TestParseDelegations_Dedup(t *testing.T) {
	reply := `{"delegations":[
		{"agent_type":"revenue","sub_query":"Q3 collections"},
		{"agent_type":"revenue","sub_query":"Q3 collections"},
		{"agent_type":"revenue","sub_query":"Q4 forecast"},
		{"agent_type":"data-analysis","sub_query":"Q4 forecast"}
	]}`

	got := ParseDelegations(reply)
	assert.Equal(t, []Delegation{
		{AgentType: "revenue", SubQuery: "Q3 collections"},
		{AgentType: "revenue", SubQuery: "Q4 forecast"},
		{AgentType: "data-analysis", SubQuery: "Q4 forecast"},
	}, got, "only exact pairs collapse; distinct sub-queries to one agent survive")
}
