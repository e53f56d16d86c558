package orchestrator

import "github.com/tidwall/gjson"

// Delegation is one specialized-agent request declared by the entry agent's
// structured response. AgentType is kept raw here; validation against the
// registry happens at dispatch so a bad identifier surfaces as an annotation
// instead of being dropped silently.
type Delegation struct {
	AgentType string
	SubQuery  string
}

// ParseDelegations extracts {agentType, subQuery} pairs from an entry-agent
// reply. Free-text replies and structured replies without a delegations array
// yield nil: unstructured responses are never forced through fan-out.
//
// Both snake_case and camelCase field names are accepted since assistants are
// prompted, not schema-bound.
func ParseDelegations(reply string) []Delegation {
	if !gjson.Valid(reply) {
		return nil
	}
	arr := gjson.Get(reply, "delegations")
	if !arr.IsArray() {
		return nil
	}

	var delegations []Delegation
	arr.ForEach(func(_, item gjson.Result) bool {
		agentType := item.Get("agent_type")
		if !agentType.Exists() {
			agentType = item.Get("agentType")
		}
		subQuery := item.Get("sub_query")
		if !subQuery.Exists() {
			subQuery = item.Get("subQuery")
		}
		if agentType.String() == "" || subQuery.String() == "" {
			return true
		}
		delegations = append(delegations, Delegation{
			AgentType: agentType.String(),
			SubQuery:  subQuery.String(),
		})
		return true
	})
	return dedupe(delegations)
}

// dedupe removes exact (agentType, subQuery) duplicates while preserving
// order. Two delegations to the same agent with distinct sub-queries are both
// kept; so are two agents asked for the same capability.
func dedupe(delegations []Delegation) []Delegation {
	seen := make(map[Delegation]struct{}, len(delegations))
	out := delegations[:0]
	for _, d := range delegations {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
