package gateway

import (
	"fmt"
	"sort"
	"strings"

	"canlab/config"
	"canlab/utils"
)

// Rules is the static forwarding table: for each source segment, the set of
// identifiers that are copied to the other segment.
type Rules struct {
	allow map[string]map[uint32]string
}

func NewRules(rules []config.ForwardRule) (*Rules, error) {
	r := &Rules{allow: make(map[string]map[uint32]string)}
	for i, rule := range rules {
		if rule.From == "" || rule.To == "" || rule.From == rule.To {
			return nil, fmt.Errorf("rule %d: invalid direction %q -> %q", i, rule.From, rule.To)
		}
		ids, ok := r.allow[rule.From]
		if !ok {
			ids = make(map[uint32]string)
			r.allow[rule.From] = ids
		}
		for _, id := range rule.IDs {
			if id > utils.MaxStandardID {
				return nil, fmt.Errorf("rule %d: id 0x%X does not fit in 11 bits", i, id)
			}
			if to, dup := ids[id]; dup && to != rule.To {
				return nil, fmt.Errorf("rule %d: 0x%03X from %s already forwarded to %s", i, id, rule.From, to)
			}
			ids[id] = rule.To
		}
	}
	return r, nil
}

// Route returns the destination segment for a frame seen on from.
func (r *Rules) Route(from string, id uint32) (string, bool) {
	to, ok := r.allow[from][id]
	return to, ok
}

// IDs lists the identifiers forwarded out of from, sorted.
func (r *Rules) IDs(from string) []uint32 {
	out := make([]uint32, 0, len(r.allow[from]))
	for id := range r.allow[from] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Rules) String() string {
	var parts []string
	for _, from := range sortedKeys(r.allow) {
		var ids []string
		for _, id := range r.IDs(from) {
			ids = append(ids, fmt.Sprintf("0x%03X", id))
		}
		parts = append(parts, fmt.Sprintf("%s: [%s]", from, strings.Join(ids, " ")))
	}
	return strings.Join(parts, "; ")
}

func sortedKeys(m map[string]map[uint32]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
