package cluster

import "github.com/rdnode/rdnode/internal/slot"

// Targets computes, for nodes listed in order, how many slots each should
// end up owning: floor(16384 / n), with the first (16384 mod n) nodes in
// the given order getting one extra slot. The order passed in must be
// deterministic across nodes computing the same rebalance (callers sort
// node ids) so every node agrees on who gets the remainder.
func Targets(nodeIDsInOrder []string) map[string]int {
	n := len(nodeIDsInOrder)
	targets := make(map[string]int, n)
	if n == 0 {
		return targets
	}
	base := slot.Count / n
	extra := slot.Count % n
	for i, id := range nodeIDsInOrder {
		t := base
		if i < extra {
			t++
		}
		targets[id] = t
	}
	return targets
}

// PlanStep is one slot's worth of rebalancing work: move Count contiguous
// slots starting at Slot from Donor to recipient.
type PlanStep struct {
	Donor string
	Slot  uint16
	Count int
}

// PlanRebalance compares current ownership counts against Targets and
// returns, for the single joining node self, the set of (donor, slot
// range) moves needed to bring self up to its target share. Donors are
// visited in descending order of surplus so the largest holders give up
// slots first.
func PlanRebalance(table *Table, self string, nodeIDsInOrder []string) []PlanStep {
	targets := Targets(nodeIDsInOrder)
	counts := table.CountByOwner()
	need := targets[self] - counts[self]
	if need <= 0 {
		return nil
	}

	type surplus struct {
		id    string
		extra int
	}
	var donors []surplus
	for _, id := range nodeIDsInOrder {
		if id == self {
			continue
		}
		if have := counts[id] - targets[id]; have > 0 {
			donors = append(donors, surplus{id: id, extra: have})
		}
	}
	// Largest surplus first; stable by node id for determinism.
	for i := 1; i < len(donors); i++ {
		for j := i; j > 0 && (donors[j].extra > donors[j-1].extra ||
			(donors[j].extra == donors[j-1].extra && donors[j].id < donors[j-1].id)); j-- {
			donors[j], donors[j-1] = donors[j-1], donors[j]
		}
	}

	var steps []PlanStep
	for _, d := range donors {
		if need <= 0 {
			break
		}
		owned := table.OwnedBy(d.id)
		take := d.extra
		if take > need {
			take = need
		}
		if take > len(owned) {
			take = len(owned)
		}
		for i := 0; i < take; i++ {
			steps = append(steps, PlanStep{Donor: d.id, Slot: owned[i], Count: 1})
		}
		need -= take
	}
	return steps
}
