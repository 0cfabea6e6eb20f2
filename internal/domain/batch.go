package domain

import "strconv"

// BatchPlan is an ordered partition of entry identifiers into request groups.
type BatchPlan struct {
	groups [][]string
}

// Partition splits ids into consecutive groups of at most size elements.
// Concatenating the groups in order reproduces ids exactly; an empty input
// yields a plan with zero groups.
func Partition(ids []string, size int) (BatchPlan, error) {
	if size <= 0 {
		return BatchPlan{}, &InvalidQueryError{Field: "batch_size", Reason: "must be positive, got " + strconv.Itoa(size)}
	}
	if len(ids) == 0 {
		return BatchPlan{}, nil
	}

	groups := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		group := make([]string, end-start)
		copy(group, ids[start:end])
		groups = append(groups, group)
	}
	return BatchPlan{groups: groups}, nil
}

// Len returns the number of groups.
func (p BatchPlan) Len() int { return len(p.groups) }

// Group returns a copy of the i-th group.
func (p BatchPlan) Group(i int) []string {
	return append([]string(nil), p.groups[i]...)
}

// Groups returns copies of all groups in order.
func (p BatchPlan) Groups() [][]string {
	out := make([][]string, len(p.groups))
	for i := range p.groups {
		out[i] = p.Group(i)
	}
	return out
}

// Flatten concatenates the groups back into one slice.
func (p BatchPlan) Flatten() []string {
	var out []string
	for _, g := range p.groups {
		out = append(out, g...)
	}
	return out
}
