package sheet

import "slices"

// Move removes the element identified by activeID and reinserts it at the
// index overID occupied, shifting everything in between by one slot. The
// input slice is never modified. activeID == overID returns an unchanged copy.
func Move[T any](items []T, id func(T) string, activeID, overID string) ([]T, error) {
	out := slices.Clone(items)
	if out == nil {
		out = []T{}
	}
	if activeID == overID {
		return out, nil
	}
	from := slices.IndexFunc(items, func(item T) bool { return id(item) == activeID })
	if from < 0 {
		return nil, invalid("activeId", "not found in sequence")
	}
	to := slices.IndexFunc(items, func(item T) bool { return id(item) == overID })
	if to < 0 {
		return nil, invalid("overId", "not found in sequence")
	}
	moved := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, moved), nil
}
