package assembly

import "math/rand"

// Shuffle permutes items in place.
func Shuffle[T any](rng *rand.Rand, items []T) {
	rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

// Interleave shuffles each group, then takes one item from each group in
// turn (A1 B1 C1 A2 ...) until all are used. Groups keep their given order.
func Interleave[T any](rng *rand.Rand, groups [][]T) []T {
	total := 0
	for _, g := range groups {
		Shuffle(rng, g)
		total += len(g)
	}

	out := make([]T, 0, total)
	for i := 0; len(out) < total; i++ {
		for _, g := range groups {
			if i < len(g) {
				out = append(out, g[i])
			}
		}
	}
	return out
}

// Order arranges per-source clip groups for assembly. With smart set and
// more than one group the groups are interleaved; otherwise, with shuffle
// set, the flattened list is shuffled. The result is capped at limit when
// limit > 0.
func Order[T any](rng *rand.Rand, groups [][]T, shuffle, smart bool, limit int) []T {
	var out []T
	switch {
	case smart && len(groups) > 1:
		out = Interleave(rng, groups)
	default:
		for _, g := range groups {
			out = append(out, g...)
		}
		if shuffle {
			Shuffle(rng, out)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
