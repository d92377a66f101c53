package chat

import (
	"slices"

	"gigs/entity"
)

// Merge returns existing plus every incoming message whose id is not already
// present, ordered by timestamp and then id. Messages without a server id are
// dropped. Neither input is modified.
func Merge(existing []entity.Message, incoming ...entity.Message) []entity.Message {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]entity.Message, 0, len(existing)+len(incoming))

	for _, batch := range [][]entity.Message{existing, incoming} {
		for _, m := range batch {
			if m.ID == "" {
				continue
			}
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}

	slices.SortStableFunc(merged, func(a, b entity.Message) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})

	return merged
}
