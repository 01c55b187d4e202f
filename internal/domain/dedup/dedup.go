// Package dedup holds the pure deduplication rules shared by the ingestion
// stage and the state inspection command.
package dedup

import "market-xbot/internal/domain/entity"

// IsDuplicate reports whether id has already been processed.
func IsDuplicate(id string, set *entity.ProcessedIdSet) bool {
	return set.Contains(id)
}

// Partition splits items into those not in set and those already seen.
// Both slices keep the input order. set is not modified.
func Partition(items []entity.ContentItem, set *entity.ProcessedIdSet) (fresh, seen []entity.ContentItem) {
	for _, item := range items {
		if IsDuplicate(item.ID, set) {
			seen = append(seen, item)
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, seen
}
