package entity

// ProcessedIdSet is the append-only collection of content ids already handled.
// Membership queries are O(1); IDs() returns insertion order, which is the
// order written back to storage.
type ProcessedIdSet struct {
	order []string
	index map[string]struct{}
}

// NewProcessedIdSet builds a set from ids, dropping repeats but keeping the
// first occurrence's position.
func NewProcessedIdSet(ids ...string) *ProcessedIdSet {
	s := &ProcessedIdSet{
		order: make([]string, 0, len(ids)),
		index: make(map[string]struct{}, len(ids)),
	}
	s.Add(ids...)
	return s
}

// Contains reports whether id has been processed.
func (s *ProcessedIdSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// Add appends ids that are not yet present and returns how many were added.
func (s *ProcessedIdSet) Add(ids ...string) int {
	added := 0
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			continue
		}
		s.index[id] = struct{}{}
		s.order = append(s.order, id)
		added++
	}
	return added
}

// Len returns the number of ids in the set.
func (s *ProcessedIdSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// IDs returns a copy of the ids in insertion order.
func (s *ProcessedIdSet) IDs() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Tail returns up to n of the most recently added ids, oldest first.
func (s *ProcessedIdSet) Tail(n int) []string {
	ids := s.IDs()
	if n <= 0 || n >= len(ids) {
		return ids
	}
	return ids[len(ids)-n:]
}

// Retain drops the oldest ids so that at most max remain. max <= 0 keeps everything.
// It returns the number of ids removed.
func (s *ProcessedIdSet) Retain(max int) int {
	if max <= 0 || len(s.order) <= max {
		return 0
	}
	drop := len(s.order) - max
	for _, id := range s.order[:drop] {
		delete(s.index, id)
	}
	kept := make([]string, max)
	copy(kept, s.order[drop:])
	s.order = kept
	return drop
}
