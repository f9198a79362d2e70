package graph

import (
	"sort"
)

// MergeConflict records an attribute disagreement surfaced by [MergeTracked].
type MergeConflict struct {
	// EntityID is the entity whose attribute conflicted.
	EntityID string

	// PropertyIRI is the conflicting attribute key.
	PropertyIRI string

	// Values holds the disagreeing values, loser first.
	Values []any

	// Chunks lists the chunk indices that contributed to either side of the
	// merge, for audit.
	Chunks []int
}

// Merge combines two graphs. The operation is associative with [Empty] as
// identity, and commutative on the relation set; all decisions are
// side-symmetric except the documented last-writer-wins on attribute keys
// and the incumbent rule on equal-length mentions.
//
// Entities merge by ID: attributes union with the right side winning on
// conflicts, types by frequency vote, mention by longest-string. Relations
// deduplicate on the (subject, predicate, object) signature.
func Merge(a, b KnowledgeGraph) KnowledgeGraph {
	merged, _ := merge(a, b, false)
	return merged
}

// MergeTracked behaves like [Merge] and additionally reports every attribute
// conflict encountered, for audit logs.
func MergeTracked(a, b KnowledgeGraph) (KnowledgeGraph, []MergeConflict) {
	return merge(a, b, true)
}

func merge(a, b KnowledgeGraph, track bool) (KnowledgeGraph, []MergeConflict) {
	var conflicts []MergeConflict
	chunks := dedupInts(append(append([]int(nil), a.Provenance...), b.Provenance...))

	byID := make(map[string]Entity, len(a.Entities)+len(b.Entities))
	order := make([]string, 0, len(a.Entities)+len(b.Entities))

	for _, e := range a.Entities {
		byID[e.ID] = cloneEntity(e)
		order = append(order, e.ID)
	}
	for _, e := range b.Entities {
		incumbent, ok := byID[e.ID]
		if !ok {
			byID[e.ID] = cloneEntity(e)
			order = append(order, e.ID)
			continue
		}
		merged, entityConflicts := mergeEntity(incumbent, e, track)
		if track {
			for i := range entityConflicts {
				entityConflicts[i].Chunks = chunks
			}
			conflicts = append(conflicts, entityConflicts...)
		}
		byID[e.ID] = merged
	}

	out := KnowledgeGraph{Provenance: chunks}
	for _, id := range order {
		out.Entities = append(out.Entities, byID[id])
	}
	out.Relations = append(append([]Relation(nil), a.Relations...), b.Relations...)
	return out.Normalize(), conflicts
}

// mergeEntity combines two records sharing one ID.
func mergeEntity(left, right Entity, track bool) (Entity, []MergeConflict) {
	var conflicts []MergeConflict

	merged := Entity{
		ID:      left.ID,
		Mention: longerMention(left.Mention, right.Mention),
		Types:   voteTypes(left.Types, right.Types),
	}

	attrs := make(map[string]any, len(left.Attributes)+len(right.Attributes))
	for k, v := range left.Attributes {
		attrs[k] = v
	}
	for k, v := range right.Attributes {
		if prev, ok := attrs[k]; ok && FormatLiteral(prev) != FormatLiteral(v) {
			if track {
				conflicts = append(conflicts, MergeConflict{
					EntityID:    left.ID,
					PropertyIRI: k,
					Values:      []any{prev, v},
				})
			}
		}
		// Last writer wins.
		attrs[k] = v
	}
	if len(attrs) > 0 {
		merged.Attributes = attrs
	}
	return merged, conflicts
}

// longerMention keeps the longer string; on ties the incumbent (left) wins.
func longerMention(left, right string) string {
	if len(right) > len(left) {
		return right
	}
	return left
}

// maxVotedTypes caps the type list kept when the top frequency wins a vote.
const maxVotedTypes = 3

// voteTypes merges two type lists by frequency voting. Each side is treated
// as a set, so a type occurs at most twice. When the top frequency is at
// least 2, every type at the top frequency is kept (capped at 3). Otherwise
// the first two types are kept in deterministic order: left-side order
// first, then right-side newcomers.
func voteTypes(left, right []string) []string {
	counts := make(map[string]int)
	var order []string
	for _, t := range dedupStrings(left) {
		counts[t]++
		order = append(order, t)
	}
	for _, t := range dedupStrings(right) {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}

	top := 0
	for _, c := range counts {
		if c > top {
			top = c
		}
	}

	var kept []string
	if top >= 2 {
		for _, t := range order {
			if counts[t] == top {
				kept = append(kept, t)
			}
		}
		if len(kept) > maxVotedTypes {
			kept = kept[:maxVotedTypes]
		}
		return kept
	}

	// Top frequency 1: keep the first two by deterministic order. Ordering
	// by frequency descending is a no-op here since every count is 1.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > 2 {
		order = order[:2]
	}
	return order
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func cloneEntity(e Entity) Entity {
	out := Entity{
		ID:      e.ID,
		Mention: e.Mention,
		Types:   append([]string(nil), e.Types...),
	}
	if len(e.Attributes) > 0 {
		out.Attributes = make(map[string]any, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
