// Package resolve merges cross-chunk entity coreferences in the document
// graph: the same real-world entity extracted as "eze" in one chunk and
// "eberechi_eze" in another collapses into a single canonical entity, and
// every relation is rewritten onto the canonical ids.
//
// Candidates are unioned when their mentions are similar enough (exact
// normalized match, bidirectional substring containment, or normalized
// Levenshtein similarity) and — by default — their type sets overlap.
package resolve

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/ontograph/internal/graph"
)

// Config tunes the coreference gate.
type Config struct {
	// MentionThreshold is the minimum combined string similarity between
	// two mentions. Default: 0.85.
	MentionThreshold float64

	// RequireTypeOverlap additionally demands overlapping type sets.
	// Default: true (set via DefaultConfig; the zero value disables it).
	RequireTypeOverlap bool

	// TypeOverlapThreshold is the minimum |A∩B| / min(|A|,|B|) ratio when
	// RequireTypeOverlap is set. Default: 0.5.
	TypeOverlapThreshold float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MentionThreshold:     0.85,
		RequireTypeOverlap:   true,
		TypeOverlapThreshold: 0.5,
	}
}

// Resolve collapses coreferent entities in g and returns the rewritten
// graph. Inputs are never mutated. Relations whose subject and object fall
// into the same cluster are dropped; the rest are deduplicated after id
// rewriting.
func Resolve(g graph.KnowledgeGraph, cfg Config) graph.KnowledgeGraph {
	if cfg.MentionThreshold == 0 {
		cfg.MentionThreshold = 0.85
	}
	if cfg.TypeOverlapThreshold == 0 {
		cfg.TypeOverlapThreshold = 0.5
	}
	if len(g.Entities) == 0 {
		return g.Normalize()
	}

	ids := make([]string, len(g.Entities))
	for i, e := range g.Entities {
		ids[i] = e.ID
	}
	uf := newUnionFind(ids)

	for i := 0; i < len(g.Entities); i++ {
		for j := i + 1; j < len(g.Entities); j++ {
			if shouldMerge(g.Entities[i], g.Entities[j], cfg) {
				uf.union(g.Entities[i].ID, g.Entities[j].ID)
			}
		}
	}

	// Group entities by cluster root.
	clusters := make(map[string][]graph.Entity)
	var rootOrder []string
	for _, e := range g.Entities {
		root := uf.find(e.ID)
		if _, ok := clusters[root]; !ok {
			rootOrder = append(rootOrder, root)
		}
		clusters[root] = append(clusters[root], e)
	}

	idMap := make(map[string]string, len(g.Entities))
	out := graph.KnowledgeGraph{Provenance: g.Provenance}
	for _, root := range rootOrder {
		canonical := canonicalEntity(root, clusters[root])
		out.Entities = append(out.Entities, canonical)
		for _, member := range clusters[root] {
			idMap[member.ID] = canonical.ID
		}
	}

	for _, rel := range g.Relations {
		mapped := graph.Relation{
			SubjectID: idMap[rel.SubjectID],
			Predicate: rel.Predicate,
			Object:    rel.Object,
		}
		if rel.Object.IsRef() {
			objID := idMap[rel.Object.EntityID()]
			if objID == mapped.SubjectID {
				// The relation collapsed onto itself.
				continue
			}
			mapped.Object = graph.EntityRef(objID)
		}
		out.Relations = append(out.Relations, mapped)
	}
	return out.Normalize()
}

// shouldMerge decides whether two entities corefer.
func shouldMerge(a, b graph.Entity, cfg Config) bool {
	if StringSimilarity(a.Mention, b.Mention) < cfg.MentionThreshold {
		return false
	}
	if cfg.RequireTypeOverlap {
		return TypeOverlapRatio(a.Types, b.Types) >= cfg.TypeOverlapThreshold
	}
	return true
}

// canonicalEntity folds one cluster: the canonical id is the union-find root
// (the shortest id), the mention is the longest in the cluster, types are
// merged by frequency vote, and attributes merge with earlier (longer
// mention) values winning.
func canonicalEntity(root string, members []graph.Entity) graph.Entity {
	// Longer mentions first; ties by id for stability.
	ordered := append([]graph.Entity(nil), members...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if len(ordered[i].Mention) != len(ordered[j].Mention) {
			return len(ordered[i].Mention) > len(ordered[j].Mention)
		}
		return ordered[i].ID < ordered[j].ID
	})

	out := graph.Entity{
		ID:      root,
		Mention: ordered[0].Mention,
		Types:   voteClusterTypes(ordered),
	}
	for _, member := range ordered {
		for k, v := range member.Attributes {
			if out.Attributes == nil {
				out.Attributes = make(map[string]any)
			}
			if _, ok := out.Attributes[k]; !ok {
				out.Attributes[k] = v
			}
		}
	}
	return out
}

// maxVotedTypes caps the kept type list after a winning vote.
const maxVotedTypes = 3

// voteClusterTypes counts each type across all cluster members and applies
// the frequency-vote rule: keep all types at the top frequency when it is at
// least 2 (capped), otherwise the first two in member order.
func voteClusterTypes(members []graph.Entity) []string {
	counts := make(map[string]int)
	var order []string
	for _, member := range members {
		for _, t := range member.Types {
			if counts[t] == 0 {
				order = append(order, t)
			}
			counts[t]++
		}
	}

	top := 0
	for _, c := range counts {
		if c > top {
			top = c
		}
	}

	if top >= 2 {
		var kept []string
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
	if len(order) > 2 {
		order = order[:2]
	}
	return order
}

// StringSimilarity is the combined mention similarity: 1.0 for normalized
// equality or bidirectional substring containment, otherwise normalized
// Levenshtein similarity (1 − distance / max length).
func StringSimilarity(a, b string) float64 {
	na, nb := normalizeMention(a), normalizeMention(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 1
	}

	distance := matchr.Levenshtein(na, nb)
	longest := max(len([]rune(na)), len([]rune(nb)))
	return 1 - float64(distance)/float64(longest)
}

// TypeOverlapRatio is |A∩B| / min(|A|,|B|), 0 when either side is empty.
func TypeOverlapRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	shared := 0
	for _, t := range dedup(b) {
		if setA[t] {
			shared++
		}
	}
	return float64(shared) / float64(min(len(setA), len(dedup(b))))
}

func normalizeMention(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func dedup(in []string) []string {
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
