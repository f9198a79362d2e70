package index

import (
	"math"
	"sort"
)

// bm25Params are the classic Okapi BM25 tuning knobs.
type bm25Params struct {
	// k1 is the term-frequency saturation parameter (typically 1.2).
	k1 float64
	// b is the document-length normalization parameter (typically 0.75).
	b float64
}

// bm25Index is an in-memory inverted index over ontology documents.
// Immutable after build; safe for concurrent search.
type bm25Index struct {
	params bm25Params

	// docIRIs maps internal doc id to source IRI.
	docIRIs []string

	// docLengths holds token counts per doc id.
	docLengths []int

	// postings maps term → doc id → term frequency.
	postings map[string]map[int]int

	avgDocLength float64
}

// newBM25Index builds the inverted index from per-document token lists.
// tokens[i] belongs to the document whose IRI is iris[i].
func newBM25Index(iris []string, tokens [][]string, params bm25Params) *bm25Index {
	idx := &bm25Index{
		params:     params,
		docIRIs:    iris,
		docLengths: make([]int, len(iris)),
		postings:   make(map[string]map[int]int),
	}

	totalLen := 0
	for docID, docTokens := range tokens {
		idx.docLengths[docID] = len(docTokens)
		totalLen += len(docTokens)
		for _, term := range docTokens {
			if idx.postings[term] == nil {
				idx.postings[term] = make(map[int]int)
			}
			idx.postings[term][docID]++
		}
	}
	if len(iris) > 0 {
		idx.avgDocLength = float64(totalLen) / float64(len(iris))
	}
	return idx
}

// search scores every document containing at least one query term and
// returns the top k by score, ties broken by IRI lexicographic order.
func (idx *bm25Index) search(queryTokens []string, k int) []Result {
	if len(idx.docIRIs) == 0 || len(queryTokens) == 0 {
		return nil
	}

	n := float64(len(idx.docIRIs))
	scores := make(map[int]float64)
	for _, term := range queryTokens {
		docs := idx.postings[term]
		if len(docs) == 0 {
			continue
		}
		df := float64(len(docs))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
		for docID, tf := range docs {
			norm := 1 - idx.params.b + idx.params.b*(float64(idx.docLengths[docID])/idx.avgDocLength)
			tfComponent := (float64(tf) * (idx.params.k1 + 1)) / (float64(tf) + idx.params.k1*norm)
			scores[docID] += idf * tfComponent
		}
	}

	results := make([]Result, 0, len(scores))
	for docID, score := range scores {
		results = append(results, Result{IRI: idx.docIRIs[docID], Score: score})
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// sortResults orders by score descending, then IRI ascending, giving
// reproducible output for equal scores.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].IRI < results[j].IRI
	})
}
