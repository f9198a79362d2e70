// Package index implements hybrid lexical/semantic retrieval over ontology
// documents: an Okapi BM25 inverted index and a dense cosine-similarity
// index, built once per ontology and fused at query time.
//
// The BM25 half runs documents and queries through one tokenizer (camelCase
// splitting, lowercasing, stopword removal) so both sides agree; the dense
// half embeds the raw document lines and the raw query with the same
// embeddings provider.
// Results are deterministic for a fixed ontology and query: ties break on
// score, then IRI lexicographic order.
package index

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ontograph/internal/ontology"
	"github.com/MrWong99/ontograph/pkg/provider/embeddings"
)

// Result is one retrieval hit, mapping back to a class or property IRI.
type Result struct {
	IRI   string
	Score float64
}

// Options tunes index construction and search.
type Options struct {
	// K1 is the BM25 term-frequency saturation parameter. Default: 1.2.
	K1 float64

	// B is the BM25 length normalization parameter. Default: 0.75.
	B float64
}

// Index answers top-k class and property queries over one ontology.
// Immutable after [Build]; safe for concurrent use by all pipeline workers.
type Index struct {
	onto     *ontology.Context
	embedder embeddings.Provider

	classBM25 *bm25Index
	propBM25  *bm25Index

	classDense *denseIndex
	propDense  *denseIndex
}

// Build constructs both halves of the hybrid index from the ontology's
// search documents. Embeddings are computed in one batch per document kind;
// each document's vector is the average over its composed lines.
func Build(ctx context.Context, onto *ontology.Context, embedder embeddings.Provider, opts Options) (*Index, error) {
	if opts.K1 == 0 {
		opts.K1 = 1.2
	}
	if opts.B == 0 {
		opts.B = 0.75
	}
	params := bm25Params{k1: opts.K1, b: opts.B}

	var classDocs, propDocs []ontology.Document
	for _, doc := range onto.Documents() {
		if doc.Kind == ontology.DocClass {
			classDocs = append(classDocs, doc)
		} else {
			propDocs = append(propDocs, doc)
		}
	}

	idx := &Index{onto: onto, embedder: embedder}

	var err error
	idx.classBM25 = buildBM25(classDocs, params)
	idx.propBM25 = buildBM25(propDocs, params)
	if idx.classDense, err = buildDense(ctx, classDocs, embedder); err != nil {
		return nil, fmt.Errorf("index: embed class documents: %w", err)
	}
	if idx.propDense, err = buildDense(ctx, propDocs, embedder); err != nil {
		return nil, fmt.Errorf("index: embed property documents: %w", err)
	}
	return idx, nil
}

// buildBM25 tokenizes each document (unigrams plus bigrams) and builds the
// inverted index. Bigrams exist only here — the ontology model never sees
// them.
func buildBM25(docs []ontology.Document, params bm25Params) *bm25Index {
	iris := make([]string, len(docs))
	tokens := make([][]string, len(docs))
	for i, doc := range docs {
		iris[i] = doc.IRI
		unigrams := Tokenize(doc.Text)
		tokens[i] = append(unigrams, Bigrams(unigrams)...)
	}
	return newBM25Index(iris, tokens, params)
}

// buildDense embeds every line of every document in one batch call and
// stores the per-document average vector.
func buildDense(ctx context.Context, docs []ontology.Document, embedder embeddings.Provider) (*denseIndex, error) {
	idx := &denseIndex{
		docIRIs: make([]string, len(docs)),
		vectors: make([][]float32, len(docs)),
	}

	var lines []string
	lineDoc := make([]int, 0)
	for i, doc := range docs {
		idx.docIRIs[i] = doc.IRI
		for _, line := range strings.Split(doc.Text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			lines = append(lines, line)
			lineDoc = append(lineDoc, i)
		}
	}
	if len(lines) == 0 {
		return idx, nil
	}

	vecs, err := embedder.EmbedBatch(ctx, lines)
	if err != nil {
		return nil, err
	}

	perDoc := make([][][]float32, len(docs))
	for j, vec := range vecs {
		perDoc[lineDoc[j]] = append(perDoc[lineDoc[j]], vec)
	}
	for i := range docs {
		idx.vectors[i] = average(perDoc[i])
	}
	return idx, nil
}

// SearchClasses returns up to k class candidates for the query, fusing BM25
// and dense results.
func (ix *Index) SearchClasses(ctx context.Context, query string, k int) ([]Result, error) {
	return ix.searchHybrid(ctx, query, k, ix.classBM25, ix.classDense)
}

// SearchProperties returns up to k property candidates for the query, plus
// the domain classes implied by those properties: a hit on "plays for"
// implies the Player class even when no class document matched directly.
func (ix *Index) SearchProperties(ctx context.Context, query string, k int) (props []Result, impliedClasses []Result, err error) {
	props, err = ix.searchHybrid(ctx, query, k, ix.propBM25, ix.propDense)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	for _, hit := range props {
		pd, ok := ix.onto.PropertyByIRI(hit.IRI)
		if !ok {
			continue
		}
		for _, domain := range pd.Domains {
			cd, ok := ix.onto.ClassByLocalName(domain)
			if !ok || seen[cd.IRI] {
				continue
			}
			seen[cd.IRI] = true
			impliedClasses = append(impliedClasses, Result{IRI: cd.IRI, Score: hit.Score})
		}
	}
	sortResults(impliedClasses)
	return props, impliedClasses, nil
}

// searchHybrid runs the lexical and dense searches in parallel and fuses
// them: results are unioned, deduplicated by IRI keeping the best score, and
// re-sorted.
func (ix *Index) searchHybrid(ctx context.Context, query string, k int, bm *bm25Index, dense *denseIndex) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	var lexical, semantic []Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = bm.search(Tokenize(query), k)
		return nil
	})
	g.Go(func() error {
		queryVec, err := ix.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		semantic = dense.search(queryVec, k)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	best := make(map[string]float64)
	for _, r := range append(lexical, semantic...) {
		if score, ok := best[r.IRI]; !ok || r.Score > score {
			best[r.IRI] = r.Score
		}
	}

	fused := make([]Result, 0, len(best))
	for iri, score := range best {
		fused = append(fused, Result{IRI: iri, Score: score})
	}
	sortResults(fused)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}
