// Package vectorizer turns a document's raw n-gram occurrence counts into
// an L2-normalized sparse tf-idf vector, per spec.md §4.3.
package vectorizer

import (
	"math"

	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/internal/document"
)

// Term is one n-gram's tf-idf weight within a document vector.
type Term struct {
	Hash  uint64
	Score float64
}

// DocumentRef is a document reduced to its tf-idf vector, the
// representation the reference index and the scorer operate on once a
// document's raw vocabulary is no longer needed.
type DocumentRef struct {
	ID    int
	Terms []Term
}

// tfidf is the smooth tf/idf weight used throughout docalign: tf and idf
// are each log-dampened (tf_smooth setting 14 in the python lineage this
// was ported from).
func tfidf(tf int, documentCount int, df uint64) float64 {
	return math.Log(float64(tf)+1) * math.Log(float64(documentCount)/(1+float64(df)))
}

// Vectorize computes doc's tf-idf DocumentRef. Every n-gram in doc.Vocab
// falls into exactly one of three cases:
//
//   - known: present in df. Its weight is emitted into Terms and
//     contributes to the L2 norm.
//   - pruned: absent from df because it was removed for exceeding
//     max_count. Skipped entirely — no weight, no norm contribution.
//   - unknown: absent from df and never pruned, i.e. never reached
//     min_count in either corpus. Falls back to df=1 for the norm
//     computation only; never emitted, since a term the reference corpus
//     never indexed can never match anything.
//
// If every term lands in the pruned or unknown case, or doc has no
// vocabulary at all, the result has a zero norm and an empty Terms slice.
func Vectorize(doc document.Document, documentCount int, df *docfreq.DF, pruned *docfreq.PrunedSet) DocumentRef {
	ref := DocumentRef{ID: doc.ID, Terms: make([]Term, 0, len(doc.Vocab))}

	var normSq float64
	for hash, tf := range doc.Vocab {
		if count, ok := df.Lookup(hash); ok {
			weight := tfidf(tf, documentCount, count)
			ref.Terms = append(ref.Terms, Term{Hash: hash, Score: weight})
			normSq += weight * weight
			continue
		}
		if pruned.Contains(hash) {
			continue
		}
		weight := tfidf(tf, documentCount, 1)
		normSq += weight * weight
	}

	if normSq == 0 {
		return ref
	}
	norm := math.Sqrt(normSq)
	for i := range ref.Terms {
		ref.Terms[i].Score /= norm
	}
	return ref
}
