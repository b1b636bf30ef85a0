package docfreq

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitextor/docalign/internal/codec"
	"github.com/bitextor/docalign/internal/ngram"
)

func writeCorpus(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.b64")
	var data []byte
	for _, line := range lines {
		data = append(data, []byte(codec.Encode([]byte(line)))...)
		data = append(data, '\n')
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	return path
}

func TestComputeDFCountsDocumentFrequency(t *testing.T) {
	path := writeCorpus(t, []string{"aab", "bbc", "cca"})

	df := NewDF()
	docCount, err := ComputeDF(context.Background(), df, path, 1, ngram.UnitByte, 1, 10, nil, nil)
	if err != nil {
		t.Fatalf("ComputeDF: %v", err)
	}
	if docCount != 3 {
		t.Fatalf("expected 3 documents, got %d", docCount)
	}

	want := map[byte]uint64{'a': 2, 'b': 2, 'c': 2}
	for b, expected := range want {
		hash := <-singleByteHash(b)
		count, ok := df.Lookup(hash)
		if !ok || count != expected {
			t.Fatalf("byte %q: expected count %d, got (%d, %v)", b, expected, count, ok)
		}
	}
}

func TestComputeDFBatchInvariance(t *testing.T) {
	path := writeCorpus(t, []string{"aab", "bbc", "cca", "dead", "beef"})

	dfSmallBatch := NewDF()
	if _, err := ComputeDF(context.Background(), dfSmallBatch, path, 2, ngram.UnitByte, 1, 1, nil, nil); err != nil {
		t.Fatalf("ComputeDF (batch=1): %v", err)
	}

	dfLargeBatch := NewDF()
	if _, err := ComputeDF(context.Background(), dfLargeBatch, path, 2, ngram.UnitByte, 1, 1000, nil, nil); err != nil {
		t.Fatalf("ComputeDF (batch=1000): %v", err)
	}

	if dfSmallBatch.Len() != dfLargeBatch.Len() {
		t.Fatalf("expected identical table sizes across batch sizes, got %d vs %d", dfSmallBatch.Len(), dfLargeBatch.Len())
	}
	for hash, count := range dfSmallBatch.counts {
		other, ok := dfLargeBatch.Lookup(hash)
		if !ok || other != count {
			t.Fatalf("hash %d: expected count %d in both tables, got (%d, %v) in large-batch table", hash, count, other, ok)
		}
	}
}

func TestComputeDFMinCountDropsRareNgrams(t *testing.T) {
	path := writeCorpus(t, []string{"aaaa", "bbbb"})

	df := NewDF()
	if _, err := ComputeDF(context.Background(), df, path, 2, ngram.UnitByte, 2, 10, nil, nil); err != nil {
		t.Fatalf("ComputeDF: %v", err)
	}
	if df.Len() != 0 {
		t.Fatalf("expected no n-gram to reach min_count 2 across disjoint documents, got %d entries", df.Len())
	}
}

func TestComputeDFEmptyCorpus(t *testing.T) {
	path := writeCorpus(t, nil)

	df := NewDF()
	docCount, err := ComputeDF(context.Background(), df, path, 2, ngram.UnitByte, 1, 10, nil, nil)
	if err != nil {
		t.Fatalf("ComputeDF: %v", err)
	}
	if docCount != 0 {
		t.Fatalf("expected 0 documents, got %d", docCount)
	}
	if df.Len() != 0 {
		t.Fatalf("expected empty table, got %d entries", df.Len())
	}
}

func TestComputeDFSecondCorpusDoesNotRecount(t *testing.T) {
	firstPath := writeCorpus(t, []string{"aaaa"})
	secondPath := writeCorpus(t, []string{"aaaa", "aaaa"})

	df := NewDF()
	if _, err := ComputeDF(context.Background(), df, firstPath, 1, ngram.UnitByte, 1, 10, nil, nil); err != nil {
		t.Fatalf("ComputeDF (first corpus): %v", err)
	}
	hash := <-singleByteHash('a')
	firstCount, _ := df.Lookup(hash)
	if firstCount != 1 {
		t.Fatalf("expected count 1 after first corpus, got %d", firstCount)
	}

	if _, err := ComputeDF(context.Background(), df, secondPath, 1, ngram.UnitByte, 1, 10, nil, nil); err != nil {
		t.Fatalf("ComputeDF (second corpus): %v", err)
	}
	secondCount, _ := df.Lookup(hash)
	if secondCount != firstCount {
		t.Fatalf("expected count to stay frozen at %d once finalized, got %d", firstCount, secondCount)
	}
}

// singleByteHash computes the xxhash of a single repeated byte n-gram of
// size 1 using the package under test's own extractor, so the expected
// values in these tests never drift from the hashing scheme.
func singleByteHash(b byte) chan uint64 {
	ch := make(chan uint64, 1)
	for h := range ngram.Extract([]byte{b}, 1, ngram.UnitByte) {
		ch <- h
		break
	}
	close(ch)
	return ch
}
