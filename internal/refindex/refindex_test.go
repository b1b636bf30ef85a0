package refindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitextor/docalign/internal/codec"
	"github.com/bitextor/docalign/internal/docfreq"
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

func TestBuildIndexesKnownTerms(t *testing.T) {
	path := writeCorpus(t, []string{"aab", "bbc"})

	df := docfreq.NewDF()
	for _, b := range []byte{'a', 'b', 'c'} {
		for h := range ngram.Extract([]byte{b}, 1, ngram.UnitByte) {
			df.Set(h, 2)
		}
	}

	idx, lineCount, err := Build(context.Background(), path, 1, ngram.UnitByte, 4, df, docfreq.NewPrunedSet(), 4, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if lineCount != 2 {
		t.Fatalf("expected 2 documents, got %d", lineCount)
	}

	var hashA, hashB uint64
	for h := range ngram.Extract([]byte{'a'}, 1, ngram.UnitByte) {
		hashA = h
	}
	for h := range ngram.Extract([]byte{'b'}, 1, ngram.UnitByte) {
		hashB = h
	}

	postingsA := idx.Lookup(hashA)
	if len(postingsA) != 1 || postingsA[0].DocID != 1 {
		t.Fatalf("expected hash 'a' indexed only under doc 1, got %+v", postingsA)
	}
	postingsB := idx.Lookup(hashB)
	if len(postingsB) != 2 {
		t.Fatalf("expected hash 'b' indexed under both documents, got %+v", postingsB)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	path := writeCorpus(t, nil)
	df := docfreq.NewDF()

	idx, lineCount, err := Build(context.Background(), path, 2, ngram.UnitByte, 0, df, docfreq.NewPrunedSet(), 4, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if lineCount != 0 {
		t.Fatalf("expected 0 documents, got %d", lineCount)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected an empty index, got %d entries", idx.Len())
	}
}

func TestBuildSkipsPrunedTerms(t *testing.T) {
	path := writeCorpus(t, []string{"aaaa"})
	df := docfreq.NewDF()
	pruned := docfreq.NewPrunedSet()
	for h := range ngram.Extract([]byte("aa"), 2, ngram.UnitByte) {
		pruned.Add(h)
	}

	idx, _, err := Build(context.Background(), path, 2, ngram.UnitByte, 1, df, pruned, 2, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected no postings when the only n-gram is pruned, got %d", idx.Len())
	}
}
