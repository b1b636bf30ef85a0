package scorer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/bitextor/docalign/internal/codec"
	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/internal/refindex"
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

func TestScoreIdenticalDocumentsReachTopScore(t *testing.T) {
	refPath := writeCorpus(t, []string{"hello world"})
	targetPath := writeCorpus(t, []string{"hello world"})

	df := docfreq.NewDF()
	for h := range ngram.Extract([]byte("hello world"), 3, ngram.UnitByte) {
		df.Set(h, 2)
	}

	index, refCount, err := refindex.Build(context.Background(), refPath, 3, ngram.UnitByte, 2, df, docfreq.NewPrunedSet(), 2, nil)
	if err != nil {
		t.Fatalf("refindex.Build: %v", err)
	}
	if refCount != 1 {
		t.Fatalf("expected 1 reference document, got %d", refCount)
	}

	sink := NewCollectSink()
	targetCount, err := Run(context.Background(), targetPath, 3, ngram.UnitByte, 2, df, docfreq.NewPrunedSet(), index, 0.0, sink, 2, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if targetCount != 1 {
		t.Fatalf("expected 1 target document, got %d", targetCount)
	}
	if len(sink.Pairs) != 1 {
		t.Fatalf("expected exactly one scored pair, got %d", len(sink.Pairs))
	}
	if sink.Pairs[0].RefID != 1 || sink.Pairs[0].TargetID != 1 {
		t.Fatalf("expected pair (1,1), got %+v", sink.Pairs[0])
	}
	if sink.Pairs[0].Score < 0.99 {
		t.Fatalf("expected near-1.0 cosine similarity for identical documents, got %f", sink.Pairs[0].Score)
	}
}

func TestScoreThresholdFiltersLowScoringPairs(t *testing.T) {
	refPath := writeCorpus(t, []string{"aaa", "bbb"})
	targetPath := writeCorpus(t, []string{"aaa"})

	df := docfreq.NewDF()
	for _, s := range []string{"aaa", "bbb"} {
		for h := range ngram.Extract([]byte(s), 2, ngram.UnitByte) {
			df.Set(h, 1)
		}
	}

	index, _, err := refindex.Build(context.Background(), refPath, 2, ngram.UnitByte, 3, df, docfreq.NewPrunedSet(), 2, nil)
	if err != nil {
		t.Fatalf("refindex.Build: %v", err)
	}

	sink := NewCollectSink()
	if _, err := Run(context.Background(), targetPath, 2, ngram.UnitByte, 3, df, docfreq.NewPrunedSet(), index, 1.1, sink, 2, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.Pairs) != 0 {
		t.Fatalf("expected no pairs to clear an unreachable threshold, got %+v", sink.Pairs)
	}
}

func TestPrintAllSinkWritesTabSeparated(t *testing.T) {
	var buf stubWriter
	sink := NewPrintAllSink(&buf)
	sink.Record(0.5, 1, 2)
	sink.Record(0.75, 3, 4)

	lines := buf.lines()
	sort.Strings(lines)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines written, got %d: %v", len(lines), lines)
	}
}

type stubWriter struct {
	data []byte
}

func (w *stubWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *stubWriter) lines() []string {
	var lines []string
	start := 0
	for i, b := range w.data {
		if b == '\n' {
			lines = append(lines, string(w.data[start:i]))
			start = i + 1
		}
	}
	return lines
}
