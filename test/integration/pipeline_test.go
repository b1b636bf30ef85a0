// Package integration verifies the interaction between docalign's core
// components end to end: document frequency computation, reference index
// construction, streaming scoring and greedy matching, wired together the
// same way cmd/docalign does but exercised directly against temp files
// instead of a subprocess.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/internal/matcher"
	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/internal/refindex"
	"github.com/bitextor/docalign/internal/scorer"
)

// writeCorpus base64-encodes each line and writes them newline-separated
// to a temp file, mirroring the wire format docalign's CLI consumes.
func writeCorpus(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(line)))
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("writing corpus %s: %v", name, err)
	}
	return path
}

// TestPipelineAlignsIdenticalDocuments runs the full docfreq → refindex →
// scorer → matcher chain over two corpora that share most of their
// content, and expects every translated document to pair with its obvious
// target counterpart.
func TestPipelineAlignsIdenticalDocuments(t *testing.T) {
	dir := t.TempDir()
	translated := []string{
		"the quick brown fox jumps over the lazy dog",
		"a journey of a thousand miles begins with a single step",
		"to be or not to be that is the question",
	}
	target := []string{
		"the quick brown fox jumps over the lazy dog",
		"some entirely unrelated sentence about weather patterns",
		"a journey of a thousand miles begins with a single step",
		"to be or not to be that is the question",
	}

	translatedPath := writeCorpus(t, dir, "translated.b64", translated)
	targetPath := writeCorpus(t, dir, "target.b64", target)

	ctx := context.Background()
	df := docfreq.NewDF()
	if _, err := docfreq.ComputeDF(ctx, df, translatedPath, 3, ngram.UnitByte, 1, 1000, nil, nil); err != nil {
		t.Fatalf("ComputeDF(translated): %v", err)
	}
	if _, err := docfreq.ComputeDF(ctx, df, targetPath, 3, ngram.UnitByte, 1, 1000, nil, nil); err != nil {
		t.Fatalf("ComputeDF(target): %v", err)
	}
	pruned := df.Prune(1, 1000)

	documentCount := len(translated) + len(target)
	index, refCount, err := refindex.Build(ctx, translatedPath, 3, ngram.UnitByte, documentCount, df, pruned, 2, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if refCount != len(translated) {
		t.Fatalf("refCount = %d, want %d", refCount, len(translated))
	}

	sink := scorer.NewCollectSink()
	targetCount, err := scorer.Run(ctx, targetPath, 3, ngram.UnitByte, documentCount, df, pruned, index, 0.05, sink, 2, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if targetCount != len(target) {
		t.Fatalf("targetCount = %d, want %d", targetCount, len(target))
	}

	matched := matcher.Match(sink.Pairs, len(translated), len(target))
	if len(matched) != len(translated) {
		t.Fatalf("matched %d pairs, want %d", len(matched), len(translated))
	}

	want := map[int]int{1: 1, 2: 3, 3: 4}
	got := make(map[int]int, len(matched))
	for _, p := range matched {
		got[p.RefID] = p.TargetID
		if p.Score <= 0 {
			t.Errorf("pair (%d,%d) has non-positive score %f", p.RefID, p.TargetID, p.Score)
		}
	}
	for refID, targetID := range want {
		if got[refID] != targetID {
			t.Errorf("translated doc %d matched target %d, want %d", refID, got[refID], targetID)
		}
	}
}

// TestPipelineThresholdExcludesWeakMatches checks that no pair is emitted
// when the two corpora share only a few byte bigrams ("et", "ta", "a ")
// and their score stays below the threshold.
func TestPipelineThresholdExcludesWeakMatches(t *testing.T) {
	dir := t.TempDir()
	translatedPath := writeCorpus(t, dir, "translated.b64", []string{"alpha beta gamma delta"})
	targetPath := writeCorpus(t, dir, "target.b64", []string{"epsilon zeta eta theta"})

	ctx := context.Background()
	df := docfreq.NewDF()
	if _, err := docfreq.ComputeDF(ctx, df, translatedPath, 2, ngram.UnitByte, 1, 1000, nil, nil); err != nil {
		t.Fatalf("ComputeDF(translated): %v", err)
	}
	if _, err := docfreq.ComputeDF(ctx, df, targetPath, 2, ngram.UnitByte, 1, 1000, nil, nil); err != nil {
		t.Fatalf("ComputeDF(target): %v", err)
	}
	pruned := df.Prune(1, 1000)

	index, _, err := refindex.Build(ctx, translatedPath, 2, ngram.UnitByte, 2, df, pruned, 1, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sink := scorer.NewCollectSink()
	if _, err := scorer.Run(ctx, targetPath, 2, ngram.UnitByte, 2, df, pruned, index, 0.01, sink, 1, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.Pairs) != 0 {
		t.Fatalf("got %d pairs for weakly overlapping corpora, want 0", len(sink.Pairs))
	}
}
