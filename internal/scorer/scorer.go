// Package scorer streams the non-reference corpus against the reference
// index, emitting a similarity score for every (reference, target) pair
// that clears the configured threshold, per spec.md §4.5.
package scorer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/internal/document"
	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/internal/pipeline"
	"github.com/bitextor/docalign/internal/refindex"
	"github.com/bitextor/docalign/internal/vectorizer"
	errs "github.com/bitextor/docalign/pkg/errors"
)

const lineBatchSize = 512

// statsRecorder is satisfied structurally by *metrics.Metrics, the same
// way Overflow/Underflow satisfy internal/pipeline.Recorder.
type statsRecorder interface {
	ObserveBatch(stage string, documents int)
}

// Sink receives every scored pair that clears the threshold. Implementations
// must be safe for concurrent use: Run calls Record from multiple workers.
type Sink interface {
	Record(score float64, refID, targetID int)
}

// Pair is one scored (reference, target) document pair.
type Pair struct {
	Score    float64
	RefID    int
	TargetID int
}

// CollectSink buffers every recorded pair in memory, for callers (the
// greedy matcher) that need the full score set before acting on it.
type CollectSink struct {
	mu    sync.Mutex
	Pairs []Pair
}

// NewCollectSink creates an empty CollectSink.
func NewCollectSink() *CollectSink {
	return &CollectSink{}
}

func (s *CollectSink) Record(score float64, refID, targetID int) {
	s.mu.Lock()
	s.Pairs = append(s.Pairs, Pair{Score: score, RefID: refID, TargetID: targetID})
	s.mu.Unlock()
}

// PrintAllSink writes every recorded pair immediately, tab-separated, to w.
// Used when the caller wants every pair above threshold rather than a
// one-to-one matching.
type PrintAllSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrintAllSink creates a PrintAllSink writing to w.
func NewPrintAllSink(w io.Writer) *PrintAllSink {
	return &PrintAllSink{w: w}
}

func (s *PrintAllSink) Record(score float64, refID, targetID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%.5f\t%d\t%d\n", score, refID, targetID)
}

// Score computes one target document's similarity against every reference
// document it shares an n-gram with, and reports every pair clearing
// threshold to sink. Shared n-grams' tf-idf products are summed per
// reference document id, matching cosine similarity over the sparse
// vectors (both sides are already L2-normalized).
func Score(target vectorizer.DocumentRef, index *refindex.Index, threshold float64, sink Sink) {
	refScores := make(map[int]float64)
	for _, term := range target.Terms {
		for _, posting := range index.Lookup(term.Hash) {
			refScores[posting.DocID] += term.Score * posting.Score
		}
	}
	for refID, score := range refScores {
		if score >= threshold {
			sink.Record(score, refID, target.ID)
		}
	}
}

// Run streams every base64-encoded line in path through workers goroutines:
// each line is read, vectorized against df/pruned, and scored against
// index. It returns the number of documents (lines) read.
func Run(ctx context.Context, path string, ngramSize int, unit ngram.Unit, documentCount int, df *docfreq.DF, pruned *docfreq.PrunedSet, index *refindex.Index, threshold float64, sink Sink, workers int, recorder pipeline.Recorder) (int, error) {
	if workers < 1 {
		workers = 1
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s: %v", errs.ErrIO, path, err)
	}
	defer f.Close()
	reader := bufio.NewReaderSize(f, 1<<20)

	queue := pipeline.NewQueue[[]scoredLine](workers*32, "scorer", recorder)
	group, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		group.Go(func() error {
			return queue.Range(gctx, func(batch []scoredLine) error {
				for _, sl := range batch {
					doc, err := document.Read(sl.id, sl.line, ngramSize, unit)
					if err != nil {
						return fmt.Errorf("reading document %d: %w", sl.id, err)
					}
					ref := vectorizer.Vectorize(doc, documentCount, df, pruned)
					Score(ref, index, threshold, sink)
				}
				if sr, ok := recorder.(statsRecorder); ok {
					sr.ObserveBatch("scorer", len(batch))
				}
				return nil
			})
		})
	}

	lineCount := 0
	feedErr := func() error {
		defer queue.Close()
		batch := make([]scoredLine, 0, lineBatchSize)
		for {
			line, ok, err := readLine(reader)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			lineCount++
			batch = append(batch, scoredLine{id: lineCount, line: line})
			if len(batch) == lineBatchSize {
				if err := queue.Push(gctx, batch); err != nil {
					return err
				}
				batch = make([]scoredLine, 0, lineBatchSize)
			}
		}
		if len(batch) > 0 {
			if err := queue.Push(gctx, batch); err != nil {
				return err
			}
		}
		return nil
	}()

	if err := group.Wait(); err != nil {
		return 0, err
	}
	if feedErr != nil {
		return 0, feedErr
	}
	return lineCount, nil
}

type scoredLine struct {
	id   int
	line string
}

func readLine(r *bufio.Reader) (string, bool, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			if len(line) == 0 {
				return "", false, nil
			}
			return trimNewline(line), true, nil
		}
		return "", false, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return trimNewline(line), true, nil
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
