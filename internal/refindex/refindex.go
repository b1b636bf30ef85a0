// Package refindex builds the in-memory inverted index over the reference
// (translated) corpus's tf-idf vectors, per spec.md §4.4: an n-gram hash
// maps to every reference document that carries a nonzero weight for it.
package refindex

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
	"github.com/bitextor/docalign/internal/vectorizer"
	errs "github.com/bitextor/docalign/pkg/errors"
)

// lineBatchSize mirrors docfreq's batching: lines are handed to build
// workers in chunks rather than one at a time, to amortize channel
// overhead across a document's worth of work.
const lineBatchSize = 512

// statsRecorder and mergeRecorder are satisfied structurally by
// *metrics.Metrics, the same way Overflow/Underflow satisfy
// internal/pipeline.Recorder.
type statsRecorder interface {
	ObserveBatch(stage string, documents int)
}

type mergeRecorder interface {
	IndexMerge()
}

// Score records one reference document's tf-idf weight for the n-gram it
// is filed under.
type Score struct {
	DocID int
	Score float64
}

// Index is the inverted posting list: n-gram hash -> every reference
// document carrying a nonzero weight for it. It is read-only once Build
// returns, so lookups after that point take no lock.
type Index struct {
	mu      sync.Mutex // guards entries only during Build; unused afterward
	entries map[uint64][]Score
}

// Lookup returns the postings for hash, or nil if no reference document
// carries it.
func (idx *Index) Lookup(hash uint64) []Score {
	return idx.entries[hash]
}

// Len returns the number of distinct n-grams indexed.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// merge folds a worker's locally built postings into the shared index,
// swapping the larger slice into place first so the append that follows
// copies the fewest elements possible.
func (idx *Index) merge(local map[uint64][]Score) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for hash, scores := range local {
		dest := idx.entries[hash]
		if len(dest) < len(scores) {
			dest, scores = scores, dest
		}
		idx.entries[hash] = append(dest, scores...)
	}
}

// Build reads every base64-encoded line in path, vectorizes it against df
// and pruned, and indexes its terms, fanning the work out across workers
// goroutines. It returns the index and the number of documents (lines)
// read; callers that expect a specific count (the reference corpus must
// have the same line count it had when ComputeDF first scanned it) should
// compare the returned count themselves and surface an invariant error.
func Build(ctx context.Context, path string, ngramSize int, unit ngram.Unit, documentCount int, df *docfreq.DF, pruned *docfreq.PrunedSet, workers int, recorder pipeline.Recorder) (*Index, int, error) {
	if workers < 1 {
		workers = 1
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: opening %s: %v", errs.ErrIO, path, err)
	}
	defer f.Close()
	reader := bufio.NewReaderSize(f, 1<<20)

	idx := &Index{entries: make(map[uint64][]Score)}
	queue := pipeline.NewQueue[[]indexedLine](workers*32, "refindex-build", recorder)
	group, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		group.Go(func() error {
			local := make(map[uint64][]Score)
			err := queue.Range(gctx, func(batch []indexedLine) error {
				for _, il := range batch {
					doc, err := document.Read(il.id, il.line, ngramSize, unit)
					if err != nil {
						return fmt.Errorf("reading document %d: %w", il.id, err)
					}
					ref := vectorizer.Vectorize(doc, documentCount, df, pruned)
					for _, term := range ref.Terms {
						local[term.Hash] = append(local[term.Hash], Score{DocID: ref.ID, Score: term.Score})
					}
				}
				if sr, ok := recorder.(statsRecorder); ok {
					sr.ObserveBatch("refindex", len(batch))
				}
				return nil
			})
			idx.merge(local)
			if mr, ok := recorder.(mergeRecorder); ok {
				mr.IndexMerge()
			}
			return err
		})
	}

	lineCount := 0
	feedErr := func() error {
		defer queue.Close()
		batch := make([]indexedLine, 0, lineBatchSize)
		for {
			line, ok, err := readLine(reader)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			lineCount++
			batch = append(batch, indexedLine{id: lineCount, line: line})
			if len(batch) == lineBatchSize {
				if err := queue.Push(gctx, batch); err != nil {
					return err
				}
				batch = make([]indexedLine, 0, lineBatchSize)
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
		return nil, 0, err
	}
	if feedErr != nil {
		return nil, 0, feedErr
	}
	return idx, lineCount, nil
}

type indexedLine struct {
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
