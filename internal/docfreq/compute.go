package docfreq

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/bitextor/docalign/internal/codec"
	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/internal/pipeline"
	errs "github.com/bitextor/docalign/pkg/errors"
)

// countingWorkers is the fixed number of goroutines used in a pass's
// counting phase, matching the source's kCountingThreads.
const countingWorkers = 16

// lineBatchSize is the number of lines distributed to a worker in one
// batch (spec.md §4.7).
const lineBatchSize = 512

// statsRecorder is satisfied structurally by *metrics.Metrics, mirroring
// pipeline.Recorder's Overflow/Underflow pattern: a recorder passed in as
// pipeline.Recorder may also implement this richer interface.
type statsRecorder interface {
	ObserveBatch(stage string, documents int)
}

// Progress is invoked after every outer pass with diagnostics equivalent to
// the source's stderr logging; it may be nil.
type Progress func(pass int, newNgrams, batchNgrams, readOffset, totalDocs int)

// ComputeDF accumulates into df the document-frequency counts observed in
// one corpus, in bounded memory, per spec.md §4.2. It may be called again
// with the same df to accumulate a second corpus. It returns the number of
// documents (lines) in path.
//
// Note: an n-gram already present in df (because an earlier ComputeDF call,
// possibly over a different corpus, already finalized it) is never
// recounted here — a term's df count freezes at whatever corpus first
// drove it above min_count, matching the reference implementation.
func ComputeDF(ctx context.Context, df *DF, path string, ngramSize int, unit ngram.Unit, minCount, batchSize int, progress Progress, recorder pipeline.Recorder) (int, error) {
	offset := 0
	documentCount := -1 // unknown until the first pass completes a full scan
	pass := 0

	for documentCount < 0 || offset < documentCount {
		// Reading phase: reopen, skip to offset, discover distinct
		// not-yet-known n-grams up to batchSize, assigning each a slot.
		batchDF := make(map[uint64]uint32)

		reader, closeReader, err := openLineReader(path)
		if err != nil {
			return 0, err
		}
		if err := skipLines(reader, offset); err != nil {
			closeReader()
			return 0, err
		}
		for len(batchDF) < batchSize {
			line, ok, err := readLine(reader)
			if err != nil {
				closeReader()
				return 0, err
			}
			if !ok {
				break
			}
			offset++

			vocab, err := readVocab(line, ngramSize, unit)
			if err != nil {
				closeReader()
				return 0, fmt.Errorf("reading document %d: %w", offset, err)
			}
			for hash := range vocab {
				if df.has(hash) {
					continue
				}
				if _, exists := batchDF[hash]; !exists {
					batchDF[hash] = uint32(len(batchDF))
				}
			}
		}
		closeReader()

		// Counting phase: reopen from the very start and scan the entire
		// corpus across countingWorkers goroutines, each with its own
		// slot-indexed counter array (no locking on the hot path).
		counters := make([][]uint32, countingWorkers)
		for i := range counters {
			counters[i] = make([]uint32, len(batchDF))
		}

		totalDocs, err := countPass(ctx, path, batchDF, counters, ngramSize, unit, recorder)
		if err != nil {
			return 0, err
		}
		if documentCount < 0 {
			documentCount = totalDocs
		} else if totalDocs != documentCount {
			return 0, fmt.Errorf("%w: document count changed from %d to %d while rereading %s", errs.ErrInvariantViolation, documentCount, totalDocs, path)
		}

		// Merge: entries whose summed count clears min_count become
		// permanent DF entries; the rest are discarded for this pass.
		newNgrams := 0
		for hash, slot := range batchDF {
			var total uint64
			for i := range counters {
				total += uint64(counters[i][slot])
			}
			if total >= uint64(minCount) {
				df.Set(hash, total)
				newNgrams++
			}
		}

		if progress != nil {
			progress(pass, newNgrams, len(batchDF), offset, documentCount)
		}
		pass++

		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}

	return documentCount, nil
}

// countPass reopens path from the start and streams every line through
// countingWorkers goroutines via a bounded channel, tallying how many
// documents contain each batchDF entry into per-worker counter slices. It
// returns the total number of documents (lines) in path.
func countPass(ctx context.Context, path string, batchDF map[uint64]uint32, counters [][]uint32, ngramSize int, unit ngram.Unit, recorder pipeline.Recorder) (int, error) {
	reader, closeReader, err := openLineReader(path)
	if err != nil {
		return 0, err
	}
	defer closeReader()

	queue := pipeline.NewQueue[[]string](countingWorkers*32, "df-counting", recorder)
	group, gctx := errgroup.WithContext(ctx)

	for w := 0; w < countingWorkers; w++ {
		w := w
		group.Go(func() error {
			return queue.Range(gctx, func(batch []string) error {
				for _, line := range batch {
					vocab, err := readVocab(line, ngramSize, unit)
					if err != nil {
						return err
					}
					for hash := range vocab {
						if slot, ok := batchDF[hash]; ok {
							counters[w][slot]++
						}
					}
				}
				if sr, ok := recorder.(statsRecorder); ok {
					sr.ObserveBatch("docfreq", len(batch))
				}
				return nil
			})
		})
	}

	totalRead := 0
	feedErr := func() error {
		defer queue.Close()
		batch := make([]string, 0, lineBatchSize)
		for {
			line, ok, err := readLine(reader)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			totalRead++
			batch = append(batch, line)
			if len(batch) == lineBatchSize {
				if err := queue.Push(gctx, batch); err != nil {
					return err
				}
				batch = make([]string, 0, lineBatchSize)
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
	return totalRead, nil
}

func readVocab(line string, ngramSize int, unit ngram.Unit) (map[uint64]struct{}, error) {
	body, err := codec.Decode(line)
	if err != nil {
		return nil, err
	}
	vocab := make(map[uint64]struct{})
	for h := range ngram.Extract(body, ngramSize, unit) {
		vocab[h] = struct{}{}
	}
	return vocab, nil
}

func openLineReader(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening %s: %v", errs.ErrIO, path, err)
	}
	return bufio.NewReaderSize(f, 1<<20), func() { f.Close() }, nil
}

func skipLines(r *bufio.Reader, n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadString('\n'); err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: expected at least %d lines", errs.ErrInvariantViolation, n)
			}
			return fmt.Errorf("%w: %v", errs.ErrIO, err)
		}
	}
	return nil
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
