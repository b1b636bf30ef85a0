package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/internal/matcher"
	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/internal/refindex"
	"github.com/bitextor/docalign/internal/scorer"
	"github.com/bitextor/docalign/pkg/config"
	"github.com/bitextor/docalign/pkg/dfcache"
	errs "github.com/bitextor/docalign/pkg/errors"
	"github.com/bitextor/docalign/pkg/health"
	"github.com/bitextor/docalign/pkg/history"
	"github.com/bitextor/docalign/pkg/metrics"
)

const outputHeader = "mt_doc_aligner_score\tidx_translated\tidx_trg"

// parseAlignFlags builds the docalign flag set, seeded with cfg's values
// as defaults so file/env layers win over built-in defaults but always
// lose to an explicit flag on the command line.
func parseAlignFlags(args []string, cfg *config.Config) (*options, string, string, error) {
	fs := flag.NewFlagSet("docalign", flag.ContinueOnError)
	opts := &options{}
	fs.IntVar(&opts.ngramSize, "ngram_size", cfg.Pipeline.NgramSize, "n-gram window size")
	ngramUnit := fs.String("ngram_unit", cfg.Pipeline.NgramUnit, "n-gram segmentation unit: byte|token")
	fs.IntVar(&opts.batchSize, "batch_size", cfg.Pipeline.BatchSize, "max distinct n-grams per DF pass")
	fs.IntVar(&opts.jobs, "jobs", cfg.Pipeline.Jobs, "worker count (0 = all hardware threads)")
	fs.Float64Var(&opts.threshold, "threshold", cfg.Pipeline.Threshold, "minimum cosine score to emit")
	fs.IntVar(&opts.minCount, "min_count", cfg.Pipeline.MinCount, "minimum document frequency kept in DF")
	fs.IntVar(&opts.maxCount, "max_count", cfg.Pipeline.MaxCount, "maximum document frequency before pruning")
	fs.BoolVar(&opts.all, "all", cfg.Pipeline.All, "emit every pair clearing threshold instead of one-to-one matching")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	fs.StringVar(&opts.cacheAddr, "cache-addr", cfg.Cache.Addr, "optional Redis address for DF memoization")
	fs.StringVar(&opts.historyDSN, "history-dsn", cfg.History.DSN, "optional Postgres DSN for run-history recording")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", cfg.Metrics.Addr, "optional address to serve Prometheus /metrics")
	fs.String("config", "", "path to a YAML config file")

	if err := fs.Parse(args); err != nil {
		return nil, "", "", errs.New(errs.ErrUsage, 1, err.Error())
	}
	opts.ngramUnit = ngram.ParseUnit(*ngramUnit)
	opts.jobs = defaultJobs(opts.jobs)
	opts.cacheTTL = cfg.Cache.TTL

	rest := fs.Args()
	if len(rest) != 2 {
		return nil, "", "", errs.Newf(errs.ErrUsage, 1, "usage: docalign [options] TRANSLATED-TOKENS TARGET-TOKENS (got %d positional args)", len(rest))
	}
	return opts, rest[0], rest[1], nil
}

func runAlignCmd(ctx context.Context, args []string) int {
	cfg := loadConfigOrDefault(preScanConfigPath(args))
	opts, translatedPath, targetPath, err := parseAlignFlags(args, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docalign: %v\n", err)
		return errs.ExitCode(err)
	}
	setupLogging(cfg, opts.verbose)

	startedAt := time.Now()
	var m *metrics.Metrics
	if opts.metricsAddr != "" {
		m = metrics.New()
		shutdown := metrics.StartServer(opts.metricsAddr)
		defer shutdown(context.Background())
	}

	if err := preflight(ctx, opts); err != nil {
		return fail(err)
	}

	result, err := alignCorpora(ctx, opts, translatedPath, targetPath, m)
	if err != nil {
		return fail(err)
	}

	if opts.historyDSN != "" {
		recordHistory(ctx, opts, translatedPath, targetPath, result, startedAt)
	}

	slog.Info("docalign completed",
		"translated_count", result.translatedCount,
		"target_count", result.targetCount,
		"pairs_emitted", result.pairsEmitted,
		"duration", time.Since(startedAt),
	)
	return 0
}

// preflight runs a concurrent health check against any configured optional
// backend (cache/history) before the pipeline starts, per
// SPEC_FULL.md §3 item 8. A degraded backend never blocks the run — it is
// only logged, since the core pipeline's correctness never depends on
// either being reachable.
func preflight(ctx context.Context, opts *options) error {
	checker := health.NewChecker()
	registered := false

	if opts.cacheAddr != "" {
		registered = true
		checker.Register("dfcache", func(ctx context.Context) health.ComponentHealth {
			c, err := dfcache.New(opts.cacheAddr, 0, nil)
			if err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			c.Close()
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if opts.historyDSN != "" {
		registered = true
		checker.Register("history", func(ctx context.Context) health.ComponentHealth {
			h, err := history.New(opts.historyDSN)
			if err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			h.Close()
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if !registered {
		return nil
	}

	report := checker.Run(ctx)
	for name, comp := range report.Components {
		if comp.Status != health.StatusUp {
			slog.Warn("optional backend degraded, continuing without it", "backend", name, "message", comp.Message)
		}
	}
	return nil
}

type alignResult struct {
	translatedCount int
	targetCount     int
	pairsEmitted    int
}

// alignCorpora runs the full pipeline of spec.md §4: DF computation over
// both corpora, pruning, reference index construction over translatedPath,
// and streaming scoring of targetPath, finishing with either an --all
// threshold dump or a one-to-one greedy match.
func alignCorpora(ctx context.Context, opts *options, translatedPath, targetPath string, m *metrics.Metrics) (alignResult, error) {
	translatedCount, err := countLines(translatedPath)
	if err != nil {
		return alignResult{}, err
	}
	targetCount, err := countLines(targetPath)
	if err != nil {
		return alignResult{}, err
	}
	documentCount := translatedCount + targetCount

	dfStart := time.Now()
	df, pruned, err := buildDF(ctx, opts, translatedPath, targetPath, m)
	if err != nil {
		return alignResult{}, err
	}
	observeDuration(m, "docfreq", dfStart)
	slog.Info("document frequency table ready", "distinct_ngrams", df.Len(), "pruned_ngrams", pruned.Len())

	var recorder interface {
		Overflow(string)
		Underflow(string)
	}
	if m != nil {
		recorder = m
	}

	indexStart := time.Now()
	index, refCount, err := refindex.Build(ctx, translatedPath, opts.ngramSize, opts.ngramUnit, documentCount, df, pruned, opts.jobs, recorder)
	if err != nil {
		return alignResult{}, err
	}
	observeDuration(m, "refindex", indexStart)
	if refCount != translatedCount {
		return alignResult{}, errs.Newf(errs.ErrInvariantViolation, 3, "translated corpus line count changed between passes: %d then %d", translatedCount, refCount)
	}
	slog.Info("reference index built", "documents", refCount, "distinct_ngrams", index.Len())

	fmt.Println(outputHeader)

	scoreStart := time.Now()
	var pairsEmitted int
	if opts.all {
		sink := scorer.NewPrintAllSink(os.Stdout)
		n, err := scorer.Run(ctx, targetPath, opts.ngramSize, opts.ngramUnit, documentCount, df, pruned, index, opts.threshold, sink, opts.jobs, recorder)
		if err != nil {
			return alignResult{}, err
		}
		if n != targetCount {
			return alignResult{}, errs.Newf(errs.ErrInvariantViolation, 3, "target corpus line count changed between passes: %d then %d", targetCount, n)
		}
	} else {
		sink := scorer.NewCollectSink()
		n, err := scorer.Run(ctx, targetPath, opts.ngramSize, opts.ngramUnit, documentCount, df, pruned, index, opts.threshold, sink, opts.jobs, recorder)
		if err != nil {
			return alignResult{}, err
		}
		if n != targetCount {
			return alignResult{}, errs.Newf(errs.ErrInvariantViolation, 3, "target corpus line count changed between passes: %d then %d", targetCount, n)
		}
		matched := matcher.Match(sink.Pairs, translatedCount, targetCount)
		for _, p := range matched {
			fmt.Printf("%.5f\t%d\t%d\n", p.Score, p.RefID, p.TargetID)
		}
		pairsEmitted = len(matched)
	}
	observeDuration(m, "scorer", scoreStart)
	if m != nil {
		m.ScoredPairsTotal.Add(float64(pairsEmitted))
	}

	return alignResult{translatedCount: translatedCount, targetCount: targetCount, pairsEmitted: pairsEmitted}, nil
}

// buildDF computes the shared DF table and PrunedSet across both corpora,
// optionally memoized in Redis (pkg/dfcache) keyed by a content hash of
// both files and the parameters that affect DF computation.
func buildDF(ctx context.Context, opts *options, translatedPath, targetPath string, m *metrics.Metrics) (*docfreq.DF, *docfreq.PrunedSet, error) {
	compute := func() (*docfreq.DF, *docfreq.PrunedSet, error) {
		df := docfreq.NewDF()
		progress := func(pass int, newNgrams, batchNgrams, readOffset, totalDocs int) {
			slog.Debug("df pass complete", "pass", pass, "new_ngrams", newNgrams, "batch_ngrams", batchNgrams, "read_offset", readOffset, "total_docs", totalDocs)
			if m != nil {
				m.DFPassesTotal.Inc()
				m.DFMergedNgramsTotal.Add(float64(newNgrams))
			}
		}
		var recorder interface {
			Overflow(string)
			Underflow(string)
		}
		if m != nil {
			recorder = m
		}
		if _, err := docfreq.ComputeDF(ctx, df, translatedPath, opts.ngramSize, opts.ngramUnit, opts.minCount, opts.batchSize, progress, recorder); err != nil {
			return nil, nil, err
		}
		if _, err := docfreq.ComputeDF(ctx, df, targetPath, opts.ngramSize, opts.ngramUnit, opts.minCount, opts.batchSize, progress, recorder); err != nil {
			return nil, nil, err
		}
		pruned := df.Prune(uint64(opts.minCount), uint64(opts.maxCount))
		return df, pruned, nil
	}

	if opts.cacheAddr == "" {
		return compute()
	}

	var counters dfcacheCounters
	if m != nil {
		counters = dfcacheCounters{m: m}
	}
	cache, err := dfcache.New(opts.cacheAddr, opts.cacheTTL, counters)
	if err != nil {
		slog.Warn("dfcache unavailable, computing without a cache", "error", err)
		return compute()
	}
	defer cache.Close()

	key, err := cacheKey(translatedPath, targetPath, opts)
	if err != nil {
		slog.Warn("failed to derive cache key, computing without a cache", "error", err)
		return compute()
	}
	return cache.GetOrCompute(ctx, key, compute)
}

// observeDuration records the wall-clock time of one pipeline phase
// ("docfreq", "refindex", "scorer") when metrics are enabled.
func observeDuration(m *metrics.Metrics, phase string, start time.Time) {
	if m != nil {
		m.RunDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}

type dfcacheCounters struct {
	m *metrics.Metrics
}

func (c dfcacheCounters) CacheHit() {
	if c.m != nil {
		c.m.CacheHitsTotal.Inc()
	}
}

func (c dfcacheCounters) CacheMiss() {
	if c.m != nil {
		c.m.CacheMissesTotal.Inc()
	}
}

// cacheKey hashes both corpus files' contents plus every parameter that
// affects DF computation, so a change to either corpus or to
// ngram_size/min_count/max_count naturally invalidates the cache entry.
func cacheKey(translatedPath, targetPath string, opts *options) (string, error) {
	h := sha256.New()
	for _, path := range []string{translatedPath, targetPath} {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("%w: opening %s: %v", errs.ErrIO, path, err)
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", fmt.Errorf("%w: hashing %s: %v", errs.ErrIO, path, err)
		}
		f.Close()
	}
	fmt.Fprintf(h, "|ngram_size=%d|unit=%d|min_count=%d|max_count=%d", opts.ngramSize, opts.ngramUnit, opts.minCount, opts.maxCount)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s: %v", errs.ErrIO, path, err)
	}
	defer f.Close()

	count := 0
	buf := make([]byte, 1<<20)
	lastByteNewline := true
	for {
		n, err := f.Read(buf)
		if n > 0 {
			for _, b := range buf[:n] {
				if b == '\n' {
					count++
				}
			}
			lastByteNewline = buf[n-1] == '\n'
		}
		if err == io.EOF {
			if n > 0 && !lastByteNewline {
				count++
			}
			return count, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%w: reading %s: %v", errs.ErrIO, path, err)
		}
	}
}

func recordHistory(ctx context.Context, opts *options, translatedPath, targetPath string, result alignResult, startedAt time.Time) {
	h, err := history.New(opts.historyDSN)
	if err != nil {
		slog.Warn("history recording unavailable", "error", err)
		return
	}
	defer h.Close()

	run := history.Run{
		TranslatedPath:  translatedPath,
		TargetPath:      targetPath,
		NgramSize:       opts.ngramSize,
		MinCount:        opts.minCount,
		MaxCount:        opts.maxCount,
		Threshold:       opts.threshold,
		TranslatedCount: result.translatedCount,
		TargetCount:     result.targetCount,
		PairsEmitted:    result.pairsEmitted,
		OneToOne:        !opts.all,
		Duration:        time.Since(startedAt),
		StartedAt:       startedAt,
	}
	if err := h.Record(ctx, run); err != nil {
		slog.Warn("failed to record run history", "error", err)
	}
}
