package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/internal/refindex"
	"github.com/bitextor/docalign/internal/rpc"
	errs "github.com/bitextor/docalign/pkg/errors"
)

// runServeCmd builds a reference index from a single translated corpus and
// keeps it resident in memory, answering Score RPCs over TCP so repeated
// probe documents never pay index construction cost again
// (SPEC_FULL.md §3 item 9).
func runServeCmd(ctx context.Context, args []string) int {
	cfg := loadConfigOrDefault(preScanConfigPath(args))

	fs := flag.NewFlagSet("docalign serve", flag.ContinueOnError)
	ngramSize := fs.Int("ngram_size", cfg.Pipeline.NgramSize, "n-gram window size")
	ngramUnit := fs.String("ngram_unit", cfg.Pipeline.NgramUnit, "n-gram segmentation unit: byte|token")
	minCount := fs.Int("min_count", cfg.Pipeline.MinCount, "minimum document frequency kept in DF")
	maxCount := fs.Int("max_count", cfg.Pipeline.MaxCount, "maximum document frequency before pruning")
	batchSize := fs.Int("batch_size", cfg.Pipeline.BatchSize, "max distinct n-grams per DF pass")
	threshold := fs.Float64("threshold", cfg.Pipeline.Threshold, "minimum cosine score to emit")
	jobs := fs.Int("jobs", cfg.Pipeline.Jobs, "worker count (0 = all hardware threads)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	addr := fs.String("rpc-addr", cfg.RPC.Addr, "address to listen on for Score RPCs")
	fs.String("config", "", "path to a YAML config file")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "docalign: %v\n", err)
		return 1
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "docalign: usage: docalign serve [options] TRANSLATED-TOKENS\n")
		return 1
	}
	translatedPath := rest[0]

	setupLogging(cfg, *verbose)
	workers := defaultJobs(*jobs)
	unit := ngram.ParseUnit(*ngramUnit)
	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = ":7070"
	}

	translatedCount, err := countLines(translatedPath)
	if err != nil {
		return fail(err)
	}

	df := docfreq.NewDF()
	progress := func(pass int, newNgrams, batchNgrams, readOffset, totalDocs int) {
		slog.Debug("df pass complete", "pass", pass, "new_ngrams", newNgrams, "batch_ngrams", batchNgrams)
	}
	if _, err := docfreq.ComputeDF(ctx, df, translatedPath, *ngramSize, unit, *minCount, *batchSize, progress, nil); err != nil {
		return fail(err)
	}
	pruned := df.Prune(uint64(*minCount), uint64(*maxCount))

	index, refCount, err := refindex.Build(ctx, translatedPath, *ngramSize, unit, translatedCount, df, pruned, workers, nil)
	if err != nil {
		return fail(err)
	}
	if refCount != translatedCount {
		return fail(errs.Newf(errs.ErrInvariantViolation, 3, "translated corpus line count changed between passes: %d then %d", translatedCount, refCount))
	}
	slog.Info("reference index built, serving Score RPCs", "documents", refCount, "addr", listenAddr)

	svc := &rpc.ScoreService{
		Index:         index,
		DF:            df,
		Pruned:        pruned,
		DocumentCount: translatedCount,
		NgramSize:     *ngramSize,
		Unit:          unit,
		Threshold:     *threshold,
	}
	server := rpc.NewScoreServer(svc)

	serveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-serveCtx.Done()
		slog.Info("shutting down score server")
		server.Stop()
	}()

	if err := server.Serve(listenAddr); err != nil {
		return fail(err)
	}
	return 0
}
