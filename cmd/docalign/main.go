// Command docalign computes the most-likely document pairings between a
// translated corpus and a target corpus using sparse tf-idf cosine
// scoring over n-gram hashes (spec.md §1-§6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bitextor/docalign/internal/ngram"
	"github.com/bitextor/docalign/pkg/config"
	errs "github.com/bitextor/docalign/pkg/errors"
	"github.com/bitextor/docalign/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// options holds every flag value docalign accepts, already resolved
// through the config > env > flag precedence chain (pkg/config.Load
// applies file and env layers; the subcommand's own flag parse always wins).
type options struct {
	ngramSize   int
	ngramUnit   ngram.Unit
	batchSize   int
	jobs        int
	threshold   float64
	minCount    int
	maxCount    int
	all         bool
	verbose     bool
	cacheAddr   string
	cacheTTL    time.Duration
	historyDSN  string
	metricsAddr string
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) > 0 && args[0] == "serve" {
		return runServeCmd(ctx, args[1:])
	}
	return runAlignCmd(ctx, args)
}

// preScanConfigPath looks for --config in argv before the real flag.Parse
// runs, since the config file's own values need to become this flagset's
// defaults (config.Load must run before flag definitions are built).
func preScanConfigPath(args []string) string {
	fs := flag.NewFlagSet("prescan", flag.ContinueOnError)
	fs.SetOutput(discardWriter{})
	path := fs.String("config", "", "")
	fs.Bool("verbose", false, "")
	_ = fs.Parse(args)
	return *path
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func loadConfigOrDefault(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docalign: %v\n", err)
		cfg, _ = config.Load("")
	}
	return cfg
}

func defaultJobs(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func setupLogging(cfg *config.Config, verbose bool) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger.Setup(level, cfg.Logging.Format)
}

func fail(err error) int {
	code := errs.ExitCode(err)
	slog.Error("docalign failed", "error", err, "exit_code", code)
	fmt.Fprintf(os.Stderr, "docalign: %v\n", err)
	return code
}
