// Command snapgen assembles a layout from a piece library under a growth
// strategy and records the run.
//
// Usage:
//
//	snapgen -config run.yaml [-seed n] [-store dir] [-v]
//	snapgen -store dir -list 10
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/snapgen/pkg/config"
	"github.com/chazu/snapgen/pkg/runstore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns its exit code: 0 on success, 1 on
// failure, 2 on bad usage and 3 when the layout fails validation.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("snapgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "run configuration (YAML)")
		seed       = fs.Int64("seed", 0, "override the configured seed")
		storeDir   = fs.String("store", "", "directory for run records; empty disables persistence")
		list       = fs.Int("list", 0, "list the n most recent stored runs and exit")
		verbose    = fs.Bool("v", false, "log every placement")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := log.New(stderr, "[snapgen] ", log.LstdFlags|log.Lmicroseconds)

	var store *runstore.Store
	if *storeDir != "" {
		s, err := runstore.Open(*storeDir)
		if err != nil {
			logger.Printf("open store: %v", err)
			return 1
		}
		defer s.Close()
		store = s
	}

	if *list > 0 {
		if store == nil {
			logger.Print("-list requires -store")
			return 2
		}
		if err := printRuns(stdout, store, *list); err != nil {
			logger.Print(err)
			return 1
		}
		return 0
	}

	if *configPath == "" {
		fs.Usage()
		return 2
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("load config: %v", err)
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			cfg.Seed = seed
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(logger, store, *verbose)
	rep, err := app.Run(ctx, cfg)
	PrintSummary(stdout, rep)
	if err != nil {
		logger.Printf("run failed: %v", err)
		return 1
	}
	if !rep.Validation.OK() {
		return 3
	}
	return 0
}

func printRuns(w io.Writer, store *runstore.Store, n int) error {
	runs, err := store.List(n)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  seed=%d  %-8s %3d pieces  %s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Seed, r.Strategy, r.Pieces, r.Stop)
	}
	return nil
}
