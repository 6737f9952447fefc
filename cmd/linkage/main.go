package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/lexlink/internal/config"
	"github.com/OFFIS-RIT/lexlink/internal/pipeline"
	"github.com/OFFIS-RIT/lexlink/internal/setup"
	"github.com/OFFIS-RIT/lexlink/internal/util"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"
	"github.com/OFFIS-RIT/lexlink/pkg/logger/console"
)

func main() {
	opFlag := flag.String("op", "run", "operation: run, resolve or reconcile")
	flag.Parse()

	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{}))
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}
	op, err := pipeline.ParseOperation(*opFlag)
	if err != nil {
		logger.Fatal("Invalid operation", "err", err)
	}

	closeLogs, err := setup.InitLogger(cfg, "linkage")
	if err != nil {
		logger.Fatal("Could not initialise logging", "err", err)
	}
	defer closeLogs()

	deps, err := setup.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("Could not set up linkage", "err", err)
	}
	defer deps.Close()

	// Country failures are reported in the log and the diagnostic stream;
	// only setup failures change the exit code.
	results, err := pipeline.Execute(ctx, pipeline.FromClient(deps.Client), deps.Countries, op)
	if err != nil {
		logger.Warn("Linkage finished with errors", "err", err)
	}
	for _, r := range results {
		kv := []any{"country", r.Country}
		if r.Run != nil {
			kv = append(kv, "records", r.Run.Records, "skipped", r.Run.SkippedRecords, "stopped", r.Run.Stopped)
		}
		if r.Reconcile != nil {
			kv = append(kv, "groups_merged", r.Reconcile.Merged, "records_deleted", r.Reconcile.RecordsDeleted)
		}
		if r.Err != nil {
			kv = append(kv, "err", r.Err)
		}
		logger.Info("Linkage result", kv...)
	}
}
