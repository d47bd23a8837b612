package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/paybills/pkg/config"
	"github.com/yurifrl/paybills/pkg/executors"
	"github.com/yurifrl/paybills/pkg/server"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "paybills",
	})

	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	port := flags.String("port", "3000", "Server port")
	cfgFile := flags.StringP("config", "c", "", "Config file (default is config.yaml)")
	flags.String("journal", "", "Submission journal (sqlite file)")
	flags.String("ledger", "", "Ledger kind (ynab or memory)")
	flags.Bool("verbose", false, "Debug logging")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	exec, closeFn, err := executors.Setup(logger, cfg)
	if err != nil {
		logger.Fatal("failed to set up", "err", err)
	}
	defer closeFn()

	srv := server.New(exec, logger)
	addr := fmt.Sprintf("0.0.0.0:%s", *port)
	logger.Info("starting server", "addr", addr, "ledger", cfg.Ledger.Kind)
	if err := srv.Start(addr); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
