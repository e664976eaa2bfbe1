/*
send2cloud uploads the measurement csv files without starting the kit
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/RUBclim/crowdbike/config"
	"github.com/RUBclim/crowdbike/upload"
)

func main() {
	pVerbose := flag.Bool("v", false, "increase verbosity")
	pConfig := flag.String("config", config.DefaultDir(), "directory with config.json")
	flag.Parse()

	cfg, err := config.Load(*pConfig)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *pVerbose {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	u := upload.New(cfg.User.LogfilePath, cfg.Cloud, logger)
	u.Verbose = *pVerbose
	failed, err := u.Report(ctx, os.Stdout)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if 0 < failed {
		fmt.Printf("%d files not uploaded\n", failed)
		os.Exit(1)
	}
}
