package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"incidentdesk/config"
	"incidentdesk/core/appbootstrap"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $"+config.ConfigPathEnv+")")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: incidentdesk [-config path] [serve|migrate]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := utils.NewLogger()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Errorf("%s: %v", cmd, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	app, err := appbootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Run(ctx)
}

func migrate(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return store.ApplyMigrations(ctx, db, logger)
}
