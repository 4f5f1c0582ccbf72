package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/drblury/activityflow/internal/runtime/config"
	"github.com/drblury/activityflow/internal/runtime/logging"
	_ "github.com/drblury/activityflow/transport/transports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "activityflow",
		Usage: "run activity consumer groups or emit activity events",
		Commands: []*cli.Command{
			auditCommand(),
			auditBatchCommand(),
			notifyCommand(),
			allCommand(),
			emitCommand(),
		},
	}
}

// env reads the configuration and builds the logger every command shares.
type env struct {
	cfg *config.Config
	log logging.ServiceLogger
}

func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: c.App.Writer,
	})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}
