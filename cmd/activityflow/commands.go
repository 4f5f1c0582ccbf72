package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drblury/activityflow/internal/activity"
	"github.com/drblury/activityflow/internal/producer"
	"github.com/drblury/activityflow/internal/runtime"
	"github.com/drblury/activityflow/internal/runtime/logging"
)

const closeTimeout = 10 * time.Second

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "consume the activity topic as the audit group, one record at a time",
		Action: func(c *cli.Context) error {
			return runConsumers(c, registerAudit(false))
		},
	}
}

func auditBatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit-batch",
		Usage: "consume the activity topic as the audit group in batches of BATCH_SIZE",
		Action: func(c *cli.Context) error {
			return runConsumers(c, registerAudit(true))
		},
	}
}

func notifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "notify",
		Usage: "consume the activity topic as the notification group",
		Action: func(c *cli.Context) error {
			return runConsumers(c, registerNotification)
		},
	}
}

func allCommand() *cli.Command {
	return &cli.Command{
		Name:  "all",
		Usage: "run the audit and notification groups in one process",
		Action: func(c *cli.Context) error {
			return runConsumers(c, registerAudit(false), registerNotification)
		},
	}
}

func emitCommand() *cli.Command {
	return &cli.Command{
		Name:      "emit",
		Usage:     "publish an activity envelope read from a JSON file",
		ArgsUsage: "<envelope.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "sync", Usage: "block until the broker confirms the send"},
			&cli.DurationFlag{Name: "wait", Value: 30 * time.Second, Usage: "how long to wait for the broker"},
		},
		Action: emit,
	}
}

// registrar attaches one consumer group and returns a func releasing the
// stores it opened.
type registrar func(ctx context.Context, e *env, svc *runtime.Service) (func(), error)

func registerAudit(batch bool) registrar {
	return func(ctx context.Context, e *env, svc *runtime.Service) (func(), error) {
		audit, release, err := openAuditStore(ctx, e)
		if err != nil {
			return nil, err
		}
		if err := runtime.RegisterAuditConsumer(svc, audit, batch); err != nil {
			release()
			return nil, err
		}
		return release, nil
	}
}

func registerNotification(ctx context.Context, e *env, svc *runtime.Service) (func(), error) {
	stores, err := openNotificationStores(ctx, e)
	if err != nil {
		return nil, err
	}
	if err := runtime.RegisterNotificationConsumer(svc, stores.notifications, stores.feed, stores.dispatcher); err != nil {
		stores.release()
		return nil, err
	}
	return stores.release, nil
}

func runConsumers(c *cli.Context, registrars ...registrar) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	svc, err := runtime.TryNewService(e.cfg, e.log, ctx, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}

	var releases []func()
	defer func() {
		for _, release := range releases {
			release()
		}
	}()
	for _, register := range registrars {
		release, err := register(ctx, e, svc)
		if err != nil {
			_ = svc.Close(context.Background())
			return err
		}
		releases = append(releases, release)
	}

	e.log.Info("Starting consumers", logging.LogFields{
		"transport": e.cfg.PubSubSystem,
		"topic":     e.cfg.ActivityTopic,
	})
	runErr := svc.Start(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	closeErr := svc.Close(closeCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return closeErr
}

func emit(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("emit requires an envelope file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	envelope, err := activity.Decode(data)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	svc, err := runtime.TryNewService(e.cfg, e.log, c.Context, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = svc.Close(closeCtx)
	}()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("wait"))
	defer cancel()

	var receipt producer.Receipt
	if c.Bool("sync") {
		receipt, err = svc.PublishSync(ctx, envelope)
	} else {
		var future *producer.Future
		if future, err = svc.Publish(ctx, envelope); err == nil {
			receipt, err = future.Wait(ctx)
		}
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.App.Writer, "published %s to %s (partition key %s)\n", receipt.EventID, receipt.Topic, receipt.PartitionKey)
	return err
}
