package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	finuracli "github.com/finura-app/finura-go-presence/finura-cli"
	finuracron "github.com/finura-app/finura-go-presence/finura-cron"
	finurapresence "github.com/finura-app/finura-go-presence/finura-presence"
	"github.com/finura-app/finura-go-presence/finura-presence/userdao"
	finurarest "github.com/finura-app/finura-go-presence/finura-rest"
	finurasecret "github.com/finura-app/finura-go-presence/finura-secret"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var service = finuracli.NewService("finura-presence")

var opts struct {
	DatabaseURL    string
	DatabaseSecret string
	SweepInterval  int
	StaleAfter     time.Duration
}

func main() {
	app := finuracli.App(
		service,
		action,
		append(
			finuracli.CommonFlags,
			finuracli.PortFlag(10000),
			finuracli.StringFlag("database-url", "postgres connection string", &opts.DatabaseURL),
			finuracli.StringFlag("database-secret", "secrets manager secret holding the database dsn; overrides database-url", &opts.DatabaseSecret),
			finuracli.IntFlag("sweep-interval", "minutes between inactivity sweeps", &opts.SweepInterval, 5),
			finuracli.DurationFlag("stale-after", "activity older than this marks a user inactive; defaults to the sweep interval", &opts.StaleAfter, 0),
		)...,
	)
	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func action(c *cli.Context) error {
	logger := finuracli.Logger(service)

	if opts.SweepInterval <= 0 {
		return fmt.Errorf("invalid sweep interval %v: must be at least 1 minute", opts.SweepInterval)
	}
	interval := time.Duration(opts.SweepInterval) * time.Minute
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = interval
	}

	s := session.Must(session.NewSession(aws.NewConfig()))

	dsn := opts.DatabaseURL
	if opts.DatabaseSecret != "" {
		v, err := finurasecret.LoadDatabaseDSN(s, opts.DatabaseSecret)
		if err != nil {
			return err
		}
		dsn = v
	}
	if dsn == "" {
		return fmt.Errorf("one of --database-url or --database-secret is required")
	}

	users, err := userdao.Build(dsn)
	if err != nil {
		return err
	}
	defer users.Close()

	tracker := finurapresence.NewTracker()
	sweeper := finurapresence.NewSweeper(users, tracker, staleAfter, logger)
	if finuracli.CommonOpts.CloudWatch {
		sweeper.Metrics = finuracli.NewMetrics(service, cloudwatch.New(s))
	}

	logger.Info().
		Dur("sweep_interval", interval).
		Dur("stale_after", staleAfter).
		Msg("starting presence service")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return finurarest.Webserver(ctx, service, finurapresence.Routes(logger, tracker, users))
	})
	group.Go(func() error {
		return finuracron.NewHandler(service, interval, sweeper.Run).WithLogger(logger).Start(ctx)
	})
	return group.Wait()
}
