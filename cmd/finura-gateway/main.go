package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	finuraauth "github.com/finura-app/finura-go-presence/finura-auth"
	finuracli "github.com/finura-app/finura-go-presence/finura-cli"
	finuraddb "github.com/finura-app/finura-go-presence/finura-ddb"
	finurarest "github.com/finura-app/finura-go-presence/finura-rest"
	finuraws "github.com/finura-app/finura-go-presence/finura-ws"
	"github.com/finura-app/finura-go-presence/finura-ws/connectiondao"
	"github.com/finura-app/finura-go-presence/finura-ws/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const drainTimeout = 5 * time.Second

var service = finuracli.NewService("finura-gateway")

var opts struct {
	AuthURL                 string
	AuthTimeout             time.Duration
	StatusURL               string
	HandshakeTimeout        time.Duration
	HeartbeatInterval       time.Duration
	CloseOnHeartbeatFailure bool
	StatusWorkers           int
	StatusQueue             int
	StatusAttempts          int
	LogConnections          bool
}

func main() {
	flags := append(
		finuracli.CommonFlags,
		finuracli.PortFlag(8500),
		finuracli.StringFlag("auth-url", "base url of the session authority", &opts.AuthURL, "http://localhost:8001/api"),
		finuracli.DurationFlag("auth-timeout", "timeout of a single session check", &opts.AuthTimeout, finuraauth.DefaultTimeout),
		finuracli.StringFlag("status-url", "endpoint websocket status changes are posted to", &opts.StatusURL, "http://localhost:10000/api/websocket-status"),
		finuracli.DurationFlag("handshake-timeout", "time a client has to authorize", &opts.HandshakeTimeout, 10*time.Second),
		finuracli.DurationFlag("heartbeat-interval", "how often authorized sessions are revalidated", &opts.HeartbeatInterval, 60*time.Second),
		finuracli.BoolFlag("close-on-heartbeat-failure", "close connections whose session the authority rejects during a heartbeat", &opts.CloseOnHeartbeatFailure),
		finuracli.IntFlag("status-workers", "number of status propagation workers", &opts.StatusWorkers, 4),
		finuracli.IntFlag("status-queue", "pending status events per worker", &opts.StatusQueue, 256),
		finuracli.IntFlag("status-attempts", "attempts per status event", &opts.StatusAttempts, 3),
		finuracli.BoolFlag("log-connections", "record authorized connections in DynamoDB", &opts.LogConnections),
	)
	flags = append(flags, finuraddb.DDBFlags...)

	app := finuracli.App(service, action, flags...)
	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func action(c *cli.Context) error {
	logger := finuracli.Logger(service)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	propagator := status.New(status.Config{
		URL:         opts.StatusURL,
		Workers:     opts.StatusWorkers,
		QueueSize:   opts.StatusQueue,
		MaxAttempts: opts.StatusAttempts,
	}, logger)
	registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "finura_gateway",
			Name:      "status_dropped_total",
			Help:      "Status events dropped before delivery was attempted.",
		}, func() float64 { return float64(propagator.Dropped()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "finura_gateway",
			Name:      "status_failed_total",
			Help:      "Status events that exhausted their attempts.",
		}, func() float64 { return float64(propagator.Failed()) }),
	)

	validator := finuraauth.New(opts.AuthURL)
	validator.Timeout = opts.AuthTimeout

	handler := finuraws.NewHandler(finuraws.Config{
		HandshakeTimeout:        opts.HandshakeTimeout,
		HeartbeatInterval:       opts.HeartbeatInterval,
		CloseOnHeartbeatFailure: opts.CloseOnHeartbeatFailure,
	}, validator, logger)
	handler.Metrics = finuraws.NewMetrics(registry)
	handler.Status = propagator

	if opts.LogConnections {
		connections, err := connectionLog()
		if err != nil {
			return err
		}
		handler.Connections = connections
	}

	logger.Info().
		Str("auth_url", opts.AuthURL).
		Str("status_url", opts.StatusURL).
		Dur("handshake_timeout", handler.Config.HandshakeTimeout).
		Dur("heartbeat_interval", handler.Config.HeartbeatInterval).
		Msg("starting gateway")

	// status events still queued at shutdown get drainTimeout to go out
	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return finurarest.Webserver(ctx, service, finuraws.Routes(handler, registry))
	})
	group.Go(func() error {
		return propagator.Run(drainCtx)
	})
	group.Go(func() error {
		<-ctx.Done()
		handler.Shutdown()
		propagator.Close()
		time.AfterFunc(drainTimeout, cancelDrain)
		return nil
	})
	return group.Wait()
}

func connectionLog() (*connectiondao.DAO, error) {
	s := session.Must(session.NewSession(aws.NewConfig()))
	api, err := finuraddb.New(s, finuraddb.ConfigFromFlags())
	if err != nil {
		return nil, err
	}
	if finuraddb.DDBOpts.TableName != "" {
		return connectiondao.New(api, finuraddb.DDBOpts.TableName), nil
	}
	return connectiondao.Build(api, finuracli.CommonOpts.Env), nil
}
