package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/cmd/ledger-stream-service/cli"
	"github.com/stellar-insights/ledger-stream-service/cmd/ledger-stream-service/scripts"
	"github.com/stellar-insights/ledger-stream-service/internal/api"
	"github.com/stellar-insights/ledger-stream-service/internal/clients"
	"github.com/stellar-insights/ledger-stream-service/internal/clients/horizon"
	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/db/model"
	"github.com/stellar-insights/ledger-stream-service/internal/events"
	"github.com/stellar-insights/ledger-stream-service/internal/ingestion"
	"github.com/stellar-insights/ledger-stream-service/internal/jobs"
	"github.com/stellar-insights/ledger-stream-service/internal/observability/metrics"
	"github.com/stellar-insights/ledger-stream-service/internal/queue"
	"github.com/stellar-insights/ledger-stream-service/internal/services"
	"github.com/stellar-insights/ledger-stream-service/internal/stream"
	"github.com/stellar-insights/ledger-stream-service/internal/supervisor"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
	"github.com/stellar-insights/ledger-stream-service/internal/webhooks"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("failed to load .env file")
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx := log.Logger.WithContext(context.Background())

	// setup cli commands and flags
	if err := cli.Setup(); err != nil {
		log.Fatal().Err(err).Msg("error while setting up cli")
	}

	// load config
	cfgPath := cli.GetConfigPath()
	cfg, err := config.New(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg(fmt.Sprintf("error while loading config file: %s", cfgPath))
	}

	if err = model.Setup(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("error while verifying the relational store schema")
	}
	svc, err := services.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("error while setting up services layer")
	}
	queues, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("error while connecting to the webhook queue")
	}

	// Check if the replay flag is set
	if cli.GetReplayFlag() {
		log.Info().Msg("Replay flag is set. Starting replay of dead-lettered webhook deliveries.")
		_, err := scripts.ReplayWebhookDeliveries(ctx, queues.WebhookQueueClient, svc.DeadLetter)
		if err != nil {
			log.Error().Err(err).Msg("error while replaying webhook deliveries")
			return supervisor.ExitFatal
		}
		return supervisor.ExitClean
	}

	// initialize metrics with the metrics port from config
	metrics.Init(cfg.Metrics.GetMetricsPort())

	c := clients.New(cfg)
	derived := make(chan events.Event, cfg.Ingestion.EventBufferSize)

	registry := stream.NewRegistry(cfg.Stream.MaxTopicsPerConnection)
	publisher := webhooks.NewPublisher(queues.WebhookQueueClient, cfg.Webhook.Endpoints)
	broadcaster := stream.NewBroadcaster(derived, registry, svc.Cache, publisher, cfg.Derivation.SnapshotTTL)
	loop := ingestion.NewLoop(
		svc.DbClient, horizon.NewFetcher(c.Horizon, &cfg.Ingestion), svc.DeadLetter,
		&cfg.Ingestion, events.NewRules(&cfg.Derivation), derived,
	)
	dispatcher := webhooks.NewDispatcher(
		queues.WebhookQueueClient, c.Webhook, svc.DeadLetter, &cfg.Webhook, queues.ProcessingTimeout(),
	)
	scheduler := jobs.NewScheduler()
	scheduler.Add(jobs.New(cfg, svc, queues, derived)...)

	apiServer, err := api.New(
		ctx, cfg, svc, loop, registry, stream.NewHandler(registry, &cfg.Stream, cfg.Server.AllowedOrigins),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("error while setting up api server")
	}

	sup := supervisor.New(ctx, supervisor.NewConfig(cfg))
	sup.SetIngress(registry)
	sup.AddServer(apiServer)
	sup.SetConnections(registry)

	sup.Go("api-server", func(context.Context) error {
		if err := apiServer.Start(); err != nil {
			return types.NewFatalError(err)
		}
		return nil
	})
	sup.Go("ingestion", loop.Run)
	sup.Go("broadcaster", broadcaster.Run)
	sup.Go("webhook-dispatcher", dispatcher.Run)
	sup.Go("jobs", scheduler.Run)

	// closed in this order once every task has stopped
	sup.AddResource("cache", func(context.Context) error { return svc.Cache.Close() })
	sup.AddResource("queue", queues.Close)
	sup.AddResource("dead-letter-store", svc.DeadLetter.Close)
	sup.AddResource("storage", func(context.Context) error {
		svc.DbClient.Close()
		return nil
	})
	sup.AddResource("metrics-server", metrics.Shutdown)

	report := sup.Wait(ctx)
	return report.ExitCode
}
