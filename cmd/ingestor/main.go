package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/caarlos0/env/v6"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/offerscan/catalogue-parser/cmd/ingestor/config"
	"github.com/offerscan/catalogue-parser/internal/assembler"
	"github.com/offerscan/catalogue-parser/internal/extractor"
	"github.com/offerscan/catalogue-parser/internal/fetcher"
	"github.com/offerscan/catalogue-parser/internal/handler"
	"github.com/offerscan/catalogue-parser/internal/listing"
	"github.com/offerscan/catalogue-parser/internal/normalizer"
	"github.com/offerscan/catalogue-parser/internal/ocr"
	"github.com/offerscan/catalogue-parser/internal/ocr/tesseract"
	"github.com/offerscan/catalogue-parser/internal/orchestrator"
	"github.com/offerscan/catalogue-parser/internal/platform/rabbitmq"
	"github.com/offerscan/catalogue-parser/internal/platform/storage"
)

const (
	// UserAgent is user agent header value used when fetching catalogue assets.
	UserAgent = "catalogue-parser/0.0.1"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var cfg config.Config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal().
			Err(err).
			Msg("can't parse env variables")
	}

	amqpConnection, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal().
			Err(err).
			Msg("can't open RabbitMQ connection")
	}

	conn, err := rabbitmq.NewRabbitMQ(amqpConnection, cfg.RabbitMQ.Exchange)
	if err != nil {
		logger.Fatal().
			Err(err).
			Msg("can't open RabbitMQ channel")
	}

	pgDB, err := sqlx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().
			Err(err).
			Msg("can't open Postgres connection")
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	urlPolicy := fetcher.NewURLPolicy()
	ocrEngine := tesseract.NewEngine()

	orch := orchestrator.NewOrchestrator(
		fetcher.NewFetcher(httpClient, urlPolicy, UserAgent,
			fetcher.WithRetries(cfg.FetchRetries),
			fetcher.WithWorkers(cfg.FetchWorkers),
		),
		assembler.NewAssembler(assembler.NewFitzRasterizer()),
		normalizer.NewNormalizer(normalizer.DefaultConfig(), ocrEngine),
		ocr.NewAdapter(ocrEngine, cfg.OCRPageTimeout),
		extractor.NewExtractor(),
		listing.NewResolver(httpClient, urlPolicy, UserAgent,
			listing.WithFanOutCap(cfg.ListingFanOut),
		),
		urlPolicy,
		storage.NewPostgres(pgDB),
		&logger,
		orchestrator.Config{
			DataDir:         cfg.DataDir,
			JobTimeout:      cfg.JobTimeout,
			PageParallelism: cfg.PageParallelism,
		},
	)

	han := handler.NewHandler(conn, orch, &logger)

	// start consuming and handling messages
	err = han.Start(ctx, cfg.RabbitMQ.Queue)
	if err != nil {
		logger.Fatal().
			Err(err).
			Msg("can't start consuming")
	}

	logger.Info().Msg("catalogue parser up and running")

	// handle graceful shutdown and context cancellation
	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-termChan:
		cancel()
	case <-ctx.Done():
	}

	logger.Info().Msg("graceful shutdown start")

	// wait for consumer to finish
	<-conn.Done()

	// close connections
	wg := sync.WaitGroup{}
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := pgDB.Close(); err != nil {
			logger.Fatal().
				Err(err).
				Msg("can't close Postgres connection")
		}
	}()

	go func() {
		defer wg.Done()
		if err := amqpConnection.Close(); err != nil {
			logger.Fatal().
				Err(err).
				Msg("can't close RabbitMQ connection")
		}
	}()

	wg.Wait()

	logger.Info().Msg("graceful shutdown successful")
}
