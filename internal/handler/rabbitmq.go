// Package handler consumes ingest commands from the queue and hands them to
// the orchestrator.
package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/offerscan/catalogue-parser/internal/platform/models"
	"github.com/offerscan/catalogue-parser/internal/platform/rabbitmq"
	"github.com/offerscan/catalogue-parser/pkg/v1/commander"
)

// Ingestor runs catalogue ingestion requests.
type Ingestor interface {
	Handle(ctx context.Context, req models.IngestionRequest) error
}

// RMQHandler handles RMQ messages.
type RMQHandler struct {
	rmq      *rabbitmq.RabbitMQ
	ingestor Ingestor
	logger   *zerolog.Logger
}

// NewHandler returns new RMQHandler.
func NewHandler(rmq *rabbitmq.RabbitMQ, ingestor Ingestor, logger *zerolog.Logger) *RMQHandler {
	return &RMQHandler{
		rmq:      rmq,
		ingestor: ingestor,
		logger:   logger,
	}
}

// Start starts consuming and handling ingest commands from RMQ.
func (h *RMQHandler) Start(ctx context.Context, queue string) error {
	errorsChan, err := h.rmq.Consume(ctx, queue, func(ctx context.Context, message []byte) error {
		req, err := decodeMessage(message)
		if err != nil {
			return err
		}

		h.logger.Debug().
			Str("kind", string(req.Kind)).
			Str("url", req.URL).
			Str("storeUrl", req.StoreURL).
			Msg("ingestion command received")

		err = h.ingestor.Handle(ctx, req)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		for err := range errorsChan {
			h.logger.Error().
				Err(err).
				Msg("can't handle message")
		}
	}()

	return nil
}

func decodeMessage(msg []byte) (models.IngestionRequest, error) {
	var cmd commander.IngestCommand
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return models.IngestionRequest{}, fmt.Errorf("can't decode ingest command: %w", err)
	}

	req := models.IngestionRequest{
		Kind:       models.RequestKind(cmd.Kind),
		URL:        cmd.URL,
		StoreURL:   cmd.StoreURL,
		Store:      cmd.Store,
		Title:      cmd.Title,
		ValidFrom:  cmd.ValidFrom,
		ValidUntil: cmd.ValidUntil,
		Latitude:   cmd.Latitude,
		Longitude:  cmd.Longitude,
		KeepColor:  cmd.KeepColor,
	}
	for _, path := range cmd.Files {
		req.Files = append(req.Files, models.UploadedFile{Name: path, Path: path})
	}

	return req, nil
}
