// Package commander is the client side of the ingestion queue: it builds
// and sends ingest commands in the wire format the service consumes.
package commander

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// IngestCommand orders the service to ingest one catalogue source.
// Exactly one of URL, StoreURL or Files should be set, selected by Kind.
type IngestCommand struct {
	Kind       string     `json:"kind"`
	URL        string     `json:"url,omitempty"`
	StoreURL   string     `json:"storeUrl,omitempty"`
	Files      []string   `json:"files,omitempty"`
	Store      string     `json:"store,omitempty"`
	Title      string     `json:"title,omitempty"`
	ValidFrom  *time.Time `json:"validFrom,omitempty"`
	ValidUntil *time.Time `json:"validUntil,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	KeepColor  bool       `json:"keepColor,omitempty"`
}

// Command kinds understood by the service.
const (
	KindURL          = "url"
	KindStoreListing = "store_listing"
	KindUpload       = "upload"
)

// Sender sends messages.
type Sender interface {
	Send(context.Context, []byte) error
}

// IngestCommander sends ingest commands.
type IngestCommander struct {
	sender Sender
}

// NewIngestCommander returns new IngestCommander using provided sender for sending messages.
func NewIngestCommander(sender Sender) IngestCommander {
	return IngestCommander{
		sender: sender,
	}
}

// SendIngestCommand sends the provided ingest command.
func (c IngestCommander) SendIngestCommand(ctx context.Context, cmd IngestCommand) error {
	cmdMsg, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("can't marshal ingest command: %w", err)
	}

	return c.sender.Send(ctx, cmdMsg)
}

// SendCatalogueURL sends an ingest command for one catalogue URL.
func (c IngestCommander) SendCatalogueURL(ctx context.Context, catalogueURL string) error {
	return c.SendIngestCommand(ctx, IngestCommand{
		Kind: KindURL,
		URL:  catalogueURL,
	})
}

// SendStoreListing sends an ingest command for a store listing page.
func (c IngestCommander) SendStoreListing(ctx context.Context, listingURL string) error {
	return c.SendIngestCommand(ctx, IngestCommand{
		Kind:     KindStoreListing,
		StoreURL: listingURL,
	})
}
