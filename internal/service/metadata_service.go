package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/vm"
)

// TokenMetadata is the JSON document published for each outcome mint.
type TokenMetadata struct {
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Description string         `json:"description"`
	URI         string         `json:"external_url,omitempty"`
	Mint        domain.Address `json:"mint"`
	Decimals    uint8          `json:"decimals"`
	MarketID    string         `json:"market_id"`
	Side        string         `json:"side"`
}

// MintReader loads decoded mints. *MarketService implements it.
type MintReader interface {
	GetMint(ctx context.Context, mint domain.Address) (domain.Mint, error)
}

// MetadataService writes metadata/<mint>.json for both mints of every new
// market and serves the documents back.
type MetadataService struct {
	mints  MintReader
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

var _ vm.EventSink = (*MetadataService)(nil)

// NewMetadataService creates a MetadataService. reader may be nil when
// documents are only written.
func NewMetadataService(mints MintReader, writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *MetadataService {
	return &MetadataService{
		mints:  mints,
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "metadata_service")),
	}
}

// MetadataPath is the object key of a mint's metadata document.
func MetadataPath(mint domain.Address) string {
	return "metadata/" + mint.Hex() + ".json"
}

// PublishEvents uploads metadata for each market_created event.
func (s *MetadataService) PublishEvents(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, ev := range events {
		if ev.Kind != domain.EventMarketCreated {
			continue
		}
		var created domain.MarketCreatedEvent
		if err := json.Unmarshal(ev.Payload, &created); err != nil {
			errs = append(errs, fmt.Errorf("metadata_service: decode %s: %w", ev.ID, err))
			continue
		}
		if err := s.Publish(ctx, created); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish uploads the YES and NO documents of one market.
func (s *MetadataService) Publish(ctx context.Context, created domain.MarketCreatedEvent) error {
	sides := []struct {
		mint domain.Address
		side string
	}{
		{created.TokenA, "yes"},
		{created.TokenB, "no"},
	}
	for _, sd := range sides {
		mint, err := s.mints.GetMint(ctx, sd.mint)
		if err != nil {
			return fmt.Errorf("metadata_service: %w", err)
		}
		doc := TokenMetadata{
			Name:        mint.Name,
			Symbol:      mint.Symbol,
			Description: describe(created, sd.side),
			URI:         mint.URI,
			Mint:        sd.mint,
			Decimals:    mint.Decimals,
			MarketID:    created.MarketID,
			Side:        sd.side,
		}
		body, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("metadata_service: marshal: %w", err)
		}
		path := MetadataPath(sd.mint)
		if err := s.writer.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
			return fmt.Errorf("metadata_service: upload %s: %w", path, err)
		}
		s.logger.InfoContext(ctx, "metadata_service: published",
			slog.String("market_id", created.MarketID),
			slog.String("path", path),
		)
	}
	return nil
}

// Get reads a published document.
func (s *MetadataService) Get(ctx context.Context, mint domain.Address) (TokenMetadata, error) {
	rc, err := s.reader.Get(ctx, MetadataPath(mint))
	if err != nil {
		return TokenMetadata{}, fmt.Errorf("metadata_service: get %s: %w", mint.Hex(), err)
	}
	defer rc.Close()
	var doc TokenMetadata
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return TokenMetadata{}, fmt.Errorf("metadata_service: decode %s: %w", mint.Hex(), err)
	}
	return doc, nil
}

func describe(c domain.MarketCreatedEvent, side string) string {
	var cmp string
	switch c.Range {
	case domain.RangeGreaterThan:
		cmp = "above"
	case domain.RangeLessThan:
		cmp = "below"
	default:
		cmp = "equal to"
	}
	return fmt.Sprintf("%s shares of market %s, which resolves yes when feed %s is %s %g.",
		strings.ToUpper(side), c.MarketID, c.Feed.Hex(), cmp, c.Value)
}
