package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// multipartThreshold is the object size above which a month is uploaded in
// parts.
const multipartThreshold = 4 * minPartSize

// EventArchiveStore is the part of domain.EventStore the archiver needs.
type EventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver. Events older than the cutoff are
// written as JSONL to archive/events/YYYY-MM.jsonl and, once the upload
// succeeds, deleted from the store.
type Archiver struct {
	writer domain.BlobWriter
	events EventArchiveStore
	logger *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver that uploads through writer and prunes
// events.
func NewArchiver(writer domain.BlobWriter, events EventArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		events: events,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveEvents returns the number of events moved to cold storage, one
// object per calendar month.
func (a *Archiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	for _, group := range groupByMonth(events) {
		buf, err := marshalJSONL(group.events)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
		}
		path := archivePath("events", group.month, before)
		if int64(len(buf)) > multipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
		}
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
		}
		a.logger.InfoContext(ctx, "archiver: uploaded events",
			slog.String("path", path),
			slog.Int("count", len(group.events)),
		)
	}

	deleted, err := a.events.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events delete: %w", err)
	}
	return deleted, nil
}

type monthGroup struct {
	month  time.Time
	events []domain.Event
}

// groupByMonth expects events in any order and returns groups sorted by
// month.
func groupByMonth(events []domain.Event) []monthGroup {
	var groups []monthGroup
	index := make(map[time.Time]int)
	for _, ev := range events {
		at := ev.At.UTC()
		m := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
		i, ok := index[m]
		if !ok {
			i = len(groups)
			index[m] = i
			groups = append(groups, monthGroup{month: m})
		}
		groups[i].events = append(groups[i].events, ev)
	}
	slices.SortFunc(groups, func(a, b monthGroup) int { return a.month.Compare(b.month) })
	return groups
}

// archivePath is archive/<kind>/YYYY-MM.jsonl. A month that is not yet over
// at the cutoff gets a -partial-<cutoff> suffix so a later run does not
// overwrite it.
//
//	archive/events/2026-09.jsonl
//	archive/events/2026-10-partial-20261015T000000Z.jsonl
func archivePath(kind string, month, before time.Time) string {
	end := month.AddDate(0, 1, 0)
	if before.Before(end) {
		return fmt.Sprintf("archive/%s/%s-partial-%s.jsonl",
			kind, month.Format("2006-01"), before.UTC().Format("20060102T150405Z"))
	}
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month.Format("2006-01"))
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
