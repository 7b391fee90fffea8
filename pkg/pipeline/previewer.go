package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mosaicchat/mosaic/pkg/blob"
	"github.com/mosaicchat/mosaic/pkg/logger"
	"github.com/mosaicchat/mosaic/pkg/model"
	"github.com/mosaicchat/mosaic/pkg/preview"
	"github.com/mosaicchat/mosaic/pkg/store"
)

// workerIdentity stamps the audit columns of rows the pipeline writes on
// its own behalf.
const workerIdentity = "system"

// PreviewStore is the slice of the canonical store the enrichment worker
// needs.
type PreviewStore interface {
	AttachPreview(ctx context.Context, messageUUID string, fresh *store.LinkPreview) (*store.LinkPreview, error)
	FindChannel(ctx context.Context, appUUID, channelUUID string) (*store.Channel, error)
	GetFullMessage(ctx context.Context, appUUID, channelUUID, messageUUID string) (*store.Message, error)
}

// Previewer consumes link-preview jobs: scrape the page, re-home the
// preview image in blob storage, attach the preview row to the message and
// patch the index document. Scrape failures are terminal; the message
// simply stays preview-less.
type Previewer struct {
	store PreviewStore
	index Indexer
	bus   Publisher
	fetch preview.Fetcher
	blobs blob.Store
	sign  model.AttachmentSigner
}

func NewPreviewer(st PreviewStore, ix Indexer, bus Publisher, f preview.Fetcher, blobs blob.Store, sign model.AttachmentSigner) *Previewer {
	return &Previewer{store: st, index: ix, bus: bus, fetch: f, blobs: blobs, sign: sign}
}

func (w *Previewer) Handle(ctx context.Context, raw []byte) error {
	var job model.PreviewJob
	if err := json.Unmarshal(raw, &job); err != nil {
		logger.Log.Warn("dropping undecodable preview job", "err", err)
		return nil
	}
	if err := job.Validate(); err != nil {
		logger.Log.Warn("dropping invalid preview job", "message", job.MessageUUID, "err", err)
		return nil
	}

	meta, err := w.fetch.Fetch(ctx, job.Link)
	if err != nil {
		logger.Log.Warn("preview scrape failed", "link", job.Link, "message", job.MessageUUID, "err", err)
		return nil
	}

	imageRef := meta.Image
	if meta.Image != "" {
		// The scraped image URL may rot; keep our own copy. The key is
		// derived from the message UUID so a redelivered job overwrites
		// rather than accumulates.
		data, contentType, err := w.fetch.Download(ctx, meta.Image)
		if err != nil {
			logger.Log.Warn("preview image download failed", "link", meta.Image, "err", err)
		} else {
			ref, err := w.blobs.Put(ctx, blob.PreviewKeyPrefix+job.MessageUUID, contentType, data)
			if err != nil {
				logger.Log.Warn("preview image store failed", "message", job.MessageUUID, "err", err)
			} else {
				imageRef = ref
			}
		}
	}

	fresh := &store.LinkPreview{
		URL:         job.Link,
		Title:       meta.Title,
		Description: meta.Description,
		ImageLink:   imageRef,
		ImageWidth:  meta.ImageWidth,
		ImageHeight: meta.ImageHeight,
		ImageAlt:    meta.ImageAlt,
		Audit:       store.Audit{CreatedBy: workerIdentity, UpdatedBy: workerIdentity},
	}
	resolved, err := w.store.AttachPreview(ctx, job.MessageUUID, fresh)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Log.Warn("preview target vanished", "message", job.MessageUUID)
			return nil
		}
		return fmt.Errorf("attach preview to %s: %w", job.MessageUUID, err)
	}

	og := model.OGTag{
		URL:         resolved.URL,
		Title:       resolved.Title,
		Description: resolved.Description,
		Image:       resolved.ImageLink,
		ImageWidth:  resolved.ImageWidth,
		ImageHeight: resolved.ImageHeight,
		ImageAlt:    resolved.ImageAlt,
	}
	if err := w.index.UpdateOGTag(ctx, job.ApplicationUUID, job.ChannelUUID, job.MessageUUID, og); err != nil {
		logger.Log.Error("index preview patch failed", "message", job.MessageUUID, "err", err)
	}

	w.broadcast(ctx, job)
	return nil
}

// broadcast re-announces the enriched message. Best effort: the canonical
// attach already happened, late subscribers will read the preview anyway.
func (w *Previewer) broadcast(ctx context.Context, job model.PreviewJob) {
	full, err := w.store.GetFullMessage(ctx, job.ApplicationUUID, job.ChannelUUID, job.MessageUUID)
	if err != nil {
		logger.Log.Warn("enriched reload failed", "message", job.MessageUUID, "err", err)
		return
	}
	ch, err := w.store.FindChannel(ctx, job.ApplicationUUID, job.ChannelUUID)
	if err != nil {
		logger.Log.Warn("enriched channel lookup failed", "channel", job.ChannelUUID, "err", err)
		return
	}
	view := store.DocumentFor(job.ApplicationUUID, ch, full).View(w.sign)
	if err := w.bus.PublishEvent(ctx, job.ApplicationUUID, job.ChannelUUID, model.EventMessageUpdated, view); err != nil {
		logger.Log.Error("enriched broadcast failed", "message", job.MessageUUID, "err", err)
	}
}
