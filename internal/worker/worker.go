// Package worker implements the thumbnail attachment job.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/metrics"
)

// Outcome is the terminal result of one job attempt.
type Outcome string

// Job outcomes. Discarded jobs are acknowledged and never retried; failed
// jobs are handed back to the queue.
const (
	OutcomeAttached  Outcome = "attached"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeFailed    Outcome = "failed"
)

// Config controls Worker behavior.
type Config struct {
	BlobPrefix string
	// Timeout bounds a single attempt; zero means no extra deadline.
	Timeout time.Duration
}

// Worker consumes thumbnail jobs: it downloads the image named in a link's
// metadata, stores the bytes, and attaches them as the link's thumbnail.
type Worker struct {
	queue      linkpreview.Queue
	links      linkpreview.LinkStore
	blobs      linkpreview.BlobStore
	downloader linkpreview.Downloader
	hasher     linkpreview.Hasher
	clock      linkpreview.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	queue linkpreview.Queue,
	links linkpreview.LinkStore,
	blobs linkpreview.BlobStore,
	downloader linkpreview.Downloader,
	hasher linkpreview.Hasher,
	clock linkpreview.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		links:      links,
		blobs:      blobs,
		downloader: downloader,
		hasher:     hasher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming deliveries until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		delivery, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("link_id", delivery.Job.LinkID),
			zap.Int("attempt", delivery.Job.Attempt),
		)
		w.handle(ctx, delivery)
	}
}

func (w *Worker) handle(ctx context.Context, delivery linkpreview.Delivery) {
	outcome, err := w.Process(ctx, delivery.Job)
	metrics.ObserveThumbnailJob(string(outcome))
	fields := []zap.Field{
		zap.String("link_id", delivery.Job.LinkID),
		zap.Int("attempt", delivery.Job.Attempt),
		zap.String("outcome", string(outcome)),
	}
	switch outcome {
	case OutcomeFailed:
		w.logger.Warn("thumbnail job failed", append(fields, zap.Error(err))...)
		if delivery.Nack != nil {
			delivery.Nack()
		}
		return
	case OutcomeDiscarded:
		w.logger.Warn("thumbnail job discarded", append(fields, zap.Error(err))...)
	default:
		w.logger.Info("thumbnail job done", fields...)
	}
	if delivery.Ack != nil {
		delivery.Ack()
	}
}

// Process runs one attempt of a job. The returned error explains discarded
// and failed outcomes.
func (w *Worker) Process(ctx context.Context, job linkpreview.ThumbnailJob) (Outcome, error) {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	link, err := w.links.GetLink(ctx, job.LinkID)
	if errors.Is(err, linkpreview.ErrNotFound) {
		return OutcomeDiscarded, fmt.Errorf("load link: %w", err)
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load link: %w", err)
	}

	if !link.MetaData.Present(linkpreview.MetaImage) {
		return OutcomeSkipped, nil
	}
	image, _ := link.Image()

	download, err := w.downloader.Download(ctx, strings.TrimSpace(image))
	if errors.Is(err, linkpreview.ErrInvalidURL) {
		return OutcomeDiscarded, fmt.Errorf("download image: %w", err)
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("download image: %w", err)
	}

	attachment, err := w.store(ctx, link.ID, download)
	if err != nil {
		return OutcomeFailed, err
	}

	err = w.links.AttachThumbnail(ctx, link.ID, attachment)
	if errors.Is(err, linkpreview.ErrNotFound) {
		return OutcomeDiscarded, fmt.Errorf("attach thumbnail: %w", err)
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("attach thumbnail: %w", err)
	}
	metrics.ObserveThumbnailBytes(attachment.ByteSize)
	return OutcomeAttached, nil
}

func (w *Worker) store(ctx context.Context, linkID string, download linkpreview.Download) (linkpreview.Attachment, error) {
	hash, err := w.hasher.Hash(download.Body)
	if err != nil {
		return linkpreview.Attachment{}, fmt.Errorf("hash body: %w", err)
	}
	filename := download.Filename
	if filename == "" {
		filename = linkpreview.ThumbnailAttachmentName
	}
	uri, err := w.blobs.PutObject(ctx, w.buildBlobPath(linkID, hash, filename), download.ContentType, bytes.NewReader(download.Body))
	if err != nil {
		return linkpreview.Attachment{}, fmt.Errorf("put object: %w", err)
	}
	return linkpreview.Attachment{
		Name:        linkpreview.ThumbnailAttachmentName,
		BlobURI:     uri,
		Filename:    filename,
		ContentType: download.ContentType,
		ByteSize:    int64(len(download.Body)),
		Checksum:    hash,
		CreatedAt:   w.clock.Now(),
	}, nil
}

func (w *Worker) buildBlobPath(linkID, hash, filename string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s/%s", linkID, hash, filename)
	}
	return fmt.Sprintf("%s/%s/%s/%s", prefix, linkID, hash, filename)
}
