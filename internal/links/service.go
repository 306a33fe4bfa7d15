// Package links implements the Link record use cases behind the HTTP API:
// validation, persistence, and scheduling of thumbnail attachment jobs.
package links

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// Enqueuer schedules thumbnail jobs. *dispatcher.Dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, job linkpreview.ThumbnailJob) error
}

// Input is the client-editable part of a Link.
type Input struct {
	URL      string               `json:"url"`
	MetaData linkpreview.MetaData `json:"meta_data"`
}

// Service coordinates link storage and thumbnail scheduling.
type Service struct {
	store  linkpreview.LinkStore
	blobs  linkpreview.BlobStore
	jobs   Enqueuer
	ids    linkpreview.IDGenerator
	clock  linkpreview.Clock
	logger *zap.Logger
}

// New constructs a Service.
func New(
	store linkpreview.LinkStore,
	blobs linkpreview.BlobStore,
	jobs Enqueuer,
	ids linkpreview.IDGenerator,
	clock linkpreview.Clock,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		blobs:  blobs,
		jobs:   jobs,
		ids:    ids,
		clock:  clock,
		logger: logger,
	}
}

// Create validates and stores a new link, then schedules its thumbnail job.
func (s *Service) Create(ctx context.Context, in Input) (linkpreview.Link, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return linkpreview.Link{}, fmt.Errorf("generate link id: %w", err)
	}
	now := s.clock.Now()
	link := linkpreview.Link{
		ID:        id,
		URL:       strings.TrimSpace(in.URL),
		MetaData:  in.MetaData.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := link.Validate(); err != nil {
		return linkpreview.Link{}, err
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		return linkpreview.Link{}, fmt.Errorf("create link: %w", err)
	}
	s.schedule(ctx, link.ID)
	return link, nil
}

// Update replaces a link's URL and metadata and reschedules its thumbnail job.
func (s *Service) Update(ctx context.Context, id string, in Input) (linkpreview.Link, error) {
	link, err := s.store.GetLink(ctx, id)
	if err != nil {
		return linkpreview.Link{}, fmt.Errorf("load link: %w", err)
	}
	link.URL = strings.TrimSpace(in.URL)
	link.MetaData = in.MetaData.Clone()
	link.UpdatedAt = s.clock.Now()
	if err := link.Validate(); err != nil {
		return linkpreview.Link{}, err
	}
	if err := s.store.UpdateLink(ctx, link); err != nil {
		return linkpreview.Link{}, fmt.Errorf("update link: %w", err)
	}
	s.schedule(ctx, link.ID)
	return link, nil
}

// Get returns one link.
func (s *Service) Get(ctx context.Context, id string) (linkpreview.Link, error) {
	link, err := s.store.GetLink(ctx, id)
	if err != nil {
		return linkpreview.Link{}, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

// List returns links newest first.
func (s *Service) List(ctx context.Context, limit int) ([]linkpreview.Link, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	out, err := s.store.ListLinks(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	if out == nil {
		out = []linkpreview.Link{}
	}
	return out, nil
}

// Thumbnail opens the stored thumbnail of a link. It returns ErrNotFound when
// the link has none yet.
func (s *Service) Thumbnail(ctx context.Context, id string) (linkpreview.Attachment, io.ReadCloser, error) {
	link, err := s.store.GetLink(ctx, id)
	if err != nil {
		return linkpreview.Attachment{}, nil, fmt.Errorf("get link: %w", err)
	}
	if link.Thumbnail == nil {
		return linkpreview.Attachment{}, nil, fmt.Errorf("thumbnail for %s: %w", id, linkpreview.ErrNotFound)
	}
	body, err := s.blobs.GetObject(ctx, link.Thumbnail.BlobURI)
	if err != nil {
		return linkpreview.Attachment{}, nil, fmt.Errorf("open thumbnail: %w", err)
	}
	return *link.Thumbnail, body, nil
}

// schedule enqueues a thumbnail job. The link is already persisted, so a
// failed enqueue is logged rather than returned.
func (s *Service) schedule(ctx context.Context, linkID string) {
	if s.jobs == nil {
		return
	}
	job := linkpreview.ThumbnailJob{LinkID: linkID, Attempt: 1, Submitted: s.clock.Now().Unix()}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.logger.Error("enqueue thumbnail job failed", zap.String("link_id", linkID), zap.Error(err))
		return
	}
	s.logger.Debug("thumbnail job enqueued", zap.String("link_id", linkID))
}
