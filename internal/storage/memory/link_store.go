package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
)

// LinkStore provides an in-memory LinkStore for development/testing.
type LinkStore struct {
	mu          sync.RWMutex
	links       map[string]linkpreview.Link
	attachments map[string]linkpreview.Attachment
}

// NewLinkStore constructs a LinkStore.
func NewLinkStore() *LinkStore {
	return &LinkStore{
		links:       make(map[string]linkpreview.Link),
		attachments: make(map[string]linkpreview.Attachment),
	}
}

// CreateLink stores a new link.
func (s *LinkStore) CreateLink(_ context.Context, link linkpreview.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.ID]; exists {
		return errors.New("link already exists")
	}
	s.links[link.ID] = stored(link)
	return nil
}

// UpdateLink overwrites the URL and metadata of an existing link.
func (s *LinkStore) UpdateLink(_ context.Context, link linkpreview.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.links[link.ID]
	if !ok {
		return fmt.Errorf("link %s: %w", link.ID, linkpreview.ErrNotFound)
	}
	current.URL = link.URL
	current.MetaData = link.MetaData.Clone()
	current.UpdatedAt = link.UpdatedAt
	s.links[link.ID] = current
	return nil
}

// GetLink returns a link with its thumbnail, if attached.
func (s *LinkStore) GetLink(_ context.Context, id string) (linkpreview.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[id]
	if !ok {
		return linkpreview.Link{}, fmt.Errorf("link %s: %w", id, linkpreview.ErrNotFound)
	}
	return s.withThumbnail(link), nil
}

// ListLinks returns links newest first. A non-positive limit returns all.
func (s *LinkStore) ListLinks(_ context.Context, limit int) ([]linkpreview.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]linkpreview.Link, 0, len(s.links))
	for _, link := range s.links {
		out = append(out, s.withThumbnail(link))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AttachThumbnail replaces the link's thumbnail.
func (s *LinkStore) AttachThumbnail(_ context.Context, linkID string, attachment linkpreview.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[linkID]; !ok {
		return fmt.Errorf("link %s: %w", linkID, linkpreview.ErrNotFound)
	}
	if attachment.Name == "" {
		attachment.Name = linkpreview.ThumbnailAttachmentName
	}
	s.attachments[linkID] = attachment
	return nil
}

func (s *LinkStore) withThumbnail(link linkpreview.Link) linkpreview.Link {
	link = stored(link)
	if att, ok := s.attachments[link.ID]; ok {
		link.Thumbnail = &att
	}
	return link
}

func stored(link linkpreview.Link) linkpreview.Link {
	link.MetaData = link.MetaData.Clone()
	link.Thumbnail = nil
	return link
}
