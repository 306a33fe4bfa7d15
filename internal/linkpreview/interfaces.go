package linkpreview

import (
	"context"
	"io"
	"time"
)

// LinkStore persists links and their thumbnail attachments.
type LinkStore interface {
	CreateLink(ctx context.Context, link Link) error
	UpdateLink(ctx context.Context, link Link) error
	GetLink(ctx context.Context, id string) (Link, error)
	ListLinks(ctx context.Context, limit int) ([]Link, error)
	// AttachThumbnail replaces the link's thumbnail attachment.
	AttachThumbnail(ctx context.Context, linkID string, attachment Attachment) error
}

// BlobStore writes and reads raw attachment bytes.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Queue provides at-least-once delivery of thumbnail jobs.
type Queue interface {
	Enqueue(ctx context.Context, job ThumbnailJob) error
	Dequeue(ctx context.Context) (Delivery, error)
}

// Downloader fetches the bytes behind a URL. It returns an error wrapping
// ErrInvalidURL when the URL can never succeed.
type Downloader interface {
	Download(ctx context.Context, url string) (Download, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
