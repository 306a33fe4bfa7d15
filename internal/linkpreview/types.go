package linkpreview

import (
	"strings"
	"time"
)

// ThumbnailAttachmentName is the attachment slot used for link thumbnails.
const ThumbnailAttachmentName = "thumbnail"

// Link is the persisted record holding a URL and its preview metadata.
type Link struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	MetaData  MetaData    `json:"meta_data"`
	Thumbnail *Attachment `json:"thumbnail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Validate enforces URL presence.
func (l Link) Validate() error {
	if strings.TrimSpace(l.URL) == "" {
		return ErrURLRequired
	}
	return nil
}

// Description returns the stored description, if any.
func (l Link) Description() (string, bool) { return l.MetaData.Get(MetaDescription) }

// Image returns the stored image URL, if any.
func (l Link) Image() (string, bool) { return l.MetaData.Get(MetaImage) }

// Title returns the stored title, if any.
func (l Link) Title() (string, bool) { return l.MetaData.Get(MetaTitle) }

// SetDescription sets or overwrites the description.
func (l *Link) SetDescription(v string) { l.MetaData = l.MetaData.With(MetaDescription, v) }

// SetImage sets or overwrites the image URL.
func (l *Link) SetImage(v string) { l.MetaData = l.MetaData.With(MetaImage, v) }

// SetTitle sets or overwrites the title.
func (l *Link) SetTitle(v string) { l.MetaData = l.MetaData.With(MetaTitle, v) }

// Attachment describes a blob attached to a record.
type Attachment struct {
	Name        string    `json:"name"`
	BlobURI     string    `json:"blob_uri"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
}

// ThumbnailJob asks a worker to download and attach a link's thumbnail.
type ThumbnailJob struct {
	LinkID    string `json:"link_id"`
	Attempt   int    `json:"attempt"`
	Submitted int64  `json:"submitted"`
}

// Delivery is a dequeued job plus its acknowledgement hooks. Ack marks the
// job finished (including discarded jobs); Nack hands it back to the queue's
// retry policy.
type Delivery struct {
	Job  ThumbnailJob
	Ack  func()
	Nack func()
}

// Download is the result of fetching a remote file.
type Download struct {
	URL         string
	Filename    string
	ContentType string
	Body        []byte
}
