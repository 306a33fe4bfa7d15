package links

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/storage/memory"
)

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (g *fakeIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) == 0 {
		return "", errors.New("no ids left")
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type recordingEnqueuer struct {
	jobs []linkpreview.ThumbnailJob
	err  error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, job linkpreview.ThumbnailJob) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

type fixture struct {
	svc   *Service
	store *memory.LinkStore
	blobs *memory.BlobStore
	jobs  *recordingEnqueuer
	clock *fakeClock
}

func newFixture(ids ...string) *fixture {
	f := &fixture{
		store: memory.NewLinkStore(),
		blobs: memory.NewBlobStore(),
		jobs:  &recordingEnqueuer{},
		clock: &fakeClock{now: time.Unix(1700000000, 0).UTC()},
	}
	f.svc = New(f.store, f.blobs, f.jobs, &fakeIDGen{ids: ids}, f.clock, nil)
	return f
}

func TestCreatePersistsAndSchedules(t *testing.T) {
	t.Parallel()

	f := newFixture("link-1")
	link, err := f.svc.Create(context.Background(), Input{
		URL:      "  https://example.com  ",
		MetaData: linkpreview.MetaData{"title": "Example", "image": "https://example.com/og.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "link-1", link.ID)
	assert.Equal(t, "https://example.com", link.URL)
	assert.Equal(t, f.clock.now, link.CreatedAt)

	stored, err := f.store.GetLink(context.Background(), "link-1")
	require.NoError(t, err)
	title, _ := stored.Title()
	assert.Equal(t, "Example", title)

	require.Len(t, f.jobs.jobs, 1)
	assert.Equal(t, linkpreview.ThumbnailJob{LinkID: "link-1", Attempt: 1, Submitted: 1700000000}, f.jobs.jobs[0])
}

func TestCreateRejectsBlankURL(t *testing.T) {
	t.Parallel()

	f := newFixture("link-1")
	_, err := f.svc.Create(context.Background(), Input{URL: "   "})
	assert.ErrorIs(t, err, linkpreview.ErrURLRequired)
	assert.ErrorIs(t, err, linkpreview.ErrValidation)
	assert.Empty(t, f.jobs.jobs)

	links, err := f.svc.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestCreateSurvivesEnqueueFailure(t *testing.T) {
	t.Parallel()

	f := newFixture("link-1")
	f.jobs.err = errors.New("queue full")
	link, err := f.svc.Create(context.Background(), Input{URL: "https://example.com"})
	require.NoError(t, err)
	_, err = f.store.GetLink(context.Background(), link.ID)
	assert.NoError(t, err)
}

func TestUpdateReschedules(t *testing.T) {
	t.Parallel()

	f := newFixture("link-1")
	_, err := f.svc.Create(context.Background(), Input{URL: "https://example.com"})
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(time.Hour)
	updated, err := f.svc.Update(context.Background(), "link-1", Input{
		URL:      "https://example.org",
		MetaData: linkpreview.MetaData{"image": "https://example.org/og.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", updated.URL)
	assert.Equal(t, f.clock.now, updated.UpdatedAt)
	assert.Len(t, f.jobs.jobs, 2)

	_, err = f.svc.Update(context.Background(), "link-1", Input{URL: ""})
	assert.ErrorIs(t, err, linkpreview.ErrURLRequired)

	_, err = f.svc.Update(context.Background(), "missing", Input{URL: "https://example.com"})
	assert.ErrorIs(t, err, linkpreview.ErrNotFound)
}

func TestThumbnail(t *testing.T) {
	t.Parallel()

	f := newFixture("link-1")
	ctx := context.Background()
	_, err := f.svc.Create(ctx, Input{URL: "https://example.com"})
	require.NoError(t, err)

	_, _, err = f.svc.Thumbnail(ctx, "link-1")
	assert.ErrorIs(t, err, linkpreview.ErrNotFound)

	uri, err := f.blobs.PutObject(ctx, "thumbnails/link-1/abc/og.png", "image/png", bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	require.NoError(t, f.store.AttachThumbnail(ctx, "link-1", linkpreview.Attachment{
		BlobURI: uri, Filename: "og.png", ContentType: "image/png", ByteSize: 3,
	}))

	att, body, err := f.svc.Thumbnail(ctx, "link-1")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "og.png", att.Filename)

	_, _, err = f.svc.Thumbnail(ctx, "missing")
	assert.ErrorIs(t, err, linkpreview.ErrNotFound)
}

func TestListClampsLimit(t *testing.T) {
	t.Parallel()

	f := newFixture("a", "b")
	ctx := context.Background()
	for range 2 {
		_, err := f.svc.Create(ctx, Input{URL: "https://example.com"})
		require.NoError(t, err)
		f.clock.now = f.clock.now.Add(time.Second)
	}
	links, err := f.svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "b", links[0].ID)

	all, err := f.svc.List(ctx, -5)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
