package preview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkpreview/internal/microlink"
)

type recordingView struct {
	mu      sync.Mutex
	applied []Effects
}

func (v *recordingView) Apply(e Effects) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.applied = append(v.applied, e)
}

func (v *recordingView) last() Effects {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.applied) == 0 {
		return Effects{}
	}
	return v.applied[len(v.applied)-1]
}

// pendingFetch is one blocked Fetch call that the test resolves explicitly.
type pendingFetch struct {
	url     string
	resp    microlink.Response
	err     error
	release chan struct{}
}

func (p *pendingFetch) succeed(data microlink.Payload) {
	p.resp = microlink.Response{Status: microlink.StatusSuccess, Data: data}
	close(p.release)
}

type gatedFetcher struct {
	started chan *pendingFetch
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{started: make(chan *pendingFetch, 8)}
}

func (f *gatedFetcher) Fetch(_ context.Context, url string) (microlink.Response, error) {
	p := &pendingFetch{url: url, release: make(chan struct{})}
	f.started <- p
	<-p.release
	return p.resp, p.err
}

func (f *gatedFetcher) next(t *testing.T) *pendingFetch {
	t.Helper()
	select {
	case p := <-f.started:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not started")
		return nil
	}
}

func staticFetcher(resp microlink.Response, err error) (Fetcher, *atomic.Int32) {
	calls := &atomic.Int32{}
	return FetcherFunc(func(context.Context, string) (microlink.Response, error) {
		calls.Add(1)
		return resp, err
	}), calls
}

func await(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch cycle did not complete")
	}
}

func fullPayload() microlink.Payload {
	return microlink.Payload{
		"title":       "Example Domain",
		"description": "Illustrative example",
		"image":       map[string]any{"url": "https://example.com/og.png"},
	}
}

func newController(t *testing.T, fetcher Fetcher, hasPreview bool) (*Controller, *recordingView) {
	t.Helper()
	view := &recordingView{}
	c := New(fetcher, view, Options{HasPreview: hasPreview})
	c.Initialize()
	return c, view
}

func TestHandleChangeSuccessPopulatesFieldsAndPreview(t *testing.T) {
	t.Parallel()

	fetcher, calls := staticFetcher(microlink.Response{Status: microlink.StatusSuccess, Data: fullPayload()}, nil)
	c, view := newController(t, fetcher, true)

	await(t, c.HandleChange(context.Background(), "https://example.com"))

	state := c.State()
	assert.Equal(t, PhaseSuccess, state.Phase)
	assert.Equal(t, Fields{
		Description: "Illustrative example",
		Image:       "https://example.com/og.png",
		Title:       "Example Domain",
	}, state.Fields)
	assert.True(t, state.PreviewVisible)
	assert.Empty(t, state.Message)
	assert.EqualValues(t, 1, calls.Load())

	got := view.last()
	assert.Equal(t, Panel{
		Visible:     true,
		Title:       "Example Domain",
		Description: "Illustrative example",
		ImageURL:    "https://example.com/og.png",
	}, got.Panel)
	assert.Empty(t, got.Message)
}

func TestHandleChangeEmptyInputClearsWithoutFetching(t *testing.T) {
	t.Parallel()

	fetcher, calls := staticFetcher(microlink.Response{Status: microlink.StatusSuccess, Data: fullPayload()}, nil)
	c, view := newController(t, fetcher, true)
	await(t, c.HandleChange(context.Background(), "https://example.com"))
	require.Equal(t, PhaseSuccess, c.State().Phase)

	done := c.HandleChange(context.Background(), "")
	select {
	case <-done:
	default:
		t.Fatal("empty input should complete synchronously")
	}

	state := c.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Equal(t, Fields{}, state.Fields)
	assert.False(t, state.PreviewVisible)
	assert.Empty(t, state.Message)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, Effects{Phase: PhaseIdle}, view.last())
}

func TestHandleChangeNonSuccessStatus(t *testing.T) {
	t.Parallel()

	fetcher, _ := staticFetcher(microlink.Response{Status: "fail", Message: "bad url"}, nil)
	c, view := newController(t, fetcher, true)

	await(t, c.HandleChange(context.Background(), "not a url"))

	state := c.State()
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.Equal(t, FetchErrorMessage, state.Message)
	assert.Equal(t, Fields{}, state.Fields)
	assert.False(t, state.PreviewVisible)
	assert.True(t, IsStatusError(state.Err))
	assert.Equal(t, FetchErrorMessage, view.last().Message)
}

func TestHandleChangeTransportError(t *testing.T) {
	t.Parallel()

	fetcher, _ := staticFetcher(microlink.Response{}, errors.New("timed out"))
	c, view := newController(t, fetcher, true)

	await(t, c.HandleChange(context.Background(), "https://slow.example.com"))

	state := c.State()
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.Equal(t, "timed out", state.Message)
	assert.Equal(t, Fields{}, state.Fields)
	assert.False(t, IsStatusError(state.Err))
	assert.Equal(t, "timed out", view.last().Message)
}

func TestHandleChangeBlankErrorFallsBackToGenericMessage(t *testing.T) {
	t.Parallel()

	fetcher, _ := staticFetcher(microlink.Response{}, errors.New(""))
	c, _ := newController(t, fetcher, false)

	await(t, c.HandleChange(context.Background(), "https://example.com"))
	assert.Equal(t, FetchErrorMessage, c.State().Message)
}

func TestHandleChangeClearsBeforeFetchResolves(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	c, view := newController(t, fetcher, true)

	first := c.HandleChange(context.Background(), "https://example.com")
	fetcher.next(t).succeed(fullPayload())
	await(t, first)
	require.True(t, c.State().PreviewVisible)

	second := c.HandleChange(context.Background(), "https://example.org")
	pending := fetcher.next(t)

	state := c.State()
	assert.Equal(t, PhaseFetching, state.Phase)
	assert.Equal(t, Fields{}, state.Fields)
	assert.False(t, state.PreviewVisible)
	assert.Equal(t, FetchingMessage, state.Message)
	assert.Equal(t, Effects{Phase: PhaseFetching, Message: FetchingMessage}, view.last())
	assert.Equal(t, "https://example.org", pending.url)

	pending.succeed(microlink.Payload{"title": "Org"})
	await(t, second)
}

func TestHandleChangeWritesAbsentValuesAsEmpty(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	c, _ := newController(t, fetcher, true)

	first := c.HandleChange(context.Background(), "https://example.com")
	fetcher.next(t).succeed(fullPayload())
	await(t, first)

	second := c.HandleChange(context.Background(), "https://example.org")
	fetcher.next(t).succeed(microlink.Payload{"title": "Only a title", "image": "not-an-object"})
	await(t, second)

	assert.Equal(t, Fields{Title: "Only a title"}, c.State().Fields)
}

func TestHandleChangeDropsStaleResults(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	c, view := newController(t, fetcher, true)

	first := c.HandleChange(context.Background(), "https://a.example")
	a := fetcher.next(t)
	second := c.HandleChange(context.Background(), "https://b.example")
	b := fetcher.next(t)

	// The older cycle resolving while the newer one is in flight changes nothing.
	a.succeed(microlink.Payload{"title": "A"})
	await(t, first)
	state := c.State()
	assert.Equal(t, PhaseFetching, state.Phase)
	assert.Equal(t, "https://b.example", state.URL)
	assert.Equal(t, Fields{}, state.Fields)
	assert.Equal(t, FetchingMessage, view.last().Message)

	b.succeed(microlink.Payload{"title": "B"})
	await(t, second)
	assert.Equal(t, "B", c.State().Fields.Title)
}

func TestHandleChangeOutOfOrderResolutionKeepsLatest(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	c, _ := newController(t, fetcher, true)

	first := c.HandleChange(context.Background(), "https://a.example")
	a := fetcher.next(t)
	second := c.HandleChange(context.Background(), "https://b.example")
	b := fetcher.next(t)

	b.succeed(microlink.Payload{"title": "B"})
	await(t, second)
	a.succeed(microlink.Payload{"title": "A"})
	await(t, first)

	state := c.State()
	assert.Equal(t, PhaseSuccess, state.Phase)
	assert.Equal(t, "B", state.Fields.Title)
}

func TestHandleChangeWithoutPreviewPanel(t *testing.T) {
	t.Parallel()

	fetcher, _ := staticFetcher(microlink.Response{Status: microlink.StatusSuccess, Data: fullPayload()}, nil)
	c, view := newController(t, fetcher, false)

	await(t, c.HandleChange(context.Background(), "https://example.com"))

	state := c.State()
	assert.Equal(t, "Example Domain", state.Fields.Title)
	assert.False(t, state.PreviewVisible)
	assert.Equal(t, Panel{}, view.last().Panel)
}

func TestDisposeIgnoresInFlightAndLaterInput(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	c, view := newController(t, fetcher, true)

	done := c.HandleChange(context.Background(), "https://example.com")
	pending := fetcher.next(t)
	c.Dispose()

	view.mu.Lock()
	applied := len(view.applied)
	view.mu.Unlock()

	pending.succeed(fullPayload())
	await(t, done)
	assert.Equal(t, State{}, c.State())

	after := c.HandleChange(context.Background(), "https://example.org")
	await(t, after)
	select {
	case p := <-fetcher.started:
		t.Fatalf("unexpected fetch for %s after dispose", p.url)
	default:
	}

	view.mu.Lock()
	defer view.mu.Unlock()
	assert.Len(t, view.applied, applied)
}

func TestInitializeResetsGeneration(t *testing.T) {
	t.Parallel()

	fetcher, _ := staticFetcher(microlink.Response{Status: microlink.StatusSuccess, Data: fullPayload()}, nil)
	c, _ := newController(t, fetcher, true)
	await(t, c.HandleChange(context.Background(), "https://example.com"))
	require.EqualValues(t, 1, c.State().Generation)

	c.Dispose()
	c.Initialize()
	assert.Equal(t, State{}, c.State())

	await(t, c.HandleChange(context.Background(), "https://example.com"))
	assert.EqualValues(t, 1, c.State().Generation)
}

func TestReinitializeDropsResultFromPreviousAttachment(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	c, _ := newController(t, fetcher, true)

	old := c.HandleChange(context.Background(), "https://old.example")
	stale := fetcher.next(t)
	c.Dispose()
	c.Initialize()

	current := c.HandleChange(context.Background(), "https://new.example")
	fresh := fetcher.next(t)
	require.EqualValues(t, 1, c.State().Generation)

	// Both cycles carry generation 1; the old one belongs to a detached form.
	stale.succeed(microlink.Payload{"title": "OLD"})
	await(t, old)
	state := c.State()
	assert.Equal(t, PhaseFetching, state.Phase)
	assert.Equal(t, "https://new.example", state.URL)
	assert.Equal(t, Fields{}, state.Fields)

	fresh.succeed(microlink.Payload{"title": "NEW"})
	await(t, current)
	assert.Equal(t, "NEW", c.State().Fields.Title)
}

func TestHandleChangeTrimsInput(t *testing.T) {
	t.Parallel()

	var seen atomic.Value
	fetcher := FetcherFunc(func(_ context.Context, url string) (microlink.Response, error) {
		seen.Store(url)
		return microlink.Response{Status: microlink.StatusSuccess}, nil
	})
	c, _ := newController(t, fetcher, true)

	await(t, c.HandleChange(context.Background(), "  https://example.com \n"))
	assert.Equal(t, "https://example.com", seen.Load())

	await(t, c.HandleChange(context.Background(), "   "))
	assert.Equal(t, PhaseIdle, c.State().Phase)
}
